package crawler

import (
	"context"
	"io"
	"time"
)

// BlobStore writes generated artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a rendered fetch is warranted after a plain probe.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Extractor turns markup into page content.
type Extractor interface {
	Extract(body []byte, pageURL string, opts ExtractOptions) (Extraction, error)
	Outline(body []byte, pageURL string) (Outline, error)
}

// RobotsChecker answers robots.txt questions for a single run.
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// SitemapSource discovers candidate URLs for a seed.
type SitemapSource interface {
	Discover(ctx context.Context, seedURL string) []string
}

// HostLimiter throttles requests per host.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Hasher computes digests for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
