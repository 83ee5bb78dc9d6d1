package crawler

import (
	"net/url"
	"strings"
	"time"
)

// Limits bounds caller-supplied request values.
type Limits struct {
	MaxPages     int
	MaxDepth     int
	MinTextChars int
	MaxBudget    time.Duration
}

// DefaultLimits mirrors the service's public API bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxPages:     500,
		MaxDepth:     10,
		MinTextChars: 5000,
		MaxBudget:    10 * time.Minute,
	}
}

// Validate rejects requests that must never reach the traversal.
func (r CrawlRequest) Validate() error {
	if _, err := ParseSeed(r.SeedURL); err != nil {
		return err
	}
	if r.MaxPages < 1 {
		return invalidf("max_pages must be >= 1")
	}
	if r.MaxDepth < 0 {
		return invalidf("max_depth must be >= 0")
	}
	if r.MinTextChars < 0 {
		return invalidf("min_text_chars must be >= 0")
	}
	if r.Budget < 0 {
		return invalidf("budget must be >= 0")
	}
	return nil
}

// Clamp caps the request's numeric fields at the given limits.
func (r CrawlRequest) Clamp(l Limits) CrawlRequest {
	if l.MaxPages > 0 && r.MaxPages > l.MaxPages {
		r.MaxPages = l.MaxPages
	}
	if l.MaxDepth > 0 && r.MaxDepth > l.MaxDepth {
		r.MaxDepth = l.MaxDepth
	}
	if l.MinTextChars > 0 && r.MinTextChars > l.MinTextChars {
		r.MinTextChars = l.MinTextChars
	}
	if l.MaxBudget > 0 && r.Budget > l.MaxBudget {
		r.Budget = l.MaxBudget
	}
	r.RenderMode = ParseRenderMode(string(r.RenderMode))
	return r
}

// ParseSeed parses and checks an absolute http(s) URL supplied by a caller.
func ParseSeed(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalidf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, invalidf("malformed url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, invalidf("url %q must use http or https", raw)
	}
	if u.Hostname() == "" {
		return nil, invalidf("url %q has no host", raw)
	}
	return u, nil
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
