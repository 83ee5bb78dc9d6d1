package crawler

import (
	"net/http"
	"time"
)

// RenderMode selects the fetch strategy for a run.
type RenderMode string

// Render modes accepted on a CrawlRequest.
const (
	RenderPlain    RenderMode = "plain"
	RenderRendered RenderMode = "rendered"
	RenderAuto     RenderMode = "auto"
)

// ParseRenderMode maps user input onto a RenderMode. Unknown values fall back to plain.
func ParseRenderMode(raw string) RenderMode {
	switch RenderMode(normalizeToken(raw)) {
	case RenderRendered, "browser", "headless":
		return RenderRendered
	case RenderAuto:
		return RenderAuto
	default:
		return RenderPlain
	}
}

// CrawlRequest captures the caller's knobs for a single run. It is passed by
// value and never mutated once the run starts.
type CrawlRequest struct {
	SeedURL             string        `json:"url"`
	MaxPages            int           `json:"max_pages"`
	MaxDepth            int           `json:"max_depth"`
	AllowedHosts        []string      `json:"allowed_hosts,omitempty"`
	PathPrefixes        []string      `json:"path_prefixes,omitempty"`
	IncludeSubdomains   bool          `json:"include_subdomains"`
	RespectRobots       bool          `json:"respect_robots"`
	UseSitemap          bool          `json:"use_sitemap"`
	StripLinks          bool          `json:"strip_links"`
	StripImages         bool          `json:"strip_images"`
	ReadabilityFallback bool          `json:"readability_fallback"`
	MinTextChars        int           `json:"min_text_chars"`
	RenderMode          RenderMode    `json:"render_mode"`
	Budget              time.Duration `json:"-"`
}

// ExtractOptions returns the extractor knobs carried by the request.
func (r CrawlRequest) ExtractOptions() ExtractOptions {
	return ExtractOptions{
		StripLinks:          r.StripLinks,
		StripImages:         r.StripImages,
		ReadabilityFallback: r.ReadabilityFallback,
		MinTextChars:        r.MinTextChars,
	}
}

// FrontierEntry is a URL waiting to be visited. Title and Filename carry a
// caller's choices for selected downloads.
type FrontierEntry struct {
	URL      string
	Key      string
	Depth    int
	From     string
	Title    string
	Filename string
}

// Selection is one page picked for download, usually echoed back from a
// preview. Title and Filename are optional overrides.
type Selection struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// PageResult is the outcome of fetching and extracting one page. Filename is
// the archive entry name a caller asked for, if any.
type PageResult struct {
	URL          string   `json:"url"`
	FinalURL     string   `json:"final_url"`
	Host         string   `json:"host"`
	Path         string   `json:"path"`
	Title        string   `json:"title,omitempty"`
	Markdown     string   `json:"markdown"`
	TextLength   int      `json:"text_length"`
	RawSize      int      `json:"raw_size"`
	Thin         bool     `json:"thin"`
	UsedFallback bool     `json:"used_fallback"`
	UsedHeadless bool     `json:"used_headless"`
	Depth        int      `json:"depth"`
	Links        []string `json:"links,omitempty"`
	Filename     string   `json:"filename,omitempty"`
	Err          string   `json:"error,omitempty"`
}

// Failed reports whether the page carries an error instead of content.
func (p PageResult) Failed() bool {
	return p.Err != ""
}

// PreviewItem describes a discovered page without its extracted content.
type PreviewItem struct {
	URL               string `json:"url"`
	Host              string `json:"host"`
	Path              string `json:"path"`
	Title             string `json:"title"`
	SuggestedFilename string `json:"suggested_filename"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Depth   int
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ContentType returns the response's Content-Type header, if any.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// ExtractOptions controls the content extractor.
type ExtractOptions struct {
	StripLinks          bool
	StripImages         bool
	ReadabilityFallback bool
	MinTextChars        int
}

// Extraction is the content extractor's output for one document.
type Extraction struct {
	Title        string
	Markdown     string
	TextLength   int
	Links        []string
	Canonical    string
	Thin         bool
	UsedFallback bool
}

// Outline is the light-weight view of a page used by previews.
type Outline struct {
	Title     string
	Links     []string
	Canonical string
}
