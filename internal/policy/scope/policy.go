// Package scope decides which URLs belong to a crawl run.
package scope

import (
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

// Reason explains a policy decision. The zero value means accepted.
type Reason string

// Decisions reported by Policy.
const (
	Accepted        Reason = ""
	RejectInvalid   Reason = "invalid"
	RejectScheme    Reason = "scheme"
	RejectHost      Reason = "host"
	RejectPath      Reason = "path"
	RejectDepth     Reason = "depth"
	RejectAsset     Reason = "asset"
	RejectDuplicate Reason = "duplicate"
	RejectBudget    Reason = "budget"
)

// Counted reports whether the rejection shows up in skipped_links.
// Duplicates are silent: every page links to the same navigation.
func (r Reason) Counted() bool {
	return r != Accepted && r != RejectDuplicate
}

var assetExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {},
	".css": {}, ".js": {}, ".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {}, ".rar": {},
	".mp4": {}, ".mp3": {}, ".wav": {},
}

// Seen reports whether a normalized key was already visited or queued.
type Seen interface {
	Seen(key string) bool
}

// Policy holds the compiled scope rules of one request.
type Policy struct {
	hosts    *hostMatcher
	prefixes []string
	maxDepth int
	maxPages int
}

// New compiles the request's scope. The request must already be valid.
func New(req crawler.CrawlRequest) (*Policy, error) {
	seed, err := crawler.ParseSeed(req.SeedURL)
	if err != nil {
		return nil, err
	}
	// The seed host is always in scope, whatever allowed_hosts says.
	patterns := DefaultHosts(seed.Hostname())
	if len(req.AllowedHosts) > 0 {
		patterns = append([]string{seed.Hostname()}, req.AllowedHosts...)
	}
	p := &Policy{
		hosts:    newHostMatcher(patterns, req.IncludeSubdomains),
		maxDepth: req.MaxDepth,
		maxPages: req.MaxPages,
	}
	for _, raw := range req.PathPrefixes {
		prefix := strings.TrimSpace(raw)
		if prefix == "" {
			continue
		}
		if !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		p.prefixes = append(p.prefixes, prefix)
	}
	return p, nil
}

// Accept normalizes rawURL and decides whether it may enter the frontier at
// depth. emitted is the number of pages already produced by the run. The
// normalized key is returned whenever the URL could be parsed.
func (p *Policy) Accept(rawURL string, depth int, seen Seen, emitted int) (string, Reason) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", RejectInvalid
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", RejectScheme
	}
	key := crawler.NormalizeParsed(u)
	if seen != nil && seen.Seen(key) {
		return key, RejectDuplicate
	}
	if p.maxPages > 0 && emitted >= p.maxPages {
		return key, RejectBudget
	}
	return key, p.Check(u, depth)
}

// Check applies the stateless rules: scheme, host, depth, path prefix and
// static asset extension.
func (p *Policy) Check(u *url.URL, depth int) Reason {
	if u == nil || u.Host == "" {
		return RejectInvalid
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return RejectScheme
	}
	if !p.hosts.Match(u.Hostname()) {
		return RejectHost
	}
	if depth > p.maxDepth {
		return RejectDepth
	}
	urlPath := u.Path
	if urlPath == "" {
		urlPath = "/"
	}
	if len(p.prefixes) > 0 && !hasAnyPrefix(urlPath, p.prefixes) {
		return RejectPath
	}
	if IsAsset(urlPath) {
		return RejectAsset
	}
	return Accepted
}

// AllowsHost reports whether host is inside the crawl scope.
func (p *Policy) AllowsHost(host string) bool {
	return p.hosts.Match(host)
}

// IsAsset reports whether the path names a static, non-document resource.
func IsAsset(urlPath string) bool {
	_, ok := assetExtensions[strings.ToLower(path.Ext(urlPath))]
	return ok
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
