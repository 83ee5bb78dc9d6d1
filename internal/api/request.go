package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/export"
	"github.com/JakeFAU/sitekb-crawler/internal/importer"
)

const maxBodyBytes = 1 << 20

// HostResolver resolves hostnames; *net.Resolver satisfies it.
type HostResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// crawlOptions are the optional request knobs. Nil means "use the default".
type crawlOptions struct {
	MaxPages            *int     `json:"max_pages"`
	MaxDepth            *int     `json:"max_depth"`
	AllowedHosts        []string `json:"allowed_hosts"`
	PathPrefixes        []string `json:"path_prefixes"`
	IncludeSubdomains   *bool    `json:"include_subdomains"`
	RespectRobots       *bool    `json:"respect_robots"`
	UseSitemap          *bool    `json:"use_sitemap"`
	StripLinks          *bool    `json:"strip_links"`
	StripImages         *bool    `json:"strip_images"`
	ReadabilityFallback *bool    `json:"readability_fallback"`
	MinTextChars        *int     `json:"min_text_chars"`
	RenderMode          string   `json:"render_mode"`
	BudgetSeconds       *int     `json:"budget_seconds"`
}

type crawlBody struct {
	URL string `json:"url"`
	crawlOptions
	Format string `json:"format"`
}

// selection is a preview item echoed back by the client. Filename is
// accepted as an alias of SuggestedFilename.
type selection struct {
	URL               string `json:"url"`
	Title             string `json:"title"`
	SuggestedFilename string `json:"suggested_filename"`
	Filename          string `json:"filename"`
}

type downloadBody struct {
	crawlBody
	Items []selection `json:"items"`
	// Pages is accepted as an alias of Items.
	Pages []selection `json:"pages"`
}

func (b downloadBody) selections() []crawler.Selection {
	items := b.Items
	if len(items) == 0 {
		items = b.Pages
	}
	picks := make([]crawler.Selection, 0, len(items))
	for _, item := range items {
		raw := strings.TrimSpace(item.URL)
		if raw == "" {
			continue
		}
		name := item.SuggestedFilename
		if name == "" {
			name = item.Filename
		}
		picks = append(picks, crawler.Selection{URL: raw, Title: item.Title, Filename: name})
	}
	return picks
}

type bulkBody struct {
	URLs    []string     `json:"urls"`
	Format  string       `json:"format"`
	Options crawlOptions `json:"options"`
}

func (o crawlOptions) apply(req crawler.CrawlRequest) crawler.CrawlRequest {
	setInt(&req.MaxPages, o.MaxPages)
	setInt(&req.MaxDepth, o.MaxDepth)
	setInt(&req.MinTextChars, o.MinTextChars)
	setBool(&req.IncludeSubdomains, o.IncludeSubdomains)
	setBool(&req.RespectRobots, o.RespectRobots)
	setBool(&req.UseSitemap, o.UseSitemap)
	setBool(&req.StripLinks, o.StripLinks)
	setBool(&req.StripImages, o.StripImages)
	setBool(&req.ReadabilityFallback, o.ReadabilityFallback)
	if len(o.AllowedHosts) > 0 {
		req.AllowedHosts = append([]string(nil), o.AllowedHosts...)
	}
	if len(o.PathPrefixes) > 0 {
		req.PathPrefixes = append([]string(nil), o.PathPrefixes...)
	}
	if o.RenderMode != "" {
		req.RenderMode = crawler.ParseRenderMode(o.RenderMode)
	}
	if o.BudgetSeconds != nil {
		req.Budget = time.Duration(*o.BudgetSeconds) * time.Second
	}
	return req
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", crawler.ErrInvalidRequest, err)
	}
	return nil
}

// formatFor prefers the query parameter over the body field.
func formatFor(r *http.Request, bodyFormat string) (export.Format, error) {
	if q := r.URL.Query().Get("format"); q != "" {
		return export.ParseFormat(q)
	}
	return export.ParseFormat(bodyFormat)
}

// checkTarget rejects URLs aimed at the service's own network when private
// hosts are blocked.
func (s *Server) checkTarget(ctx context.Context, raw string) error {
	u, err := crawler.ParseSeed(raw)
	if err != nil {
		return err
	}
	if !s.opts.BlockPrivateHosts {
		return nil
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return blockedTarget(host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if blockedIP(ip) {
			return blockedTarget(host)
		}
		return nil
	}
	if s.opts.Resolver == nil {
		return nil
	}
	addrs, err := s.opts.Resolver.LookupIPAddr(ctx, host)
	if err != nil {
		// Unresolvable hosts fail at fetch time and show up in diagnostics.
		return nil
	}
	for _, addr := range addrs {
		if blockedIP(addr.IP) {
			return blockedTarget(host)
		}
	}
	return nil
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

func blockedTarget(host string) error {
	return fmt.Errorf("%w: target host %q is not allowed", crawler.ErrInvalidRequest, host)
}

func readUploads(headers []*multipart.FileHeader) ([]importer.Upload, error) {
	uploads := make([]importer.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		cerr := f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %q: %w", fh.Filename, err)
		}
		if cerr != nil {
			return nil, fmt.Errorf("close upload %q: %w", fh.Filename, cerr)
		}
		uploads = append(uploads, importer.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}
