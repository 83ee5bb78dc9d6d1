// Package sitemap primes a crawl frontier from a site's sitemap.xml.
package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"
)

const (
	maxSitemapBytes = 10 << 20

	urlLocExpr     = "//*[local-name()='urlset']/*[local-name()='url']/*[local-name()='loc']"
	sitemapLocExpr = "//*[local-name()='sitemapindex']/*[local-name()='sitemap']/*[local-name()='loc']"
)

// Config bounds the seeder.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxURLs caps the URLs returned by one Discover call.
	MaxURLs int
	// MaxSitemaps caps how many documents are fetched when following indexes.
	MaxSitemaps int
}

// Seeder reads /sitemap.xml and any sitemap indexes it points to.
type Seeder struct {
	client *http.Client
	cfg    Config
	logger *zap.Logger
}

// New builds a Seeder.
func New(client *http.Client, cfg Config, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = 1000
	}
	if cfg.MaxSitemaps <= 0 {
		cfg.MaxSitemaps = 20
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Seeder{client: client, cfg: cfg, logger: logger}
}

// Discover returns the page URLs listed for seedURL's host, in document
// order. Any failure yields whatever was collected so far, possibly nothing.
func (s *Seeder) Discover(ctx context.Context, seedURL string) []string {
	seed, err := url.Parse(seedURL)
	if err != nil || seed.Host == "" {
		return nil
	}
	root := (&url.URL{Scheme: seed.Scheme, Host: seed.Host, Path: "/sitemap.xml"}).String()

	var (
		pages   []string
		seen    = make(map[string]struct{})
		visited = make(map[string]struct{})
		queue   = []string{root}
	)
	for len(queue) > 0 && len(visited) < s.cfg.MaxSitemaps && len(pages) < s.cfg.MaxURLs {
		current := queue[0]
		queue = queue[1:]
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}

		doc, err := s.fetch(ctx, current)
		if err != nil {
			s.logger.Debug("sitemap unavailable", zap.String("url", current), zap.Error(err))
			continue
		}
		for _, loc := range locs(doc, sitemapLocExpr) {
			if sameHost(loc, seed.Host) {
				queue = append(queue, loc)
			}
		}
		for _, loc := range locs(doc, urlLocExpr) {
			if _, dup := seen[loc]; dup {
				continue
			}
			seen[loc] = struct{}{}
			pages = append(pages, loc)
			if len(pages) >= s.cfg.MaxURLs {
				break
			}
		}
	}
	if len(pages) > 0 {
		s.logger.Info("sitemap seeded frontier",
			zap.String("seed", seedURL), zap.Int("urls", len(pages)), zap.Int("sitemaps", len(visited)))
	}
	return pages
}

func (s *Seeder) fetch(ctx context.Context, target string) (*xmlquery.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("new sitemap request: %w", err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Debug("failed to close sitemap body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("sitemap status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return nil, fmt.Errorf("read sitemap: %w", err)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	return doc, nil
}

func locs(doc *xmlquery.Node, expr string) []string {
	nodes, err := xmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		loc := strings.TrimSpace(n.InnerText())
		if loc == "" {
			continue
		}
		u, err := url.Parse(loc)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		out = append(out, loc)
	}
	return out
}

func sameHost(rawURL, host string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && strings.EqualFold(u.Host, host)
}
