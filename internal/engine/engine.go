// Package engine runs crawl sessions: breadth-first traversal under the
// request's scope and budgets, fetching, extraction and diagnostics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/dedup"
	"github.com/JakeFAU/sitekb-crawler/internal/diagnostics"
	"github.com/JakeFAU/sitekb-crawler/internal/extract"
	"github.com/JakeFAU/sitekb-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/sitekb-crawler/internal/robots"
	"github.com/JakeFAU/sitekb-crawler/internal/sitemap"
)

// Run kinds as reported in diagnostics and metrics.
const (
	KindPreview  = "preview"
	KindGenerate = "generate"
	KindDownload = "download"
	KindBulk     = "bulk"
)

// Config tunes the engine. Zero values pick defaults.
type Config struct {
	UserAgent string
	// Concurrency bounds in-flight pages per run.
	Concurrency int
	// PageTimeout bounds each fetch attempt.
	PageTimeout time.Duration
	// DefaultBudget is the run wall-clock budget when the request has none.
	DefaultBudget time.Duration
	MaxRetries    int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RateLimit     ratelimit.Config
	RobotsTimeout time.Duration
	Sitemap       sitemap.Config
	Dedup         dedup.Config
	// BoilerplateThreshold is the repeated-line page count; negative disables
	// the filter.
	BoilerplateThreshold int
	// PreviewRender lets previews use the request's render mode instead of
	// always fetching plainly.
	PreviewRender bool
	// BulkLimit caps the URL count accepted by Bulk.
	BulkLimit int
	Limits    crawler.Limits
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 20 * time.Second
	}
	if c.DefaultBudget <= 0 {
		c.DefaultBudget = 90 * time.Second
	}
	if c.BoilerplateThreshold == 0 {
		c.BoilerplateThreshold = 3
	}
	if c.BulkLimit <= 0 {
		c.BulkLimit = 200
	}
	if c.Limits == (crawler.Limits{}) {
		c.Limits = crawler.DefaultLimits()
	}
	return c
}

// Deps are the engine's collaborators. Fetchers must hold at least the plain
// strategy.
type Deps struct {
	Fetchers  map[crawler.RenderMode]crawler.Fetcher
	Extractor crawler.Extractor
	Store     *diagnostics.Store
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Hasher    crawler.Hasher
	// HTTPClient is used for robots.txt and sitemaps; nil builds defaults.
	HTTPClient *http.Client
	// Robots builds the per-run robots checker; nil uses robots.Gate.
	Robots func(crawler.CrawlRequest) crawler.RobotsChecker
	// Sitemaps overrides the sitemap seeder.
	Sitemaps crawler.SitemapSource
	Logger   *zap.Logger
}

// Engine executes crawl runs. It is safe for concurrent use; each call is an
// independent run, and the most recent one owns the diagnostics store.
type Engine struct {
	cfg      Config
	deps     Deps
	retry    crawler.RetryPolicy
	limiter  crawler.HostLimiter
	sitemaps crawler.SitemapSource
	logger   *zap.Logger
}

// Result is the outcome of a content-producing run.
type Result struct {
	RunID       string
	Request     crawler.CrawlRequest
	Pages       []crawler.PageResult
	Diagnostics diagnostics.Snapshot
}

// New validates deps and builds an Engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Fetchers[crawler.RenderPlain] == nil {
		return nil, errors.New("engine: plain fetcher is required")
	}
	if deps.Extractor == nil {
		return nil, errors.New("engine: extractor is required")
	}
	if deps.Store == nil {
		return nil, errors.New("engine: diagnostics store is required")
	}
	if deps.Clock == nil || deps.IDs == nil || deps.Hasher == nil {
		return nil, errors.New("engine: clock, id generator and hasher are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:     cfg,
		deps:    deps,
		retry:   crawler.NewExponentialRetryPolicy(cfg.MaxRetries, cfg.RetryBase, cfg.RetryMaxDelay),
		limiter: ratelimit.New(cfg.RateLimit),
		logger:  deps.Logger,
	}
	e.sitemaps = deps.Sitemaps
	if e.sitemaps == nil {
		smCfg := cfg.Sitemap
		if smCfg.UserAgent == "" {
			smCfg.UserAgent = cfg.UserAgent
		}
		e.sitemaps = sitemap.New(deps.HTTPClient, smCfg, deps.Logger.Named("sitemap"))
	}
	return e, nil
}

// Limits returns the bounds applied to incoming requests.
func (e *Engine) Limits() crawler.Limits {
	return e.cfg.Limits
}

// Preview discovers pages without extracting their content.
func (e *Engine) Preview(ctx context.Context, req crawler.CrawlRequest) ([]crawler.PreviewItem, diagnostics.Snapshot, error) {
	req, err := e.prepare(req)
	if err != nil {
		return nil, diagnostics.Snapshot{}, err
	}
	if !e.cfg.PreviewRender {
		req.RenderMode = crawler.RenderPlain
	}
	s, err := e.newSession(KindPreview, req)
	if err != nil {
		return nil, diagnostics.Snapshot{}, err
	}
	s.outlineOnly = true
	s.discover = true
	s.run(ctx)
	return s.previews, s.rec.Snapshot(), nil
}

// Generate crawls from the seed and extracts every accepted page.
func (e *Engine) Generate(ctx context.Context, req crawler.CrawlRequest) (Result, error) {
	req, err := e.prepare(req)
	if err != nil {
		return Result{}, err
	}
	s, err := e.newSession(KindGenerate, req)
	if err != nil {
		return Result{}, err
	}
	s.discover = true
	s.run(ctx)
	return e.result(s), nil
}

// Download fetches and extracts exactly the selected pages, typically picked
// from a preview. No links are followed and max_pages does not apply. A
// selection's title and filename replace the extracted title and the
// derived archive name.
func (e *Engine) Download(ctx context.Context, req crawler.CrawlRequest, picks []crawler.Selection) (Result, error) {
	return e.download(ctx, KindDownload, req, picks)
}

// Bulk is Download for a raw URL list without a preview step.
func (e *Engine) Bulk(ctx context.Context, req crawler.CrawlRequest, urls []string) (Result, error) {
	if len(urls) > e.cfg.BulkLimit {
		return Result{}, fmt.Errorf("%w: at most %d urls per bulk request", crawler.ErrInvalidRequest, e.cfg.BulkLimit)
	}
	picks := make([]crawler.Selection, len(urls))
	for i, raw := range urls {
		picks[i] = crawler.Selection{URL: raw}
	}
	return e.download(ctx, KindBulk, req, picks)
}

func (e *Engine) download(ctx context.Context, kind string, req crawler.CrawlRequest, picks []crawler.Selection) (Result, error) {
	entries, err := selectedEntries(picks)
	if err != nil {
		return Result{}, err
	}
	if req.SeedURL == "" {
		req.SeedURL = entries[0].URL
	}
	req.MaxPages = len(entries)
	req.MaxDepth = 0
	req, err = e.prepare(req)
	if err != nil {
		return Result{}, err
	}
	// Selected items were already scoped by the caller; only their count
	// bounds the run.
	req.MaxPages = len(entries)

	s, err := e.newSession(kind, req)
	if err != nil {
		return Result{}, err
	}
	s.selected = entries
	s.run(ctx)
	return e.result(s), nil
}

// prepare applies defaults and limits, then validates.
func (e *Engine) prepare(req crawler.CrawlRequest) (crawler.CrawlRequest, error) {
	if req.Budget == 0 {
		req.Budget = e.cfg.DefaultBudget
	}
	req = req.Clamp(e.cfg.Limits)
	if err := req.Validate(); err != nil {
		return crawler.CrawlRequest{}, err
	}
	return req, nil
}

func (e *Engine) result(s *session) Result {
	pages := s.results
	if e.cfg.BoilerplateThreshold > 0 {
		pages = extract.FilterBoilerplate(pages, e.cfg.BoilerplateThreshold)
	}
	return Result{
		RunID:       s.id,
		Request:     s.req,
		Pages:       pages,
		Diagnostics: s.rec.Snapshot(),
	}
}

func (e *Engine) fetcherFor(mode crawler.RenderMode) (crawler.Fetcher, bool) {
	if f := e.deps.Fetchers[mode]; f != nil {
		return f, true
	}
	return e.deps.Fetchers[crawler.RenderPlain], false
}

func (e *Engine) robotsFor(req crawler.CrawlRequest) crawler.RobotsChecker {
	if !req.RespectRobots {
		return robots.AllowAll{}
	}
	if e.deps.Robots != nil {
		return e.deps.Robots(req)
	}
	return robots.New(e.deps.HTTPClient, robots.Config{
		UserAgent: e.cfg.UserAgent,
		Timeout:   e.cfg.RobotsTimeout,
	}, e.logger.Named("robots"))
}

func selectedEntries(picks []crawler.Selection) ([]crawler.FrontierEntry, error) {
	var entries []crawler.FrontierEntry
	seen := make(map[string]struct{})
	for _, pick := range picks {
		u, err := crawler.ParseSeed(pick.URL)
		if err != nil {
			return nil, err
		}
		key := crawler.NormalizeParsed(u)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, crawler.FrontierEntry{
			URL:      u.String(),
			Key:      key,
			Title:    strings.TrimSpace(pick.Title),
			Filename: strings.TrimSpace(pick.Filename),
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no urls selected", crawler.ErrInvalidRequest)
	}
	return entries, nil
}
