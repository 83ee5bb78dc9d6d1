package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/dedup"
	"github.com/JakeFAU/sitekb-crawler/internal/diagnostics"
	"github.com/JakeFAU/sitekb-crawler/internal/export"
	"github.com/JakeFAU/sitekb-crawler/internal/frontier"
	"github.com/JakeFAU/sitekb-crawler/internal/metrics"
	"github.com/JakeFAU/sitekb-crawler/internal/policy/scope"
)

// session is the state of one run. Everything except visit runs on the
// goroutine that called run.
type session struct {
	e        *Engine
	id       string
	kind     string
	req      crawler.CrawlRequest
	rec      *diagnostics.Run
	policy   *scope.Policy
	frontier *frontier.Frontier
	robots   crawler.RobotsChecker
	fetcher  crawler.Fetcher
	dedup    *dedup.Cache
	namer    *export.Namer
	logger   *zap.Logger

	discover    bool
	outlineOnly bool
	selected    []crawler.FrontierEntry

	pages    int
	results  []crawler.PageResult
	previews []crawler.PreviewItem
}

// outcome is what a worker reports back for one frontier entry.
type outcome struct {
	entry      crawler.FrontierEntry
	resp       crawler.FetchResponse
	extraction crawler.Extraction
	outline    crawler.Outline
	err        error
	disallowed bool
	abandoned  bool
	elapsed    time.Duration
}

func (e *Engine) newSession(kind string, req crawler.CrawlRequest) (*session, error) {
	policy, err := scope.New(req)
	if err != nil {
		return nil, err
	}
	id, err := e.deps.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("allocate run id: %w", err)
	}
	fetcher, exact := e.fetcherFor(req.RenderMode)

	s := &session{
		e:        e,
		id:       id,
		kind:     kind,
		req:      req,
		rec:      e.deps.Store.Begin(id, kind, req.SeedURL),
		policy:   policy,
		frontier: frontier.New(req.MaxPages * 8),
		robots:   e.robotsFor(req),
		fetcher:  fetcher,
		namer:    export.NewNamer(),
		logger:   e.logger.With(zap.String("run_id", id), zap.String("kind", kind)),
	}
	if !exact {
		s.rec.Note("render mode %q unavailable, using plain fetches", req.RenderMode)
	}
	return s, nil
}

func (s *session) run(parent context.Context) {
	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, s.req.Budget)
	defer cancel()

	if !s.outlineOnly {
		cache, err := dedup.New(ctx, s.e.deps.Hasher, s.e.cfg.Dedup)
		if err != nil {
			s.rec.Note("content dedup disabled: %v", err)
		} else {
			s.dedup = cache
			defer func() {
				if err := cache.Close(); err != nil {
					s.logger.Debug("failed to close dedup cache", zap.Error(err))
				}
			}()
		}
	}

	s.logger.Info("run started",
		zap.String("seed", s.req.SeedURL),
		zap.Int("max_pages", s.req.MaxPages),
		zap.Int("max_depth", s.req.MaxDepth),
		zap.String("render_mode", string(s.req.RenderMode)),
		zap.Duration("budget", s.req.Budget))

	s.seed(ctx)
	s.rec.SetState(diagnostics.StateRunning)
	s.loop(ctx)

	// A cancelled caller is not a spent budget.
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil
	switch {
	case timedOut:
		s.rec.Note("run budget of %s exhausted with %d urls still queued", s.req.Budget, s.frontier.Len())
	case parent.Err() != nil:
		s.rec.Note("run cancelled by caller with %d urls still queued", s.frontier.Len())
	}
	s.rec.Finish(timedOut)

	snap := s.rec.Snapshot()
	metrics.ObserveRun(s.kind, string(snap.State), time.Since(start))
	s.logger.Info("run finished",
		zap.String("state", string(snap.State)),
		zap.Int("pages", snap.PagesCount),
		zap.Int("thin_pages", snap.ThinPagesCount),
		zap.Int("skipped_links", snap.SkippedLinks),
		zap.Int("errors", len(snap.Errors)),
		zap.Duration("elapsed", time.Since(start)))
}

func (s *session) seed(ctx context.Context) {
	if s.selected != nil {
		for _, entry := range s.selected {
			s.frontier.Push(entry)
		}
		return
	}
	s.offer(s.req.SeedURL, 0, "")
	if !s.req.UseSitemap || !s.discover {
		return
	}
	urls := s.e.sitemaps.Discover(ctx, s.req.SeedURL)
	queued := 0
	for _, raw := range urls {
		if s.offer(raw, 1, "sitemap") {
			queued++
		}
	}
	s.rec.Note("sitemap listed %d urls, %d queued", len(urls), queued)
}

// offer runs rawURL through the scope policy and queues it when accepted.
func (s *session) offer(rawURL string, depth int, from string) bool {
	key, reason := s.policy.Accept(rawURL, depth, s.frontier, s.pages)
	if reason != scope.Accepted {
		if reason.Counted() {
			s.skip(string(reason))
		}
		return false
	}
	return s.frontier.Push(crawler.FrontierEntry{URL: key, Key: key, Depth: depth, From: from})
}

func (s *session) skip(reason string) {
	s.rec.Skipped(1)
	metrics.ObserveSkipped(reason)
}

func (s *session) loop(ctx context.Context) {
	for s.pages < s.req.MaxPages && s.frontier.Len() > 0 {
		if ctx.Err() != nil {
			return
		}
		n := min(s.e.cfg.Concurrency, s.req.MaxPages-s.pages)
		batch := s.recheck(s.frontier.PopN(n))
		for _, o := range s.visitAll(ctx, batch) {
			s.apply(o)
		}
	}
}

// recheck re-applies the stateless scope rules to popped entries. Selected
// downloads bypass scope.
func (s *session) recheck(batch []crawler.FrontierEntry) []crawler.FrontierEntry {
	if s.selected != nil {
		return batch
	}
	kept := batch[:0]
	for _, entry := range batch {
		u, err := url.Parse(entry.URL)
		if err != nil {
			s.skip(string(scope.RejectInvalid))
			continue
		}
		if reason := s.policy.Check(u, entry.Depth); reason != scope.Accepted {
			s.skip(string(reason))
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}

// visitAll processes a batch concurrently and returns outcomes in batch
// order, which keeps results and link discovery breadth-first.
func (s *session) visitAll(ctx context.Context, batch []crawler.FrontierEntry) []outcome {
	outcomes := make([]outcome, len(batch))
	var g errgroup.Group
	g.SetLimit(s.e.cfg.Concurrency)
	for i, entry := range batch {
		g.Go(func() error {
			outcomes[i] = s.visit(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *session) visit(ctx context.Context, entry crawler.FrontierEntry) (o outcome) {
	o.entry = entry
	start := time.Now()
	defer func() { o.elapsed = time.Since(start) }()

	if !s.robots.Allowed(ctx, entry.URL) {
		o.disallowed = true
		return o
	}
	if err := s.e.limiter.Wait(ctx, entry.URL); err != nil {
		o.err = err
		o.abandoned = ctx.Err() != nil
		return o
	}
	resp, err := s.fetch(ctx, entry)
	if err != nil {
		o.err = err
		o.abandoned = ctx.Err() != nil
		return o
	}
	o.resp = resp

	if s.outlineOnly {
		o.outline, err = s.e.deps.Extractor.Outline(resp.Body, resp.URL)
	} else {
		o.extraction, err = s.e.deps.Extractor.Extract(resp.Body, resp.URL, s.req.ExtractOptions())
	}
	if err != nil {
		o.err = fmt.Errorf("extract: %w", err)
	}
	return o
}

// fetch performs one fetch with a per-attempt timeout and retries
// transient failures.
func (s *session) fetch(ctx context.Context, entry crawler.FrontierEntry) (crawler.FetchResponse, error) {
	request := crawler.FetchRequest{URL: entry.URL, Depth: entry.Depth}
	for attempt := 0; ; attempt++ {
		pageCtx, cancel := context.WithTimeout(ctx, s.e.cfg.PageTimeout)
		resp, err := s.fetcher.Fetch(pageCtx, request)
		cancel()
		if err == nil {
			if resp.URL == "" {
				resp.URL = entry.URL
			}
			return resp, nil
		}
		if ctx.Err() != nil || !s.e.retry.ShouldRetry(err, attempt) {
			return crawler.FetchResponse{}, err
		}
		delay := s.e.retry.Backoff(attempt)
		s.logger.Debug("retrying fetch",
			zap.String("url", entry.URL), zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay), zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return crawler.FetchResponse{}, err
		case <-timer.C:
		}
	}
}

// apply folds an outcome into the run. It is the only place counters,
// results and the frontier change after seeding.
func (s *session) apply(o outcome) {
	entry := o.entry
	record := diagnostics.PageRecord{URL: entry.URL, ElapsedMS: o.elapsed.Milliseconds()}

	switch {
	case o.disallowed:
		s.skip("robots")
		record.Reason = "robots"
		s.rec.Page(record)
		return
	case o.abandoned:
		s.rec.Note("%s abandoned: run stopped before it finished", entry.URL)
		return
	case o.err != nil:
		s.fail(entry, o, record)
		return
	}

	resp := o.resp
	record.FinalURL = resp.URL
	record.Status = resp.StatusCode
	record.ContentType = resp.ContentType()
	record.Bytes = len(resp.Body)

	if reason := s.followRedirect(entry, resp.URL); reason != "" {
		record.Reason = reason
		s.rec.Page(record)
		return
	}

	title, links, canonical := o.extraction.Title, o.extraction.Links, o.extraction.Canonical
	if s.outlineOnly {
		title, links, canonical = o.outline.Title, o.outline.Links, o.outline.Canonical
	}
	s.markCanonical(canonical, entry.Depth)

	if !s.outlineOnly && s.dedup != nil {
		first, dup, err := s.dedup.Check(o.extraction.Markdown, resp.URL)
		if err != nil {
			s.logger.Debug("dedup check failed", zap.String("url", resp.URL), zap.Error(err))
		}
		if dup {
			s.rec.Note("%s has the same content as %s", resp.URL, first)
			record.Reason = "duplicate content"
			s.rec.Page(record)
			return
		}
	}

	s.pages++
	thin := !s.outlineOnly && o.extraction.Thin
	s.rec.PageDone(thin)
	record.Reason = "ok"
	if thin {
		record.Reason = "thin"
	}
	s.rec.Page(record)
	metrics.ObservePage(resp.URL, record.Reason, len(resp.Body))

	host, path := crawler.HostPath(resp.URL)
	if s.outlineOnly {
		s.previews = append(s.previews, crawler.PreviewItem{
			URL:               resp.URL,
			Host:              host,
			Path:              path,
			Title:             title,
			SuggestedFilename: s.namer.Assign(host, path),
		})
	} else {
		if entry.Title != "" {
			title = entry.Title
		}
		s.results = append(s.results, crawler.PageResult{
			URL:          entry.URL,
			FinalURL:     resp.URL,
			Host:         host,
			Path:         path,
			Title:        title,
			Filename:     entry.Filename,
			Markdown:     o.extraction.Markdown,
			TextLength:   o.extraction.TextLength,
			RawSize:      len(resp.Body),
			Thin:         o.extraction.Thin,
			UsedFallback: o.extraction.UsedFallback,
			UsedHeadless: resp.UsedHeadless,
			Depth:        entry.Depth,
			Links:        links,
		})
	}
	s.logger.Debug("page done",
		zap.String("url", resp.URL), zap.Int("depth", entry.Depth),
		zap.Int("links", len(links)), zap.Bool("thin", thin))

	if s.discover {
		for _, link := range links {
			s.offer(link, entry.Depth+1, entry.URL)
		}
	}
}

func (s *session) fail(entry crawler.FrontierEntry, o outcome, record diagnostics.PageRecord) {
	reason := failureReason(o.err)
	record.Reason = reason
	record.FinalURL = o.resp.URL
	record.Status = o.resp.StatusCode
	record.Bytes = len(o.resp.Body)
	var statusErr *crawler.StatusError
	if errors.As(o.err, &statusErr) {
		record.Status = statusErr.Code
	}
	s.rec.Error(entry.URL, reason)
	s.rec.Page(record)
	metrics.ObservePage(entry.URL, "error", len(o.resp.Body))
	s.logger.Warn("page failed", zap.String("url", entry.URL), zap.String("reason", reason), zap.Error(o.err))

	if !s.outlineOnly {
		host, path := crawler.HostPath(entry.URL)
		s.results = append(s.results, crawler.PageResult{
			URL:      entry.URL,
			Host:     host,
			Path:     path,
			Title:    entry.Title,
			Depth:    entry.Depth,
			Filename: entry.Filename,
			Err:      reason,
		})
	}
}

// followRedirect records the final URL of a redirected fetch as visited.
// It returns a non-empty reason when the page must not be emitted.
func (s *session) followRedirect(entry crawler.FrontierEntry, finalURL string) string {
	u, err := url.Parse(finalURL)
	if err != nil || u.Host == "" {
		return ""
	}
	key := crawler.NormalizeParsed(u)
	if key == entry.Key {
		return ""
	}
	if s.selected == nil {
		switch s.policy.Check(u, entry.Depth) {
		case scope.RejectHost, scope.RejectScheme, scope.RejectPath:
			s.skip("redirect")
			return "redirected out of scope"
		}
		if s.frontier.Seen(key) {
			return "redirect to known url"
		}
	}
	s.frontier.MarkSeen(key)
	return ""
}

func (s *session) markCanonical(canonical string, depth int) {
	if canonical == "" || s.selected != nil {
		return
	}
	u, err := url.Parse(canonical)
	if err != nil || s.policy.Check(u, depth) != scope.Accepted {
		return
	}
	s.frontier.MarkSeen(canonical)
}

// failureReason turns a fetch or extraction error into a diagnostics reason.
func failureReason(err error) string {
	var statusErr *crawler.StatusError
	var netErr net.Error
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("%s (status %d)", statusErr.Reason(), statusErr.Code)
	case errors.Is(err, crawler.ErrNonHTML):
		return crawler.ErrNonHTML.Error()
	case errors.Is(err, crawler.ErrRedirectLimit):
		return crawler.ErrRedirectLimit.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return err.Error()
	}
}
