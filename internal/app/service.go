// Package app holds the long-lived services shared by the HTTP API and the
// CLI: the crawl engine, the export assembler and the optional bundle store.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/diagnostics"
	"github.com/JakeFAU/sitekb-crawler/internal/engine"
	"github.com/JakeFAU/sitekb-crawler/internal/export"
	"github.com/JakeFAU/sitekb-crawler/internal/importer"
)

// Output is a finished bundle plus the run that produced it. Imports have no
// run, so RunID and Diagnostics stay empty.
type Output struct {
	RunID       string
	Bundle      export.Bundle
	PagesCount  int
	Diagnostics diagnostics.Snapshot
	// StoredURI is set when the bundle was persisted to the blob store.
	StoredURI string
}

// Options are the collaborators of a Service.
type Options struct {
	Engine *engine.Engine
	Store  *diagnostics.Store
	// Blobs persists generated bundles; nil disables persistence.
	Blobs crawler.BlobStore
	// Importer converts uploads; nil builds a default one.
	Importer *importer.Importer
	Clock    crawler.Clock
	Logger   *zap.Logger
}

// Service runs crawls and assembles their bundles.
type Service struct {
	engine   *engine.Engine
	store    *diagnostics.Store
	blobs    crawler.BlobStore
	importer *importer.Importer
	clock    crawler.Clock
	logger   *zap.Logger
	closers  []func() error
}

// NewService validates opts and builds a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, errors.New("app: engine is required")
	}
	if opts.Store == nil {
		return nil, errors.New("app: diagnostics store is required")
	}
	if opts.Clock == nil {
		return nil, errors.New("app: clock is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Importer == nil {
		opts.Importer = importer.New(nil, opts.Logger.Named("importer"))
	}
	return &Service{
		engine:   opts.Engine,
		store:    opts.Store,
		blobs:    opts.Blobs,
		importer: opts.Importer,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}, nil
}

// Limits returns the bounds applied to incoming requests.
func (s *Service) Limits() crawler.Limits {
	return s.engine.Limits()
}

// Preview lists the pages a crawl would produce without extracting them.
func (s *Service) Preview(ctx context.Context, req crawler.CrawlRequest) ([]crawler.PreviewItem, diagnostics.Snapshot, error) {
	return s.engine.Preview(ctx, req)
}

// Generate crawls from the seed and returns the bundle in format.
func (s *Service) Generate(ctx context.Context, req crawler.CrawlRequest, format export.Format) (Output, error) {
	res, err := s.engine.Generate(ctx, req)
	if err != nil {
		return Output{}, err
	}
	return s.assemble(ctx, res, format)
}

// Download fetches exactly the selected pages and returns their bundle.
func (s *Service) Download(ctx context.Context, req crawler.CrawlRequest, picks []crawler.Selection, format export.Format) (Output, error) {
	res, err := s.engine.Download(ctx, req, picks)
	if err != nil {
		return Output{}, err
	}
	return s.assemble(ctx, res, format)
}

// Bulk is Download for an ad hoc URL list.
func (s *Service) Bulk(ctx context.Context, req crawler.CrawlRequest, urls []string, format export.Format) (Output, error) {
	res, err := s.engine.Bulk(ctx, req, urls)
	if err != nil {
		return Output{}, err
	}
	return s.assemble(ctx, res, format)
}

// Import converts uploaded files into a bundle. It fails with
// crawler.ErrInvalidRequest when nothing readable was uploaded.
func (s *Service) Import(ctx context.Context, uploads []importer.Upload, format export.Format) (Output, error) {
	if len(uploads) == 0 {
		return Output{}, fmt.Errorf("%w: no files uploaded", crawler.ErrInvalidRequest)
	}
	docs := s.importer.Parse(uploads)
	if len(docs) == 0 {
		return Output{}, fmt.Errorf("%w: uploaded files could not be parsed into documents", crawler.ErrInvalidRequest)
	}
	if !importer.HasContent(docs) {
		return Output{}, fmt.Errorf("%w: uploaded files did not contain readable content", crawler.ErrInvalidRequest)
	}

	bundle, err := export.Build(format, export.Meta{
		GeneratedAt: s.clock.Now(),
		Title:       "Imported documents",
		Label:       importer.Host,
	}, importer.Pages(docs))
	if err != nil {
		return Output{}, fmt.Errorf("build %s bundle: %w", format, err)
	}
	s.logger.Info("documents imported",
		zap.Int("files", len(uploads)), zap.Int("documents", len(docs)), zap.String("format", string(format)))

	out := Output{Bundle: bundle, PagesCount: len(docs)}
	out.StoredURI = s.persist(ctx, path.Join("imports", bundle.Filename), bundle)
	return out, nil
}

// Diagnostics returns the snapshot of the most recent run.
func (s *Service) Diagnostics() (diagnostics.Snapshot, bool) {
	return s.store.Latest()
}

// Close releases fetchers and storage clients.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// assemble always produces a bundle once a run started. Pages that failed
// render as placeholders and an empty run yields a document saying so; the
// page count travels in the diagnostics.
func (s *Service) assemble(ctx context.Context, res engine.Result, format export.Format) (Output, error) {
	out := Output{RunID: res.RunID, PagesCount: res.Diagnostics.PagesCount, Diagnostics: res.Diagnostics}
	if res.Diagnostics.PagesCount == 0 {
		s.logger.Warn("run produced no content",
			zap.String("run_id", res.RunID),
			zap.Int("errors", len(res.Diagnostics.Errors)),
			zap.Int("skipped_links", res.Diagnostics.SkippedLinks))
	}

	bundle, err := export.Build(format, export.Meta{
		RunID:       res.RunID,
		SeedURL:     res.Request.SeedURL,
		GeneratedAt: s.clock.Now(),
		TimedOut:    res.Diagnostics.TimedOut,
	}, res.Pages)
	if err != nil {
		return out, fmt.Errorf("build %s bundle: %w", format, err)
	}
	out.Bundle = bundle
	out.StoredURI = s.persist(ctx, path.Join("runs", res.RunID, bundle.Filename), bundle)
	return out, nil
}

// persist stores bundle under key and returns its URI, or "" when storage
// is disabled or failed. The caller still gets the bundle inline.
func (s *Service) persist(ctx context.Context, key string, bundle export.Bundle) string {
	if s.blobs == nil {
		return ""
	}
	uri, err := s.blobs.PutObject(ctx, key, bundle.ContentType, bytes.NewReader(bundle.Data))
	if err != nil {
		s.logger.Warn("failed to persist bundle", zap.String("key", key), zap.Error(err))
		return ""
	}
	s.logger.Info("bundle persisted", zap.String("uri", uri))
	return uri
}
