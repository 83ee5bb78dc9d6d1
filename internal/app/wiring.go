package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/clock/system"
	"github.com/JakeFAU/sitekb-crawler/internal/config"
	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/dedup"
	"github.com/JakeFAU/sitekb-crawler/internal/diagnostics"
	"github.com/JakeFAU/sitekb-crawler/internal/engine"
	"github.com/JakeFAU/sitekb-crawler/internal/extract"
	"github.com/JakeFAU/sitekb-crawler/internal/fetcher/auto"
	collyfetcher "github.com/JakeFAU/sitekb-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/sitekb-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/sitekb-crawler/internal/hash/sha256"
	"github.com/JakeFAU/sitekb-crawler/internal/headless/detector"
	"github.com/JakeFAU/sitekb-crawler/internal/id/uuid"
	"github.com/JakeFAU/sitekb-crawler/internal/importer"
	"github.com/JakeFAU/sitekb-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/sitekb-crawler/internal/robots"
	"github.com/JakeFAU/sitekb-crawler/internal/sitemap"
	"github.com/JakeFAU/sitekb-crawler/internal/storage/gcs"
	"github.com/JakeFAU/sitekb-crawler/internal/storage/local"
	"github.com/JakeFAU/sitekb-crawler/internal/storage/memory"
)

// New wires a Service from configuration. It fails fast when a configured
// backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing application services")

	clock := system.New()
	store := diagnostics.NewStore(clock)
	var closers []func() error

	fetchers, fetcherClosers, err := buildFetchers(cfg, logger)
	if err != nil {
		return nil, err
	}
	closers = append(closers, fetcherClosers...)

	auxClient := &http.Client{
		Timeout:   time.Duration(cfg.Crawler.RobotsTimeoutSeconds) * time.Second,
		Transport: robots.NewRetryTransport(http.DefaultTransport),
	}
	base, maxDelay := cfg.RetryBackoff()
	dedupCfg := dedup.DefaultConfig()
	if cfg.Crawler.DedupWindowMinutes > 0 {
		dedupCfg.LifeWindow = time.Duration(cfg.Crawler.DedupWindowMinutes) * time.Minute
	}

	extractor := extract.New(logger.Named("extract"))
	eng, err := engine.New(engine.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		Concurrency:   cfg.Crawler.Concurrency,
		PageTimeout:   time.Duration(cfg.Crawler.PageTimeoutSeconds) * time.Second,
		DefaultBudget: cfg.Budget(),
		MaxRetries:    cfg.HTTP.MaxRetries,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		RateLimit:     ratelimit.Config{RPS: cfg.Crawler.PerHostRPS, Burst: cfg.Crawler.PerHostBurst},
		RobotsTimeout: time.Duration(cfg.Crawler.RobotsTimeoutSeconds) * time.Second,
		Sitemap: sitemap.Config{
			UserAgent: cfg.Crawler.UserAgent,
			MaxURLs:   cfg.Crawler.SitemapMaxURLs,
		},
		Dedup:                dedupCfg,
		BoilerplateThreshold: cfg.Crawler.BoilerplateThreshold,
		PreviewRender:        cfg.Crawler.PreviewRender,
		BulkLimit:            cfg.Crawler.BulkLimit,
		Limits:               cfg.Limits(),
	}, engine.Deps{
		Fetchers:   fetchers,
		Extractor:  extractor,
		Store:      store,
		Clock:      clock,
		IDs:        uuid.New(),
		Hasher:     sha256.New(),
		HTTPClient: auxClient,
		Logger:     logger.Named("engine"),
	})
	if err != nil {
		closeAll(closers, logger)
		return nil, fmt.Errorf("build engine: %w", err)
	}

	blobs, blobCloser, err := buildBlobStore(ctx, cfg.Storage, logger)
	if err != nil {
		closeAll(closers, logger)
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	if blobCloser != nil {
		closers = append(closers, blobCloser)
	}

	svc, err := NewService(Options{
		Engine:   eng,
		Store:    store,
		Blobs:    blobs,
		Importer: importer.New(extractor, logger.Named("importer")),
		Clock:    clock,
		Logger:   logger.Named("service"),
	})
	if err != nil {
		closeAll(closers, logger)
		return nil, err
	}
	svc.closers = closers
	logger.Info("application services initialized",
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.String("storage", cfg.Storage.Backend))
	return svc, nil
}

func buildFetchers(cfg config.Config, logger *zap.Logger) (map[crawler.RenderMode]crawler.Fetcher, []func() error, error) {
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		MaxRedirects: cfg.HTTP.MaxRedirects,
		MaxBodySize:  cfg.HTTP.MaxBodyBytes,
	})
	fetchers := map[crawler.RenderMode]crawler.Fetcher{crawler.RenderPlain: plain}
	if !cfg.Headless.Enabled {
		return fetchers, nil, nil
	}

	rendered, err := headless.New(headless.Config{
		MaxTabs:           cfg.Headless.MaxParallel,
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSeconds) * time.Second,
		SettleDelay:       cfg.SettleDelay(),
		ExecPath:          cfg.Headless.ExecPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize headless fetcher: %w", err)
	}
	fetchers[crawler.RenderRendered] = rendered
	fetchers[crawler.RenderAuto] = auto.New(plain, rendered,
		detector.NewHeuristic(cfg.Headless.PromotionThreshold), logger.Named("auto"))

	closeBrowser := func() error {
		rendered.Close()
		return nil
	}
	return fetchers, []func() error{closeBrowser}, nil
}

func buildBlobStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (crawler.BlobStore, func() error, error) {
	switch cfg.Backend {
	case config.StorageNone, "":
		logger.Info("bundle persistence disabled")
		return nil, nil, nil
	case config.StorageMemory:
		logger.Info("using in-memory bundle store")
		return memory.NewBlobStore(), nil, nil
	case config.StorageLocal:
		logger.Info("using local bundle store", zap.String("base_dir", cfg.Local.BaseDir))
		store, err := local.New(cfg.Local)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.StorageGCS:
		logger.Info("using GCS bundle store", zap.String("bucket", cfg.GCS.Bucket))
		store, err := gcs.Open(ctx, cfg.GCS, logger.Named("gcs"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func closeAll(closers []func() error, logger *zap.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("failed to release resource", zap.Error(err))
		}
	}
}
