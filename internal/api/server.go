package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/app"
	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/diagnostics"
	"github.com/JakeFAU/sitekb-crawler/internal/export"
	"github.com/JakeFAU/sitekb-crawler/internal/importer"
	"github.com/JakeFAU/sitekb-crawler/internal/metrics"
)

const (
	defaultRequestTimeout = 11 * time.Minute
	defaultMaxUploadBytes = 32 << 20
	maxUploadMemory       = 8 << 20
)

// Service is what the handlers need from the application layer.
type Service interface {
	Preview(ctx context.Context, req crawler.CrawlRequest) ([]crawler.PreviewItem, diagnostics.Snapshot, error)
	Generate(ctx context.Context, req crawler.CrawlRequest, format export.Format) (app.Output, error)
	Download(ctx context.Context, req crawler.CrawlRequest, picks []crawler.Selection, format export.Format) (app.Output, error)
	Bulk(ctx context.Context, req crawler.CrawlRequest, urls []string, format export.Format) (app.Output, error)
	Import(ctx context.Context, uploads []importer.Upload, format export.Format) (app.Output, error)
	Diagnostics() (diagnostics.Snapshot, bool)
}

// BuildInfo is reported by /version.
type BuildInfo struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

// Options configure request handling.
type Options struct {
	// Defaults fill fields a request body leaves out.
	Defaults crawler.CrawlRequest
	// APIKey, when set, is required on every /v1 route.
	APIKey string
	// BlockPrivateHosts rejects loopback, private and link-local targets.
	BlockPrivateHosts bool
	// Resolver, when set, also rejects hostnames resolving to blocked
	// addresses.
	Resolver       HostResolver
	RequestTimeout time.Duration
	// MaxUploadBytes caps a /v1/import request body.
	MaxUploadBytes int64
	Build          BuildInfo
}

// Server wires HTTP handlers to the application service.
type Server struct {
	router chi.Router
	svc    Service
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Service, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Build.App == "" {
		opts.Build.App = "sitekb-crawler"
	}
	s := &Server{svc: svc, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/version", s.version)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/preview", s.preview)
		r.Post("/generate", s.generate)
		r.Post("/download", s.download)
		r.Post("/bulk", s.bulk)
		r.Post("/import", s.importDocuments)
		r.Get("/diagnostics", s.diagnostics)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.svc == nil {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Build)
}

// writeServiceError maps application errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, crawler.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		s.logger.Info("client went away", zap.String("path", r.URL.Path))
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("internal error: %v", err))
	}
}

