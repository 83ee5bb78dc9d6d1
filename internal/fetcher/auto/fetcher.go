// Package auto probes pages with a plain fetch and re-renders the ones that
// turn out to be JavaScript shells.
package auto

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/metrics"
)

// Fetcher chains a plain and a rendered crawler.Fetcher.
type Fetcher struct {
	plain    crawler.Fetcher
	rendered crawler.Fetcher
	detector crawler.HeadlessDetector
	logger   *zap.Logger
}

// New builds an auto Fetcher. A nil rendered fetcher or detector makes it
// behave exactly like plain.
func New(plain, rendered crawler.Fetcher, detector crawler.HeadlessDetector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{plain: plain, rendered: rendered, detector: detector, logger: logger}
}

// Fetch returns the plain response unless the detector asks for promotion.
// A failed render falls back to the probe.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	probe, err := f.plain.Fetch(ctx, request)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("plain probe: %w", err)
	}
	if f.rendered == nil || f.detector == nil || !f.detector.ShouldPromote(probe) {
		return probe, nil
	}

	metrics.ObserveHeadlessPromotion()
	rendered, err := f.rendered.Fetch(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, fmt.Errorf("rendered fetch: %w", err)
		}
		f.logger.Warn("render failed, keeping plain probe",
			zap.String("url", request.URL), zap.Error(err))
		return probe, nil
	}
	return rendered, nil
}
