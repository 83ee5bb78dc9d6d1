// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                    *prometheus.CounterVec
	bytesTotal                    *prometheus.CounterVec
	skippedLinksTotal             *prometheus.CounterVec
	runsTotal                     *prometheus.CounterVec
	runDurationSeconds            *prometheus.HistogramVec
	activeRuns                    prometheus.Gauge
	robotsFetchTotal              *prometheus.CounterVec
	probeTLSHandshakeTimeoutTotal prometheus.Counter
	headlessPromotionsTotal       prometheus.Counter
	rateLimitDelaySeconds         *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once, and every
// Observe helper calls it, so callers never see nil collectors.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitekb_pages_total",
				Help: "Pages processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitekb_fetch_bytes_total",
				Help: "Bytes of markup fetched, labeled by site.",
			},
			[]string{"site"},
		)

		skippedLinksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitekb_skipped_links_total",
				Help: "Links skipped by policy or robots, labeled by reason.",
			},
			[]string{"reason"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitekb_runs_total",
				Help: "Finished runs, labeled by kind and terminal state.",
			},
			[]string{"kind", "state"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitekb_run_duration_seconds",
				Help:    "Wall-clock duration of runs, labeled by kind.",
				Buckets: []float64{1, 5, 15, 30, 60, 90, 180, 300},
			},
			[]string{"kind"},
		)

		activeRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitekb_active_runs",
				Help: "Runs currently in progress.",
			},
		)

		robotsFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitekb_robots_fetch_total",
				Help: "robots.txt fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		probeTLSHandshakeTimeoutTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitekb_probe_tls_handshake_timeout_total",
				Help: "TLS handshake timeouts encountered while probing robots.txt.",
			},
		)

		headlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitekb_headless_promotions_total",
				Help: "Plain fetches promoted to a rendered fetch.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitekb_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 90},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage counts a processed page and the bytes fetched for it.
func ObservePage(site string, outcome string, bytesFetched int) {
	Init()
	sanitized := SanitizeSite(site)
	pagesTotal.WithLabelValues(sanitized, outcome).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveSkipped counts a skipped link.
func ObserveSkipped(reason string) {
	Init()
	skippedLinksTotal.WithLabelValues(reason).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(kind, state string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(kind, state).Inc()
	runDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	Init()
	activeRuns.Inc()
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	Init()
	activeRuns.Dec()
}

// ObserveRobots counts a robots.txt fetch outcome.
func ObserveRobots(outcome string) {
	Init()
	robotsFetchTotal.WithLabelValues(outcome).Inc()
}

// ObserveProbeTLSHandshakeTimeout increments the robots handshake timeout counter.
func ObserveProbeTLSHandshakeTimeout() {
	Init()
	probeTLSHandshakeTimeoutTotal.Inc()
}

// ObserveHeadlessPromotion counts a plain fetch promoted to rendering.
func ObserveHeadlessPromotion() {
	Init()
	headlessPromotionsTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
