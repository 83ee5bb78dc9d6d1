// Package collyfetcher implements the plain fetch strategy using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	MaxBodySize  int
	// Transport overrides the pooled default, mainly for tests.
	Transport http.RoundTripper
}

// Fetcher implements crawler.Fetcher with one cloned collector per request.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Settings that live on colly's shared HTTP backend
// (timeout, transport, redirect policy) are applied once here.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 10 << 20
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.ParseHTTPErrorResponse = true

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)
	c.SetRedirectHandler(redirectLimit(cfg.MaxRedirects))

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// fetchOutcome is owned by the goroutine running the visit until it is sent.
type fetchOutcome struct {
	resp     crawler.FetchResponse
	hookErr  error
	visitErr error
}

// Fetch executes a single HTTP GET. The request is bound to ctx, so
// cancelling it also aborts the transfer.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	collector := f.baseCollector.Clone()
	collector.Context = ctx

	done := make(chan fetchOutcome, 1)
	go func() {
		var out fetchOutcome
		f.configureCollectorHooks(collector, request, time.Now(), &out.resp, &out.hookErr)
		out.visitErr = collector.Visit(request.URL)
		done <- out
	}()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case out := <-done:
		if out.hookErr != nil {
			return crawler.FetchResponse{}, fmt.Errorf("colly response failed: %w", out.hookErr)
		}
		if out.visitErr != nil {
			return crawler.FetchResponse{}, fmt.Errorf("colly visit failed: %w", out.visitErr)
		}
		return out.resp, nil
	}
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		finalURL := request.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			*fetchErr = &crawler.StatusError{Code: r.StatusCode, URL: finalURL}
			return
		}
		if !isHTML(headers.Get("Content-Type")) {
			*fetchErr = fmt.Errorf("%w: %s", crawler.ErrNonHTML, headers.Get("Content-Type"))
			return
		}
		*result = crawler.FetchResponse{
			URL:        finalURL,
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		if *fetchErr == nil {
			*fetchErr = err
		}
	})
}

func redirectLimit(limit int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return fmt.Errorf("%w after %d hops", crawler.ErrRedirectLimit, len(via))
		}
		return nil
	}
}

// isHTML accepts an empty content type; servers omitting it are usually serving pages.
func isHTML(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
