// Package headless renders pages in headless Chrome through chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSettleDelay       = 750 * time.Millisecond
)

var errBrowserClosed = errors.New("headless browser closed")

// Config controls the rendered fetch strategy.
type Config struct {
	// MaxTabs bounds concurrently open tabs; 0 means unbounded.
	MaxTabs           int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is how long scripts get to run after the body is ready.
	SettleDelay time.Duration
	// ExecPath overrides Chrome discovery.
	ExecPath string
}

// Fetcher implements crawler.Fetcher by rendering each page in its own tab.
type Fetcher struct {
	cfg   Config
	tabs  chan struct{}
	alloc context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// New starts a browser allocator. Chrome itself launches lazily on the
// first Fetch.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxTabs < 0 {
		return nil, fmt.Errorf("max tabs must be >= 0, got %d", cfg.MaxTabs)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}

	var tabs chan struct{}
	if cfg.MaxTabs > 0 {
		tabs = make(chan struct{}, cfg.MaxTabs)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	alloc, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{cfg: cfg, tabs: tabs, alloc: alloc, cancel: cancel}, nil
}

// Close shuts the browser down. Fetches after Close fail.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.cancel()
}

// Fetch navigates to the URL and returns the DOM after scripts settle.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if f.isClosed() {
		return crawler.FetchResponse{}, errBrowserClosed
	}
	if err := f.acquire(ctx); err != nil {
		return crawler.FetchResponse{}, err
	}
	defer f.release()

	tabCtx, closeTab := chromedp.NewContext(f.alloc)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	// The tab context descends from the allocator, so the caller's
	// cancellation has to be forwarded by hand.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := newDocumentMeta()
	chromedp.ListenTarget(tabCtx, doc.observe)

	start := time.Now()
	html, location, err := f.render(tabCtx, request)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, fmt.Errorf("render canceled: %w", ctx.Err())
		}
		return crawler.FetchResponse{}, err
	}

	status, headers, finalURL := doc.resolve(request.URL, location)
	if status < 200 || status > 299 {
		return crawler.FetchResponse{}, &crawler.StatusError{Code: status, URL: finalURL}
	}

	return crawler.FetchResponse{
		URL:          finalURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (f *Fetcher) render(ctx context.Context, request crawler.FetchRequest) (string, string, error) {
	var html, location string
	actions := []chromedp.Action{
		f.prepareTab(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if f.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.SettleDelay))
	}
	actions = append(actions,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("render %s: %w", request.URL, err)
	}
	return html, location, nil
}

func (f *Fetcher) prepareTab(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(networkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.tabs == nil {
		return nil
	}
	select {
	case f.tabs <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for browser tab: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.tabs == nil {
		return
	}
	<-f.tabs
}

// documentMeta records the main document response seen by the tab.
type documentMeta struct {
	mu      sync.Mutex
	status  int
	headers http.Header
	url     string
}

func newDocumentMeta() *documentMeta {
	return &documentMeta{headers: http.Header{}}
}

func (m *documentMeta) observe(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.record(resp)
	}
}

func (m *documentMeta) record(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

// resolve falls back to the browser location and then the request URL when
// no document response was observed, treating the page as a 200.
func (m *documentMeta) resolve(requestURL, location string) (int, http.Header, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	url := m.url
	if url == "" {
		url = location
	}
	if url == "" {
		url = requestURL
	}
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return status, m.headers.Clone(), url
}

func networkHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			out[key] = values[0]
		default:
			out[key] = append([]string(nil), values...)
		}
	}
	return out
}
