// Package robots answers robots.txt questions for a crawl run.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/sitekb-crawler/internal/metrics"
)

const maxRobotsBytes = 1 << 20

// Config controls the gate.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Gate fetches robots.txt once per host and caches the compiled rules for
// the lifetime of the gate. Unreachable or non-2xx robots files allow
// everything.
type Gate struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu     sync.RWMutex
	groups map[string]*robotstxt.Group
	flight singleflight.Group

	fetches atomic.Int64
}

// New builds a Gate. A nil client gets a default one wrapped in the
// handshake-retrying transport.
func New(client *http.Client, cfg Config, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: NewRetryTransport(http.DefaultTransport),
		}
	}
	return &Gate{
		client:    client,
		userAgent: cfg.UserAgent,
		logger:    logger,
		groups:    make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether the gate's user agent may fetch rawURL.
func (g *Gate) Allowed(ctx context.Context, rawURL string) bool {
	if g == nil {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return true
	}
	group := g.groupFor(ctx, parsed)
	if group == nil {
		return true
	}
	target := parsed.EscapedPath()
	if target == "" {
		target = "/"
	}
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	return group.Test(target)
}

// Fetches returns how many robots.txt documents were requested.
func (g *Gate) Fetches() int64 {
	return g.fetches.Load()
}

func (g *Gate) groupFor(ctx context.Context, parsed *url.URL) *robotstxt.Group {
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host)

	g.mu.RLock()
	group, ok := g.groups[key]
	g.mu.RUnlock()
	if ok {
		return group
	}

	v, _, _ := g.flight.Do(key, func() (any, error) {
		g.mu.RLock()
		cached, hit := g.groups[key]
		g.mu.RUnlock()
		if hit {
			return cached, nil
		}

		loaded, err := g.load(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				// Not cached: the next caller may still reach the host.
				return (*robotstxt.Group)(nil), nil
			}
			g.logger.Warn("robots fetch failed; allowing access",
				zap.String("host", parsed.Host), zap.Error(err))
		}

		g.mu.Lock()
		g.groups[key] = loaded
		g.mu.Unlock()
		return loaded, nil
	})
	group, _ = v.(*robotstxt.Group)
	return group
}

// load returns nil for "no restrictions".
func (g *Gate) load(ctx context.Context, origin string) (*robotstxt.Group, error) {
	g.fetches.Add(1)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.ObserveRobots("unreachable")
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveRobots("status")
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		metrics.ObserveRobots("unreachable")
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		metrics.ObserveRobots("malformed")
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	metrics.ObserveRobots("ok")
	agent := g.userAgent
	if agent == "" {
		agent = "*"
	}
	return data.FindGroup(agent), nil
}

// AllowAll is a RobotsChecker that never blocks.
type AllowAll struct{}

// Allowed always reports true.
func (AllowAll) Allowed(context.Context, string) bool { return true }
