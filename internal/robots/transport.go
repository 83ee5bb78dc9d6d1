package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/sitekb-crawler/internal/metrics"
)

var errNilRequest = errors.New("robots transport received nil request")

var handshakeBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// RetryTransport retries robots.txt requests that die in the TLS handshake
// and, once retries run out, answers with an allow-all document.
type RetryTransport struct {
	base    http.RoundTripper
	backoff []time.Duration
}

// NewRetryTransport wraps base (http.DefaultTransport when nil).
func NewRetryTransport(base http.RoundTripper) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RetryTransport{base: base, backoff: handshakeBackoff}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errNilRequest
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport roundtrip: %w", err)
		}
		return resp, nil
	}

	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isHandshakeTimeout(err) {
			return nil, fmt.Errorf("robots roundtrip: %w", err)
		}
		if attempt >= len(t.backoff) {
			metrics.ObserveProbeTLSHandshakeTimeout()
			return allowAllResponse(req), nil
		}
		if err := sleepWithContext(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots roundtrip backoff: %w", err)
		}
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	const body = "User-agent: *\nAllow: /"
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isHandshakeTimeout(err error) bool {
	if err == nil {
		return false
	}
	if strings.Contains(err.Error(), "tls: handshake timeout") ||
		strings.Contains(err.Error(), "TLS handshake timeout") {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout() && !errors.Is(err, context.DeadlineExceeded)
}
