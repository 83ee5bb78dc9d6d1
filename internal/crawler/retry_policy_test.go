package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(2, time.Millisecond, 10*time.Millisecond)
	cases := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "503", err: &StatusError{Code: http.StatusServiceUnavailable}, want: true},
		{name: "429 wrapped", err: fmt.Errorf("fetch: %w", &StatusError{Code: http.StatusTooManyRequests}), want: true},
		{name: "404", err: &StatusError{Code: http.StatusNotFound}, want: false},
		{name: "budget exhausted", err: &StatusError{Code: http.StatusBadGateway}, attempt: 2, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("get: %w", context.DeadlineExceeded), want: false},
		{name: "redirects", err: ErrRedirectLimit, want: false},
		{name: "non html", err: ErrNonHTML, want: false},
		{name: "network timeout", err: timeoutErr{}, want: true},
		{name: "opaque", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, p.ShouldRetry(tc.err, tc.attempt))
		})
	}
}

func TestExponentialRetryPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, 100*time.Millisecond, 400*time.Millisecond)
	for attempt := 0; attempt < 6; attempt++ {
		ceiling := 100 * time.Millisecond << attempt
		if ceiling > 400*time.Millisecond {
			ceiling = 400 * time.Millisecond
		}
		got := p.Backoff(attempt)
		require.GreaterOrEqual(t, got, ceiling/2)
		require.LessOrEqual(t, got, ceiling)
	}
}

func TestNewExponentialRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(-1, 0, 0)
	require.Zero(t, p.maxRetries)
	require.Equal(t, 500*time.Millisecond, p.baseDelay)
	require.Equal(t, 4*time.Second, p.maxDelay)
	require.False(t, p.ShouldRetry(&StatusError{Code: http.StatusServiceUnavailable}, 0))
}

func TestNoRetry(t *testing.T) {
	t.Parallel()

	require.False(t, NoRetry{}.ShouldRetry(&StatusError{Code: http.StatusServiceUnavailable}, 0))
	require.Zero(t, NoRetry{}.Backoff(3))
}
