package robots

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRetryTransportFallsBackToAllowAll(t *testing.T) {
	t.Parallel()

	calls := 0
	base := roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("net/http: TLS handshake timeout")
	})
	tr := &RetryTransport{base: base, backoff: []time.Duration{0, 0}}

	req, err := http.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	require.NoError(t, err)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "Allow: /")
	require.Equal(t, 3, calls)
}

func TestRetryTransportPassesOtherErrors(t *testing.T) {
	t.Parallel()

	base := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	tr := &RetryTransport{base: base, backoff: []time.Duration{0}}

	req, err := http.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	require.NoError(t, err)
	_, err = tr.RoundTrip(req)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "connection refused"))
}

func TestRetryTransportIgnoresNonRobotsPaths(t *testing.T) {
	t.Parallel()

	calls := 0
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("net/http: TLS handshake timeout")
	})
	tr := &RetryTransport{base: base, backoff: []time.Duration{0, 0}}

	req, err := http.NewRequest(http.MethodGet, "https://example.com/page", nil)
	require.NoError(t, err)
	_, err = tr.RoundTrip(req)
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
