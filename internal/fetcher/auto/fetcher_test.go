package auto

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

type fetchFunc func(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error)

func (f fetchFunc) Fetch(ctx context.Context, r crawler.FetchRequest) (crawler.FetchResponse, error) {
	return f(ctx, r)
}

type promoteIf bool

func (p promoteIf) ShouldPromote(crawler.FetchResponse) bool { return bool(p) }

func staticFetcher(body string, headless bool, calls *int) crawler.Fetcher {
	return fetchFunc(func(_ context.Context, r crawler.FetchRequest) (crawler.FetchResponse, error) {
		*calls++
		return crawler.FetchResponse{URL: r.URL, StatusCode: 200, Body: []byte(body), UsedHeadless: headless}, nil
	})
}

func TestFetchKeepsPlainWhenNotPromoted(t *testing.T) {
	t.Parallel()

	var plainCalls, renderCalls int
	f := New(staticFetcher("plain", false, &plainCalls), staticFetcher("rendered", true, &renderCalls), promoteIf(false), nil)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, "plain", string(resp.Body))
	require.Equal(t, 1, plainCalls)
	require.Zero(t, renderCalls)
}

func TestFetchPromotesShells(t *testing.T) {
	t.Parallel()

	var plainCalls, renderCalls int
	f := New(staticFetcher("shell", false, &plainCalls), staticFetcher("rendered", true, &renderCalls), promoteIf(true), nil)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, "rendered", string(resp.Body))
	require.True(t, resp.UsedHeadless)
	require.Equal(t, 1, renderCalls)
}

func TestFetchFallsBackToProbeWhenRenderFails(t *testing.T) {
	t.Parallel()

	var plainCalls int
	broken := fetchFunc(func(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
		return crawler.FetchResponse{}, errors.New("chrome missing")
	})
	f := New(staticFetcher("shell", false, &plainCalls), broken, promoteIf(true), nil)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, "shell", string(resp.Body))
}

func TestFetchPropagatesProbeErrors(t *testing.T) {
	t.Parallel()

	statusErr := &crawler.StatusError{Code: 404, URL: "https://example.com"}
	failing := fetchFunc(func(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
		return crawler.FetchResponse{}, statusErr
	})
	var renderCalls int
	f := New(failing, staticFetcher("rendered", true, &renderCalls), promoteIf(true), nil)

	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	var target *crawler.StatusError
	require.ErrorAs(t, err, &target)
	require.Zero(t, renderCalls)
}
