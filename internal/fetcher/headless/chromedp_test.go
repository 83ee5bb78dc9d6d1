package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxTabs: -1})
	require.Error(t, err)

	f, err := New(Config{MaxTabs: 2, SettleDelay: -time.Second})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	require.Equal(t, 2, cap(f.tabs))
	require.Equal(t, defaultNavigationTimeout, f.cfg.NavigationTimeout)
	require.Zero(t, f.cfg.SettleDelay)
}

func TestFetchAfterCloseFails(t *testing.T) {
	t.Parallel()

	f, err := New(Config{})
	require.NoError(t, err)
	f.Close()
	f.Close()

	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, errBrowserClosed)
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	f := &Fetcher{tabs: make(chan struct{}, 1)}
	require.NoError(t, f.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.acquire(ctx), context.DeadlineExceeded)

	f.release()
	require.NoError(t, f.acquire(context.Background()))
}

func TestNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := networkHeaders(http.Header{
		"X-One":   {"a"},
		"X-Many":  {"a", "b"},
		"X-Empty": {},
	})
	require.Equal(t, "a", got["X-One"])
	require.Equal(t, []string{"a", "b"}, got["X-Many"])
	require.NotContains(t, got, "X-Empty")
}

func TestDocumentMetaResolve(t *testing.T) {
	t.Parallel()

	doc := newDocumentMeta()
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://example.com/logo.png"},
	})
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  203,
			URL:     "https://example.com/docs",
			Headers: network.Headers{"Content-Type": "text/html"},
		},
	})
	status, headers, url := doc.resolve("https://example.com/req", "https://example.com/loc")
	require.Equal(t, 203, status)
	require.Equal(t, "text/html", headers.Get("Content-Type"))
	require.Equal(t, "https://example.com/docs", url)

	empty := newDocumentMeta()
	status, _, url = empty.resolve("https://example.com/req", "https://example.com/loc")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://example.com/loc", url)

	_, _, url = empty.resolve("https://example.com/req", "")
	require.Equal(t, "https://example.com/req", url)
}
