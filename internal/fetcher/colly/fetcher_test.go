package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title>Page</title></head><body>ua=%s trace=%s</body></html>",
			r.UserAgent(), r.Header.Get("X-Trace"))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<html><body>gone</body></html>")
	})
	mux.HandleFunc("/file.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, "<html></html>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchReturnsMarkupAndHeaders(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	f := New(Config{UserAgent: "sitekb-test", Timeout: 2 * time.Second})

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{
		URL:     srv.URL + "/page",
		Headers: http.Header{"X-Trace": {"yes"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, srv.URL+"/page", resp.URL)
	require.Contains(t, string(resp.Body), "ua=sitekb-test")
	require.Contains(t, string(resp.Body), "trace=yes")
	require.Contains(t, resp.ContentType(), "text/html")
	require.False(t, resp.UsedHeadless)
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	f := New(Config{})

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/moved"})
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/page", resp.URL)
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	f := New(Config{MaxRedirects: 3, Timeout: 100 * time.Millisecond})
	ctx := context.Background()

	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/missing"})
	var statusErr *crawler.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.Code)

	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/loop"})
	require.Error(t, err)
	require.Contains(t, err.Error(), crawler.ErrRedirectLimit.Error())

	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/file.json"})
	require.ErrorIs(t, err, crawler.ErrNonHTML)

	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/slow"})
	require.Error(t, err)
}

func TestFetchHonorsContext(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	f := New(Config{Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/slow"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchCancelAbortsTransfer(t *testing.T) {
	t.Parallel()

	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(released)
		case <-time.After(5 * time.Second):
			fmt.Fprint(w, "<html></html>")
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 10 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/hang"})
	require.ErrorIs(t, err, context.Canceled)

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("server request still open after cancel")
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("<html></html>"),
		Headers:    &http.Header{"Content-Type": {"text/html"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/final")},
	})
	require.NoError(t, fetchErr)
	require.Equal(t, "https://example.com/final", result.URL)
	require.Equal(t, "<html></html>", string(result.Body))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	require.True(t, isHTML(""))
	require.True(t, isHTML("text/html; charset=utf-8"))
	require.True(t, isHTML("application/xhtml+xml"))
	require.False(t, isHTML("application/pdf"))
	require.False(t, isHTML("image/png"))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
