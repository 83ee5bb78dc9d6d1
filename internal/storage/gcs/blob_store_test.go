package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeGCS struct {
	mu       sync.Mutex
	uploads  []string
	bucketOK bool
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.uploads = append(f.uploads, string(body))
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"bucket":"kb-bundles","name":"uploaded"}`)
	case http.MethodGet:
		if !f.bucketOK {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"code":404,"message":"no such bucket"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"name":"kb-bundles"}`)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newServer(t *testing.T, fake *fakeGCS) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication(), option.WithEndpoint("http://127.0.0.1:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "b", Prefix: "/bundles/"})
	require.NoError(t, err)
	require.Equal(t, "bundles", store.prefix)
	require.NoError(t, store.Close(), "borrowed clients are not closed")
}

func TestPutObjectUploadsUnderPrefix(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{bucketOK: true}
	srv := newServer(t, fake)
	ctx := context.Background()

	store, err := Open(ctx, Config{Bucket: "kb-bundles", Prefix: "sitekb"}, nil,
		option.WithoutAuthentication(), option.WithEndpoint(srv.URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	uri, err := store.PutObject(ctx, "runs/r1/example.com.md", "text/markdown", strings.NewReader("# Knowledge base"))
	require.NoError(t, err)
	require.Equal(t, "gs://kb-bundles/sitekb/runs/r1/example.com.md", uri)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.uploads, 1)
	require.Contains(t, fake.uploads[0], "# Knowledge base")
	require.Contains(t, fake.uploads[0], "sitekb/runs/r1/example.com.md")

	_, err = store.PutObject(ctx, "", "text/markdown", strings.NewReader("x"))
	require.Error(t, err)
}

func TestOpenFailsForUnreadableBucket(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &fakeGCS{})
	_, err := Open(context.Background(), Config{Bucket: "kb-bundles"}, nil,
		option.WithoutAuthentication(), option.WithEndpoint(srv.URL))
	require.Error(t, err)
	require.Contains(t, err.Error(), "kb-bundles")
}
