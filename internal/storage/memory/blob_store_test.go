package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("# Knowledge base")
	uri, err := store.PutObject(context.Background(), "runs/abc/example.com.md", "text/markdown", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://runs/abc/example.com.md", uri)

	payload[0] = 'X'
	obj, ok := store.Get("runs/abc/example.com.md")
	require.True(t, ok)
	require.Equal(t, "# Knowledge base", string(obj.Data))
	require.Equal(t, "text/markdown", obj.ContentType)

	obj.Data[0] = 'Y'
	again, _ := store.Get("runs/abc/example.com.md")
	require.Equal(t, byte('#'), again.Data[0])
}

func TestBlobStoreKeysAndErrors(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	_, err := store.PutObject(ctx, "b.zip", "application/zip", bytes.NewReader(nil))
	require.NoError(t, err)
	_, err = store.PutObject(ctx, "a.md", "text/markdown", bytes.NewReader(nil))
	require.NoError(t, err)
	require.Equal(t, []string{"a.md", "b.zip"}, store.Keys())

	_, err = store.PutObject(ctx, " ", "", bytes.NewReader(nil))
	require.Error(t, err)

	_, err = store.PutObject(ctx, "c.md", "", failingReader{})
	require.Error(t, err)
	_, ok := store.Get("c.md")
	require.False(t, ok)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }
