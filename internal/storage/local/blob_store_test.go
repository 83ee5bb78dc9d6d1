package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitekb-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "bundles", "nested")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		require.NotNil(t, store)
		require.DirExists(t, dir)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Empty(t, entries, "probe file is cleaned up")
	})

	t.Run("missing base dir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})

	t.Run("base dir is a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "runs/r1/example.com__20240102-030405.md", "text/markdown", strings.NewReader("# KB"))
	require.NoError(t, err)
	want := filepath.Join(dir, "runs", "r1", "example.com__20240102-030405.md")
	require.Equal(t, "file://"+want, uri)
	// #nosec G304 -- test reads from its own temp directory.
	got, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "# KB", string(got))

	_, err = store.PutObject(ctx, "runs/r1/example.com__20240102-030405.md", "text/markdown", strings.NewReader("# KB v2"))
	require.NoError(t, err)
	// #nosec G304 -- test reads from its own temp directory.
	got, err = os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "# KB v2", string(got))

	_, err = store.PutObject(ctx, "", "text/markdown", strings.NewReader("x"))
	require.Error(t, err)

	_, err = store.PutObject(ctx, "../escape.md", "text/markdown", strings.NewReader("x"))
	require.Error(t, err)
	require.NoFileExists(t, filepath.Join(filepath.Dir(dir), "escape.md"))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.PutObject(canceled, "late.md", "text/markdown", strings.NewReader("x"))
	require.ErrorIs(t, err, context.Canceled)
}
