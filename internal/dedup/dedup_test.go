package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitekb-crawler/internal/hash/sha256"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(context.Background(), sha256.New(), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func TestCheckReportsFirstURL(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	first, dup, err := c.Check("Hello   world\n", "https://example.com/a")
	require.NoError(t, err)
	require.False(t, dup)
	require.Empty(t, first)

	first, dup, err = c.Check("Hello world", "https://example.com/a?print=1")
	require.NoError(t, err)
	require.True(t, dup)
	require.Equal(t, "https://example.com/a", first)

	_, dup, err = c.Check("Something else", "https://example.com/b")
	require.NoError(t, err)
	require.False(t, dup)
	require.Equal(t, 2, c.Len())
}

func TestCheckIgnoresEmptyText(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	for i := 0; i < 2; i++ {
		_, dup, err := c.Check(" \n\t", "https://example.com/empty")
		require.NoError(t, err)
		require.False(t, dup)
	}
	require.Zero(t, c.Len())
}

type failingHasher struct{}

func (failingHasher) Hash([]byte) (string, error) { return "", errors.New("no digest") }

func TestCheckPropagatesHashErrors(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), failingHasher{}, DefaultConfig())
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck // test cleanup

	_, _, err = c.Check("text", "https://example.com")
	require.ErrorContains(t, err, "no digest")

	_, err = New(context.Background(), nil, Config{})
	require.Error(t, err)
}
