package frontier

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

func entry(key string, depth int) crawler.FrontierEntry {
	return crawler.FrontierEntry{URL: key, Key: key, Depth: depth}
}

func TestFrontierFIFO(t *testing.T) {
	t.Parallel()

	f := New(0)
	for i := 0; i < 5; i++ {
		require.True(t, f.Push(entry(fmt.Sprintf("https://example.com/%d", i), 1)))
	}
	require.Equal(t, 5, f.Len())

	first := f.PopN(2)
	require.Equal(t, "https://example.com/0", first[0].Key)
	require.Equal(t, "https://example.com/1", first[1].Key)

	rest := f.PopN(10)
	require.Len(t, rest, 3)
	require.Equal(t, "https://example.com/4", rest[2].Key)
	require.Zero(t, f.Len())
	require.Nil(t, f.PopN(1))
}

func TestFrontierRejectsKnownKeys(t *testing.T) {
	t.Parallel()

	f := New(10)
	require.True(t, f.Push(entry("https://example.com/a", 0)))
	require.False(t, f.Push(entry("https://example.com/a", 1)))

	f.PopN(1)
	require.True(t, f.Seen("https://example.com/a"), "popped keys stay visited")
	require.False(t, f.Push(entry("https://example.com/a", 2)))

	f.MarkSeen("https://example.com/canonical")
	require.False(t, f.Push(entry("https://example.com/canonical", 1)))
	require.False(t, f.Push(entry("", 1)))
	require.Equal(t, 2, f.Known())
}

func TestFrontierCompactsWithoutLosingOrder(t *testing.T) {
	t.Parallel()

	f := New(5000)
	for i := 0; i < 3000; i++ {
		f.Push(entry(fmt.Sprintf("k%d", i), 0))
	}
	popped := f.PopN(2000)
	require.Equal(t, "k1999", popped[len(popped)-1].Key)
	require.Equal(t, 1000, f.Len())

	next := f.PopN(1)
	require.Equal(t, "k2000", next[0].Key)
	require.True(t, f.Seen("k0"))
}
