package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"HTTP://Example.COM:80/a/":                 "http://example.com/a",
		"https://example.com:443":                  "https://example.com/",
		"https://example.com/a#frag":               "https://example.com/a",
		"https://example.com/?b=2&a=1":             "https://example.com/?a=1&b=2",
		"https://example.com/p?utm_source=x&id=3":  "https://example.com/p?id=3",
		"https://example.com/p?gclid=1&fbclid=2":   "https://example.com/p",
		"https://example.com/docs//":               "https://example.com/docs",
		"https://example.com:8443/x/":              "https://example.com:8443/x",
		"https://example.com/a?UTM_Campaign=spring": "https://example.com/a",
	}
	for in, want := range cases {
		got, err := NormalizeURL(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"http://x.com/a",
		"http://x.com/a/",
		"http://x.com/a#frag",
		"HTTPS://X.com:443/path/to/?z=1&a=%20b#top",
		"https://x.com/a%2Fb/",
	}
	for _, in := range inputs {
		once, err := NormalizeURL(in)
		require.NoError(t, err)
		twice, err := NormalizeURL(once)
		require.NoError(t, err)
		require.Equal(t, once, twice, in)
	}
}

func TestNormalizeURLCollapsesEquivalentForms(t *testing.T) {
	t.Parallel()

	a, err := NormalizeURL("http://x.com/a")
	require.NoError(t, err)
	b, err := NormalizeURL("http://x.com/a/")
	require.NoError(t, err)
	c, err := NormalizeURL("http://x.com/a#frag")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, a, c)
}

func TestResolveLink(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/docs/guide/")
	require.NoError(t, err)

	got, ok := ResolveLink(base, "../api/#section")
	require.True(t, ok)
	require.Equal(t, "https://example.com/docs/api", got)

	got, ok = ResolveLink(base, "//cdn.example.com/x")
	require.True(t, ok)
	require.Equal(t, "https://cdn.example.com/x", got)

	for _, href := range []string{"", "#top", "mailto:a@b.c", "javascript:void(0)", "tel:123", "ftp://example.com/file"} {
		_, ok := ResolveLink(base, href)
		require.False(t, ok, href)
	}
}

func TestHostPath(t *testing.T) {
	t.Parallel()

	host, path := HostPath("https://Docs.Example.com")
	require.Equal(t, "docs.example.com", host)
	require.Equal(t, "/", path)

	host, path = HostPath("https://example.com/a/b")
	require.Equal(t, "example.com", host)
	require.Equal(t, "/a/b", path)
}
