package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

const guidePage = `<!doctype html>
<html>
<head>
  <title> Install Guide </title>
  <link rel="canonical" href="/docs/install/?utm_source=x">
  <script>var tracking = true;</script>
</head>
<body>
  <header>Site Header</header>
  <nav><a href="/docs/">Docs home</a> <a href="/blog">Blog</a></nav>
  <main>
    <h1>Installing</h1>
    <p>Run the installer and follow the <a href="setup#step-2">setup steps</a>.</p>
    <p><img src="/img/shot.png" alt="screenshot"></p>
    <a href="mailto:help@example.com">Mail us</a>
    <a href="#top">Top</a>
  </main>
  <footer>Copyright Footer</footer>
</body>
</html>`

func TestExtractSelectsMainRegion(t *testing.T) {
	t.Parallel()

	e := New(nil)
	got, err := e.Extract([]byte(guidePage), "https://example.com/docs/install", crawler.ExtractOptions{})
	require.NoError(t, err)

	require.Equal(t, "Install Guide", got.Title)
	require.Contains(t, got.Markdown, "Installing")
	require.Contains(t, got.Markdown, "Run the installer")
	require.Contains(t, got.Markdown, "[setup steps](https://example.com/docs/setup)")
	require.Contains(t, got.Markdown, "![screenshot](https://example.com/img/shot.png)")
	require.NotContains(t, got.Markdown, "Site Header")
	require.NotContains(t, got.Markdown, "Copyright Footer")
	require.NotContains(t, got.Markdown, "tracking")
	require.False(t, got.Thin)
	require.False(t, got.UsedFallback)
	require.Equal(t, "https://example.com/docs/install", got.Canonical)
	require.True(t, strings.HasSuffix(got.Markdown, "\n"))
}

func TestExtractLinksComeFromWholeDocument(t *testing.T) {
	t.Parallel()

	e := New(nil)
	got, err := e.Extract([]byte(guidePage), "https://example.com/docs/install", crawler.ExtractOptions{StripLinks: true})
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.com/docs",
		"https://example.com/blog",
		"https://example.com/docs/setup",
	}, got.Links)
}

func TestExtractStripOptions(t *testing.T) {
	t.Parallel()

	e := New(nil)
	got, err := e.Extract([]byte(guidePage), "https://example.com/docs/install", crawler.ExtractOptions{
		StripLinks:  true,
		StripImages: true,
	})
	require.NoError(t, err)
	require.Contains(t, got.Markdown, "setup steps")
	require.NotContains(t, got.Markdown, "](")
	require.NotContains(t, got.Markdown, "![")
}

func TestExtractHonorsBaseHref(t *testing.T) {
	t.Parallel()

	page := `<html><head><base href="https://cdn.example.com/v2/"></head>
<body><a href="intro">Intro</a><a href="intro?utm_medium=mail">Intro again</a></body></html>`
	got, err := New(nil).Extract([]byte(page), "https://example.com/", crawler.ExtractOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"https://cdn.example.com/v2/intro"}, got.Links)
}

func TestExtractTitleFallbacks(t *testing.T) {
	t.Parallel()

	e := New(nil)
	got, err := e.Extract([]byte(`<html><body><h1>Heading Title</h1><p>x</p></body></html>`), "https://example.com/a", crawler.ExtractOptions{})
	require.NoError(t, err)
	require.Equal(t, "Heading Title", got.Title)

	got, err = e.Extract([]byte(`<html><body><p>x</p></body></html>`), "https://example.com/b", crawler.ExtractOptions{})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/b", got.Title)
}

func TestExtractThinWithoutFallback(t *testing.T) {
	t.Parallel()

	got, err := New(nil).Extract([]byte(guidePage), "https://example.com/docs/install", crawler.ExtractOptions{
		MinTextChars: 5000,
	})
	require.NoError(t, err)
	require.True(t, got.Thin)
	require.False(t, got.UsedFallback)
	require.Positive(t, got.TextLength)
}

func TestExtractReadabilityFallbackPicksLongerContent(t *testing.T) {
	t.Parallel()

	paragraph := strings.Repeat("The configuration file controls every crawler option in detail. ", 6)
	page := `<html><head><title>Config</title></head><body>
<div class="content">Short teaser.</div>
<div id="article-body">
  <h2>Configuration</h2>
  <p>` + paragraph + `</p>
  <p>` + paragraph + `</p>
  <p>` + paragraph + `</p>
</div>
</body></html>`

	e := New(nil)
	plain, err := e.Extract([]byte(page), "https://example.com/config", crawler.ExtractOptions{MinTextChars: 200})
	require.NoError(t, err)
	require.True(t, plain.Thin)
	require.NotContains(t, plain.Markdown, "configuration file")

	got, err := e.Extract([]byte(page), "https://example.com/config", crawler.ExtractOptions{
		MinTextChars:        200,
		ReadabilityFallback: true,
	})
	require.NoError(t, err)
	require.True(t, got.UsedFallback)
	require.False(t, got.Thin)
	require.Contains(t, got.Markdown, "configuration file controls")
	require.Greater(t, got.TextLength, plain.TextLength)
	require.Equal(t, "Config", got.Title)
}

func TestExtractRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Extract([]byte("  \n "), "https://example.com", crawler.ExtractOptions{})
	require.ErrorIs(t, err, ErrEmptyDocument)

	_, err = New(nil).Outline(nil, "https://example.com")
	require.ErrorIs(t, err, ErrEmptyDocument)
}

func TestOutline(t *testing.T) {
	t.Parallel()

	got, err := New(nil).Outline([]byte(guidePage), "https://example.com/docs/install")
	require.NoError(t, err)
	require.Equal(t, "Install Guide", got.Title)
	require.Len(t, got.Links, 3)
	require.Equal(t, "https://example.com/docs/install", got.Canonical)
}

func TestPostprocess(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                          "",
		"\n\n  \n":                  "",
		"a  \n\n\n\nb\t\n":          "a\n\nb\n",
		"\n\n# Title\r\n\r\nbody\n": "# Title\n\nbody\n",
	}
	for in, want := range cases {
		require.Equal(t, want, Postprocess(in), "input %q", in)
	}
}
