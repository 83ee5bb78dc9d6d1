package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

func TestHeuristicShouldPromote(t *testing.T) {
	t.Parallel()

	longText := "<html><body><main><p>" + strings.Repeat("Real documentation text. ", 40) +
		`</p></main><div id="root"></div></body></html>`

	cases := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{name: "empty body", status: 200, body: "  ", want: true},
		{name: "next shell", status: 200, body: `<html><body><div id="__next"></div></body></html>`, want: true},
		{name: "script heavy", status: 200, body: `<html><script>var a=1;var b=2;</script><p>t</p></html>`, want: true},
		{name: "noscript notice", status: 200, body: `<html><body><noscript>Please enable JavaScript</noscript></body></html>`, want: true},
		{name: "content with marker", status: 200, body: longText, want: false},
		{name: "short static page", status: 200, body: `<html><body><p>Hello there, this is static.</p></body></html>`, want: false},
		{name: "non 200", status: 404, body: "", want: false},
	}

	h := NewHeuristic(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := h.ShouldPromote(crawler.FetchResponse{StatusCode: tc.status, Body: []byte(tc.body)})
			require.Equal(t, tc.want, got)
		})
	}
}

func TestScriptCoverage(t *testing.T) {
	t.Parallel()

	require.Zero(t, scriptCoverage(nil))
	require.Zero(t, scriptCoverage([]byte("<p>plain</p>")))
	require.Equal(t, 100, scriptCoverage([]byte("<script>x</script>")))
	require.Equal(t, 100, scriptCoverage([]byte("<script src=a.js")))
}
