package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

func TestFilterBoilerplate(t *testing.T) {
	t.Parallel()

	var pages []crawler.PageResult
	for i := 0; i < 5; i++ {
		pages = append(pages, crawler.PageResult{
			URL: fmt.Sprintf("https://example.com/%d", i),
			Markdown: fmt.Sprintf("## Overview\n\nSign up for our newsletter today\n\nUnique body %d\n\nOverview\n\n"+
				"Copyright 2024 Example Corporation, all rights reserved worldwide, forever\n", i),
		})
	}
	pages = append(pages, crawler.PageResult{URL: "https://example.com/broken", Err: "http 500", Markdown: "Sign up for our newsletter today\n"})

	out := FilterBoilerplate(pages, 3)
	require.Len(t, out, len(pages))

	for i := 0; i < 5; i++ {
		md := out[i].Markdown
		require.Contains(t, md, "## Overview")
		require.Contains(t, md, "\nOverview\n")
		require.Contains(t, md, fmt.Sprintf("Unique body %d", i))
		require.NotContains(t, md, "newsletter")
		require.NotContains(t, md, "Copyright")
	}
	require.Equal(t, "Sign up for our newsletter today\n", out[5].Markdown)
	require.Contains(t, pages[0].Markdown, "newsletter", "input must not be modified")
}

func TestFilterBoilerplateKeepsLinesUnderThreshold(t *testing.T) {
	t.Parallel()

	pages := []crawler.PageResult{
		{Markdown: "shared line\n\nA\n"},
		{Markdown: "shared line\n\nB\n"},
		{Markdown: "shared line\nshared line\n\nC\n"},
	}
	out := FilterBoilerplate(pages, 0)
	for i := range pages {
		require.Contains(t, out[i].Markdown, "shared line")
	}
}
