package extract

import (
	"strings"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

// DefaultBoilerplateThreshold is the page count above which a repeated line
// is treated as site chrome.
const DefaultBoilerplateThreshold = 3

const maxKeptLineLength = 60

var overviewLines = map[string]struct{}{
	"overview":          {},
	"introduction":      {},
	"summary":           {},
	"contents":          {},
	"table of contents": {},
}

// FilterBoilerplate removes lines that appear on more than threshold pages,
// keeping short headings and overview-type lines. Failed pages pass through
// untouched. The input slice is not modified.
func FilterBoilerplate(pages []crawler.PageResult, threshold int) []crawler.PageResult {
	if threshold <= 0 {
		threshold = DefaultBoilerplateThreshold
	}
	frequency := make(map[string]int)
	for _, page := range pages {
		if page.Failed() {
			continue
		}
		onPage := make(map[string]struct{})
		for _, line := range strings.Split(page.Markdown, "\n") {
			key := strings.TrimSpace(line)
			if key == "" {
				continue
			}
			if _, ok := onPage[key]; ok {
				continue
			}
			onPage[key] = struct{}{}
			frequency[key]++
		}
	}

	out := make([]crawler.PageResult, len(pages))
	for i, page := range pages {
		out[i] = page
		if page.Failed() {
			continue
		}
		var kept []string
		for _, line := range strings.Split(page.Markdown, "\n") {
			key := strings.TrimSpace(line)
			if keepLine(key, frequency[key], threshold) {
				kept = append(kept, line)
			}
		}
		out[i].Markdown = Postprocess(strings.Join(kept, "\n"))
	}
	return out
}

func keepLine(line string, frequency, threshold int) bool {
	if line == "" || frequency <= threshold {
		return true
	}
	if len(line) > maxKeptLineLength {
		return false
	}
	if strings.HasPrefix(line, "#") {
		return true
	}
	_, ok := overviewLines[strings.ToLower(line)]
	return ok
}
