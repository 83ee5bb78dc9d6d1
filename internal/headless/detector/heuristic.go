// Package detector decides when a plain probe should be re-fetched in a browser.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

const (
	defaultMinVisibleText = 400
	scriptCoveragePercent = 25
)

// Heuristic promotes app shells: pages whose markup is mostly script and
// whose visible text is too short to be real content.
type Heuristic struct {
	// MinVisibleText is the visible-text length below which a page is
	// considered an unrendered shell when other markers agree.
	MinVisibleText int
}

// NewHeuristic creates a detector. A non-positive threshold uses the default.
func NewHeuristic(minVisibleText int) *Heuristic {
	if minVisibleText <= 0 {
		minVisibleText = defaultMinVisibleText
	}
	return &Heuristic{MinVisibleText: minVisibleText}
}

var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="__nuxt"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte(`data-reactroot`),
	[]byte(`ng-version`),
}

// ShouldPromote reports whether probe looks like it needs JavaScript.
func (h *Heuristic) ShouldPromote(probe crawler.FetchResponse) bool {
	if probe.StatusCode != 200 {
		return false
	}
	body := probe.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}

	visible := visibleTextLength(body)
	if visible >= h.MinVisibleText {
		return false
	}
	if scriptCoverage(body) >= scriptCoveragePercent {
		return true
	}
	lower := bytes.ToLower(body)
	if bytes.Contains(lower, []byte("enable javascript")) {
		return true
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func visibleTextLength(body []byte) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return len(body)
	}
	doc.Find("script, style, noscript, template").Remove()
	return len(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
}

// scriptCoverage returns the percentage of the document covered by
// <script> elements, including their tags.
func scriptCoverage(body []byte) int {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return 0
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		gt := strings.IndexByte(lower[start:], '>')
		if gt == -1 {
			covered += total - start
			break
		}
		contentStart := start + gt + 1
		end := strings.Index(lower[contentStart:], closeTag)
		next := total
		if end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered * 100 / total
}
