package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

// links returns the normalized absolute http(s) links of the document in
// order of first appearance.
func links(doc *goquery.Document, base *url.URL) []string {
	var out []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		key, ok := crawler.ResolveLink(base, href)
		if !ok {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	})
	return out
}

func canonical(doc *goquery.Document, base *url.URL) string {
	var found string
	doc.Find("link[rel][href]").EachWithBreak(func(_ int, l *goquery.Selection) bool {
		rel, _ := l.Attr("rel")
		if !hasToken(rel, "canonical") {
			return true
		}
		href, _ := l.Attr("href")
		if key, ok := crawler.ResolveLink(base, href); ok {
			found = key
		}
		return false
	})
	return found
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(strings.ToLower(list)) {
		if f == token {
			return true
		}
	}
	return false
}
