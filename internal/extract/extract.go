// Package extract turns fetched markup into knowledge-base markdown.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

// ErrEmptyDocument is returned for bodies with no markup at all.
var ErrEmptyDocument = errors.New("empty document")

const noiseSelector = "script, style, noscript, nav, footer, header, aside, form, svg, iframe, template"

var mainSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#content",
	".content",
	".main",
	".main-content",
	".article",
	".post",
	".entry-content",
}

// Extractor implements crawler.Extractor. It is safe for concurrent use.
type Extractor struct {
	converter *md.Converter
	logger    *zap.Logger
}

// New builds an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// Extract produces the page title, markdown body, outgoing links and
// canonical URL. When the main region is shorter than opts.MinTextChars and
// the readability fallback is enabled, alternative candidates are tried and
// the one with the most text wins.
func (e *Extractor) Extract(body []byte, pageURL string, opts crawler.ExtractOptions) (crawler.Extraction, error) {
	doc, base, err := parse(body, pageURL)
	if err != nil {
		return crawler.Extraction{}, err
	}

	out := crawler.Extraction{
		Title:     title(doc, pageURL),
		Links:     links(doc, base),
		Canonical: canonical(doc, base),
	}

	doc.Find(noiseSelector).Remove()
	main := mainRegion(doc)
	best := e.candidate(main, base, opts)

	if opts.ReadabilityFallback && best.textLength < opts.MinTextChars {
		for _, alt := range e.fallbacks(body, base, opts) {
			if alt.textLength > best.textLength {
				best = alt
				out.UsedFallback = true
			}
		}
		if out.UsedFallback && out.Title == pageURL && best.title != "" {
			out.Title = best.title
		}
	}

	out.Markdown = best.markdown
	out.TextLength = best.textLength
	out.Thin = opts.MinTextChars > 0 && best.textLength < opts.MinTextChars
	return out, nil
}

// Outline returns only what a preview needs.
func (e *Extractor) Outline(body []byte, pageURL string) (crawler.Outline, error) {
	doc, base, err := parse(body, pageURL)
	if err != nil {
		return crawler.Outline{}, err
	}
	return crawler.Outline{
		Title:     title(doc, pageURL),
		Links:     links(doc, base),
		Canonical: canonical(doc, base),
	}, nil
}

type content struct {
	title      string
	markdown   string
	textLength int
}

func (e *Extractor) candidate(sel *goquery.Selection, base *url.URL, opts crawler.ExtractOptions) content {
	prepare(sel, base, opts)
	return content{
		markdown:   Postprocess(e.converter.Convert(sel)),
		textLength: textLength(sel.Text()),
	}
}

func parse(body []byte, pageURL string) (*goquery.Document, *url.URL, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil, ErrEmptyDocument
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = resolved
		}
	}
	return doc, base, nil
}

func mainRegion(doc *goquery.Document) *goquery.Selection {
	for _, selector := range mainSelectors {
		if found := doc.Find(selector).First(); found.Length() > 0 {
			return found
		}
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

// prepare rewrites a content region in place according to opts.
func prepare(sel *goquery.Selection, base *url.URL, opts crawler.ExtractOptions) {
	if opts.StripImages {
		sel.Find("img, picture").Remove()
	} else {
		sel.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
			src, _ := img.Attr("src")
			if abs, err := base.Parse(strings.TrimSpace(src)); err == nil {
				img.SetAttr("src", abs.String())
			}
		})
	}
	anchors := sel.Find("a")
	if opts.StripLinks {
		anchors.Each(func(_ int, a *goquery.Selection) {
			a.ReplaceWithSelection(a.Contents())
		})
		return
	}
	anchors.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if abs, ok := crawler.ResolveLink(base, href); ok {
			a.SetAttr("href", abs)
		}
	})
}

func title(doc *goquery.Document, pageURL string) string {
	if t := collapse(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if h1 := collapse(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return pageURL
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// textLength counts visible characters with whitespace runs collapsed.
func textLength(s string) int {
	return utf8.RuneCountInString(collapse(s))
}
