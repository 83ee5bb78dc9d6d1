package extract

import (
	"bytes"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

const (
	densityBlocks   = "article, section, div, td"
	densityChildren = "p, pre, blockquote, ul, ol, table, h2, h3, h4"
)

// fallbacks returns alternative content candidates for pages where the main
// region came up short. Each candidate works on its own parse of body.
func (e *Extractor) fallbacks(body []byte, base *url.URL, opts crawler.ExtractOptions) []content {
	var out []content
	if c, ok := e.densest(body, base, opts); ok {
		out = append(out, c)
	}
	if c, ok := e.readability(body, base, opts); ok {
		out = append(out, c)
	}
	return out
}

// densest picks the block whose direct paragraphs carry the most text that
// is not link text.
func (e *Extractor) densest(body []byte, base *url.URL, opts crawler.ExtractOptions) (content, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return content{}, false
	}
	doc.Find(noiseSelector).Remove()

	var (
		best      *goquery.Selection
		bestScore float64
	)
	doc.Find(densityBlocks).Each(func(_ int, block *goquery.Selection) {
		direct := block.ChildrenFiltered(densityChildren)
		total := textLength(direct.Text())
		if total == 0 {
			return
		}
		linkText := textLength(direct.Find("a").Text())
		score := float64(total) * (1 - float64(linkText)/float64(total))
		if score > bestScore {
			best, bestScore = block, score
		}
	})
	if best == nil {
		return content{}, false
	}
	return e.candidate(best, base, opts), true
}

// readability runs go-trafilatura with its own fallbacks enabled.
func (e *Extractor) readability(body []byte, base *url.URL, opts crawler.ExtractOptions) (content, bool) {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{
		OriginalURL:    base,
		EnableFallback: true,
		IncludeImages:  !opts.StripImages,
		IncludeLinks:   !opts.StripLinks,
	})
	if err != nil || result == nil || result.ContentNode == nil {
		if err != nil {
			e.logger.Debug("trafilatura extraction failed", zap.String("url", base.String()), zap.Error(err))
		}
		return content{}, false
	}
	doc := goquery.NewDocumentFromNode(result.ContentNode)
	c := e.candidate(doc.Selection, base, opts)
	c.title = collapse(result.Metadata.Title)
	return c, true
}
