// Package importer turns uploaded files into knowledge-base documents:
// HTML pages, single e-mails (.eml), mailboxes (.mbox) and plain text.
package importer

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
	"github.com/JakeFAU/sitekb-crawler/internal/export"
	"github.com/JakeFAU/sitekb-crawler/internal/extract"
)

// Document kinds.
const (
	KindText  = "text"
	KindHTML  = "html"
	KindEmail = "email"
)

// Host groups imported documents in archive indexes and names bundles.
const Host = "imported"

// Upload is one uploaded file.
type Upload struct {
	Name string
	Data []byte
}

// Document is a normalized imported document.
type Document struct {
	Source   string
	Title    string
	Markdown string
	Kind     string
}

// Importer converts uploads into documents. It is safe for concurrent use.
type Importer struct {
	extractor *extract.Extractor
	logger    *zap.Logger
}

// New builds an Importer. A nil extractor gets a default one.
func New(extractor *extract.Extractor, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = extract.New(logger.Named("extract"))
	}
	return &Importer{extractor: extractor, logger: logger}
}

// Parse converts every upload in order. Files that yield nothing, such as
// an empty HTML page or an mbox without messages, are skipped. Unknown
// extensions are read as text.
func (im *Importer) Parse(uploads []Upload) []Document {
	var docs []Document
	for i, up := range uploads {
		name := strings.TrimSpace(up.Name)
		if name == "" {
			name = fmt.Sprintf("upload-%d", i+1)
		}
		var parsed []Document
		switch strings.ToLower(path.Ext(name)) {
		case ".html", ".htm":
			parsed = im.parseHTML(name, up.Data)
		case ".eml":
			parsed = im.parseEmail(name, up.Data)
		case ".mbox":
			parsed = im.parseMbox(name, up.Data)
		default:
			parsed = []Document{textDocument(name, up.Data)}
		}
		if len(parsed) == 0 {
			im.logger.Info("upload produced no documents", zap.String("file", name))
		}
		docs = append(docs, parsed...)
	}
	return docs
}

// HasContent reports whether any document carries text.
func HasContent(docs []Document) bool {
	for _, d := range docs {
		if strings.TrimSpace(d.Markdown) != "" {
			return true
		}
	}
	return false
}

// Pages maps documents onto export pages. Archive names derive from titles.
func Pages(docs []Document) []crawler.PageResult {
	pages := make([]crawler.PageResult, 0, len(docs))
	for _, d := range docs {
		slug := export.Slugify(d.Title)
		pages = append(pages, crawler.PageResult{
			URL:        d.Source,
			Host:       Host,
			Path:       "/" + slug,
			Title:      d.Title,
			Markdown:   d.Markdown,
			TextLength: len(d.Markdown),
			RawSize:    len(d.Markdown),
			Filename:   slug,
		})
	}
	return pages
}

func textDocument(name string, data []byte) Document {
	return Document{
		Source:   name,
		Title:    name,
		Markdown: extract.Postprocess(decodeText(data)),
		Kind:     KindText,
	}
}

func (im *Importer) parseHTML(name string, data []byte) []Document {
	md, title, err := im.convertHTML(name, data, crawler.ExtractOptions{StripLinks: true, StripImages: true})
	if err != nil {
		if !errors.Is(err, extract.ErrEmptyDocument) {
			im.logger.Warn("failed to convert html upload", zap.String("file", name), zap.Error(err))
		}
		return nil
	}
	return []Document{{Source: name, Title: title, Markdown: md, Kind: KindHTML}}
}

// convertHTML runs the page extractor over an uploaded document. The title
// falls back to name when the markup has none.
func (im *Importer) convertHTML(name string, data []byte, opts crawler.ExtractOptions) (string, string, error) {
	pageURL := (&url.URL{Scheme: "file", Path: "/" + name}).String()
	ex, err := im.extractor.Extract(data, pageURL, opts)
	if err != nil {
		return "", "", err
	}
	title := ex.Title
	if title == "" || title == pageURL {
		title = name
	}
	return ex.Markdown, title, nil
}

func decodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "\uFFFD")
}
