// Package export assembles crawl results into downloadable bundles.
package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

// Format selects the bundle layout.
type Format string

// Supported bundle formats.
const (
	FormatCombined Format = "combined"
	FormatArchive  Format = "zip"
)

// ParseFormat accepts "combined", "md", "markdown", "zip" and "archive".
// Empty input means combined.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "combined", "md", "markdown":
		return FormatCombined, nil
	case "zip", "archive":
		return FormatArchive, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", crawler.ErrInvalidRequest, raw)
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	if f == FormatArchive {
		return ".zip"
	}
	return ".md"
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatArchive {
		return "application/zip"
	}
	return "text/markdown; charset=utf-8"
}

// Meta describes the run a bundle came from.
type Meta struct {
	RunID       string
	SeedURL     string
	GeneratedAt time.Time
	TimedOut    bool
	// Title replaces the default document heading.
	Title string
	// Label replaces the seed host in the bundle filename.
	Label string
}

func (m Meta) label() string {
	if m.Label != "" {
		return m.Label
	}
	host, _ := crawler.HostPath(m.SeedURL)
	return host
}

// Bundle is an assembled artifact ready to serve or store.
type Bundle struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Build assembles pages in the requested format.
func Build(format Format, meta Meta, pages []crawler.PageResult) (Bundle, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatArchive:
		data, err = Archive(meta, pages)
	default:
		format = FormatCombined
		data, err = Combined(meta, pages)
	}
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		Filename:    BundleFilename(meta.label(), meta.GeneratedAt, format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// Combined renders every page into one markdown document in the order given.
func Combined(meta Meta, pages []crawler.PageResult) ([]byte, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	heading := meta.Title
	if heading == "" {
		heading = "Knowledge base: " + meta.label()
	}
	md.H1(heading)
	md.PlainText("")
	var facts []string
	if meta.SeedURL != "" {
		facts = append(facts, "Source: "+markdown.Link(meta.SeedURL, meta.SeedURL))
	}
	facts = append(facts,
		"Pages: "+strconv.Itoa(countOK(pages)),
		"Generated: "+meta.GeneratedAt.UTC().Format(time.RFC3339),
	)
	md.BulletList(facts...)
	md.PlainText("")
	if meta.TimedOut {
		md.Warningf("The crawl ran out of time. This document contains partial results.")
		md.PlainText("")
	}
	if len(pages) == 0 {
		md.PlainText("_No pages were retrieved. The run diagnostics list what was skipped._")
		md.PlainText("")
	}

	for _, page := range pages {
		md.HorizontalRule()
		md.PlainText("")
		md.H2(pageTitle(page))
		md.PlainText("")
		if page.Failed() {
			md.PlainTextf("_Could not retrieve %s: %s_", page.URL, page.Err)
			md.PlainText("")
			continue
		}
		md.PlainText("Source: " + sourceRef(page))
		md.PlainText("")
		md.PlainText(strings.TrimRight(page.Markdown, "\n"))
		md.PlainText("")
	}

	if err := md.Build(); err != nil {
		return nil, fmt.Errorf("render combined markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// Archive writes one markdown file per retrieved page plus index.md. A
// page's Filename, when set, is claimed before falling back to a name
// derived from its host and path.
func Archive(meta Meta, pages []crawler.PageResult) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	namer := NewNamer()
	namer.reserve("index")

	type entry struct {
		title string
		file  string
		host  string
	}
	var (
		entries []entry
		failed  []string
	)
	for _, page := range pages {
		if page.Failed() {
			failed = append(failed, fmt.Sprintf("%s (%s)", page.URL, page.Err))
			continue
		}
		host := page.Host
		if host == "" {
			host, _ = crawler.HostPath(sourceURL(page))
		}
		name := namer.Claim(page.Filename)
		if name == "" {
			name = namer.Assign(host, pagePath(page))
		}
		if err := writeZipFile(zw, name, meta.GeneratedAt, pageDocument(page)); err != nil {
			return nil, err
		}
		entries = append(entries, entry{title: pageTitle(page), file: name, host: host})
	}

	var index bytes.Buffer
	md := markdown.NewMarkdown(&index)
	heading := meta.Title
	if heading == "" {
		heading = "Index"
	}
	md.H1(heading)
	md.PlainText("")
	if meta.SeedURL != "" {
		md.PlainTextf("Source: %s", markdown.Link(meta.SeedURL, meta.SeedURL))
		md.PlainText("")
	}
	if meta.TimedOut {
		md.Warningf("The crawl ran out of time. This archive contains partial results.")
		md.PlainText("")
	}
	if len(pages) == 0 {
		md.PlainText("_No pages were retrieved._")
		md.PlainText("")
	}

	byHost := make(map[string][]string)
	var hosts []string
	for _, e := range entries {
		if _, ok := byHost[e.host]; !ok {
			hosts = append(hosts, e.host)
		}
		byHost[e.host] = append(byHost[e.host], markdown.Link(e.title, e.file))
	}
	sort.Strings(hosts)
	for _, host := range hosts {
		md.H2(host)
		md.PlainText("")
		md.BulletList(byHost[host]...)
		md.PlainText("")
	}
	if len(failed) > 0 {
		md.H2("Not retrieved")
		md.PlainText("")
		md.BulletList(failed...)
		md.PlainText("")
	}
	if err := md.Build(); err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	if err := writeZipFile(zw, "index.md", meta.GeneratedAt, index.Bytes()); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeZipFile(zw *zip.Writer, name string, modified time.Time, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func pageDocument(page crawler.PageResult) []byte {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)
	md.H1(pageTitle(page))
	md.PlainText("")
	md.PlainText("Source: " + sourceRef(page))
	md.PlainText("")
	md.PlainText(strings.TrimRight(page.Markdown, "\n"))
	// Build only fails on writer errors; bytes.Buffer has none.
	_ = md.Build()
	return buf.Bytes()
}

func pageTitle(page crawler.PageResult) string {
	for _, candidate := range []string{page.Title, page.Path, page.URL} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return "Page"
}

func pagePath(page crawler.PageResult) string {
	if page.Path != "" {
		return page.Path
	}
	_, p := crawler.HostPath(sourceURL(page))
	return p
}

func sourceURL(page crawler.PageResult) string {
	if page.FinalURL != "" {
		return page.FinalURL
	}
	return page.URL
}

// sourceRef links web pages and leaves other sources, such as uploaded
// file names, as plain text.
func sourceRef(page crawler.PageResult) string {
	src := sourceURL(page)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return markdown.Link(src, src)
	}
	return src
}

func countOK(pages []crawler.PageResult) int {
	n := 0
	for _, p := range pages {
		if !p.Failed() {
			n++
		}
	}
	return n
}
