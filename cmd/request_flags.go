package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

// requestFlags mirrors the HTTP request body on the command line. Only flags
// the user sets override the configured defaults.
type requestFlags struct {
	url               string
	maxPages          int
	maxDepth          int
	allowedHosts      []string
	pathPrefixes      []string
	includeSubdomains bool
	respectRobots     bool
	useSitemap        bool
	stripLinks        bool
	stripImages       bool
	readability       bool
	minTextChars      int
	render            string
	budget            time.Duration
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.url, "url", "", "seed URL (required)")
	fs.IntVar(&f.maxPages, "max-pages", 0, "maximum pages to include")
	fs.IntVar(&f.maxDepth, "max-depth", 0, "maximum link depth from the seed")
	fs.StringSliceVar(&f.allowedHosts, "allowed-host", nil, "additional host to crawl (repeatable)")
	fs.StringSliceVar(&f.pathPrefixes, "path-prefix", nil, "only crawl paths under this prefix (repeatable)")
	fs.BoolVar(&f.includeSubdomains, "include-subdomains", false, "also crawl subdomains of allowed hosts")
	fs.BoolVar(&f.respectRobots, "respect-robots", true, "honor robots.txt")
	fs.BoolVar(&f.useSitemap, "use-sitemap", true, "seed the crawl from sitemap.xml")
	fs.BoolVar(&f.stripLinks, "strip-links", true, "render links as plain text")
	fs.BoolVar(&f.stripImages, "strip-images", true, "drop images from the Markdown")
	fs.BoolVar(&f.readability, "readability-fallback", true, "retry thin pages with the readability extractor")
	fs.IntVar(&f.minTextChars, "min-text-chars", 0, "pages with less text are reported as thin")
	fs.StringVar(&f.render, "render", "", "fetch strategy: plain, rendered or auto")
	fs.DurationVar(&f.budget, "budget", 0, "wall-clock budget for the crawl")
	_ = cmd.MarkFlagRequired("url")
}

func (f *requestFlags) request(cmd *cobra.Command, base crawler.CrawlRequest) crawler.CrawlRequest {
	fs := cmd.Flags()
	req := base
	req.SeedURL = f.url
	if fs.Changed("max-pages") {
		req.MaxPages = f.maxPages
	}
	if fs.Changed("max-depth") {
		req.MaxDepth = f.maxDepth
	}
	if len(f.allowedHosts) > 0 {
		req.AllowedHosts = f.allowedHosts
	}
	if len(f.pathPrefixes) > 0 {
		req.PathPrefixes = f.pathPrefixes
	}
	if fs.Changed("include-subdomains") {
		req.IncludeSubdomains = f.includeSubdomains
	}
	if fs.Changed("respect-robots") {
		req.RespectRobots = f.respectRobots
	}
	if fs.Changed("use-sitemap") {
		req.UseSitemap = f.useSitemap
	}
	if fs.Changed("strip-links") {
		req.StripLinks = f.stripLinks
	}
	if fs.Changed("strip-images") {
		req.StripImages = f.stripImages
	}
	if fs.Changed("readability-fallback") {
		req.ReadabilityFallback = f.readability
	}
	if fs.Changed("min-text-chars") {
		req.MinTextChars = f.minTextChars
	}
	if f.render != "" {
		req.RenderMode = crawler.ParseRenderMode(f.render)
	}
	if fs.Changed("budget") {
		req.Budget = f.budget
	}
	return req
}
