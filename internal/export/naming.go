package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	nonSlug = regexp.MustCompile(`[^a-z0-9]+`)
	nonHost = regexp.MustCompile(`[^a-z0-9.-]+`)
	nonFile = regexp.MustCompile(`[^a-z0-9._-]+`)
)

// Slugify lowercases value and joins its alphanumeric runs with dashes.
// An empty result becomes "page".
func Slugify(value string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(value), "-"), "-")
	if slug == "" {
		return "page"
	}
	return slug
}

func hostLabel(host string) string {
	label := strings.Trim(nonHost.ReplaceAllString(strings.ToLower(host), "-"), "-.")
	if label == "" {
		return "site"
	}
	return label
}

// Namer hands out file names that are unique within one bundle or preview.
// It is not safe for concurrent use.
type Namer struct {
	used map[string]bool
}

// NewNamer returns an empty Namer.
func NewNamer() *Namer {
	return &Namer{used: make(map[string]bool)}
}

// Assign returns "host__path-slug.md", adding -2, -3, ... when the name was
// already handed out. The root path maps to "index".
func (n *Namer) Assign(host, path string) string {
	slug := "index"
	if trimmed := strings.Trim(path, "/"); trimmed != "" {
		slug = Slugify(trimmed)
	}
	return n.reserve(hostLabel(host) + "__" + slug)
}

// Claim hands out a caller-chosen name such as a preview's suggested
// filename. Directories are dropped, characters outside [a-z0-9._-] become
// dashes and ".md" is appended. A name already handed out gets a numeric
// suffix like Assign does. Claim returns "" when nothing usable is left.
func (n *Namer) Claim(name string) string {
	name = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	base := strings.Trim(nonFile.ReplaceAllString(strings.TrimSuffix(name, ".md"), "-"), "-.")
	if base == "" {
		return ""
	}
	return n.reserve(base)
}

func (n *Namer) reserve(base string) string {
	name := base + ".md"
	for i := 2; n.used[name]; i++ {
		name = fmt.Sprintf("%s-%d.md", base, i)
	}
	n.used[name] = true
	return name
}

// BundleFilename suggests a download name such as
// "example.com__20240102-030405.zip".
func BundleFilename(host string, at time.Time, format Format) string {
	return fmt.Sprintf("%s__%s%s", hostLabel(host), at.UTC().Format("20060102-150405"), format.Extension())
}
