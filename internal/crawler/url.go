package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

var trackingParams = map[string]struct{}{
	"gclid":  {},
	"fbclid": {},
	"mc_cid": {},
	"mc_eid": {},
}

// NormalizeURL standardizes a URL so equivalent spellings share one key.
// It lowercases the scheme and host, removes default ports, drops the
// fragment and trailing slash, strips tracking parameters and sorts the query.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return normalize(u).String(), nil
}

// NormalizeParsed is NormalizeURL for an already parsed URL. The input is not modified.
func NormalizeParsed(u *url.URL) string {
	return normalize(u).String()
}

func normalize(src *url.URL) *url.URL {
	u := *src
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	u.Path = trimSlash(u.Path)
	if u.RawPath != "" {
		u.RawPath = trimSlash(u.RawPath)
	}

	q := u.Query()
	for key := range q {
		if _, ok := trackingParams[strings.ToLower(key)]; ok || strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = false
	return &u
}

func trimSlash(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

// ResolveLink resolves href against base and returns its normalized absolute
// form. Non-navigational links (mailto:, javascript:, bare fragments, ...)
// report false.
func ResolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	return NormalizeParsed(abs), true
}

// HostPath splits a URL into its lowercase host and path ("/" when empty).
func HostPath(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	return strings.ToLower(u.Hostname()), p
}
