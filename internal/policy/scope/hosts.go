package scope

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// hostMatcher stores exact hosts and suffix wildcards derived from the request.
type hostMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostMatcher(patterns []string, includeSubdomains bool) *hostMatcher {
	matcher := &hostMatcher{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := cleanHost(raw)
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
			if includeSubdomains {
				matcher.addSuffix(value)
			}
		}
	}
	return matcher
}

// cleanHost accepts "Example.com", "https://example.com/docs" or "example.com:8080".
func cleanHost(raw string) string {
	value := strings.TrimSpace(strings.ToLower(raw))
	if strings.Contains(value, "://") {
		if u, err := url.Parse(value); err == nil {
			value = u.Hostname()
		}
	}
	if i := strings.IndexByte(value, '/'); i >= 0 {
		value = value[:i]
	}
	if h, _, ok := strings.Cut(value, ":"); ok && !strings.HasPrefix(value, "[") {
		value = h
	}
	return strings.TrimSuffix(value, ".")
}

func (m *hostMatcher) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

func (m *hostMatcher) Match(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return false
	}
	if _, ok := m.exact[host]; ok {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// DefaultHosts returns the hosts a crawl may visit when the caller names
// none: the seed host and its registrable domain.
func DefaultHosts(seedHost string) []string {
	host := cleanHost(seedHost)
	if host == "" {
		return nil
	}
	hosts := []string{host}
	if root, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil && root != host {
		hosts = append(hosts, root)
	}
	return hosts
}
