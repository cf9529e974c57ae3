package helpers

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

// clickIDParams are ad click identifiers dropped alongside every utm_* key.
var clickIDParams = map[string]bool{
	"gclid": true, "dclid": true, "fbclid": true, "msclkid": true, "igshid": true,
}

// CanonicalURL reduces a source URL to the form used to recognise the same
// page across search engines: lowercase scheme and host, no default port, no
// fragment, no trailing slash, no tracking parameters and a sorted query. A
// missing scheme defaults to https.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := parseURLPreserveHost(raw)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("url missing host")
	}
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}

	p := "/"
	if u.Path != "" {
		p = path.Clean("/" + u.Path)
	}

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || clickIDParams[lower] {
			q.Del(key)
		}
	}
	for _, vals := range q {
		sort.Strings(vals)
	}

	out := url.URL{Scheme: scheme, Host: host, Path: p, RawQuery: q.Encode()}
	if p == "/" {
		out.Path = ""
	}
	return out.String(), nil
}

// URLKey is the dedupe key for a source URL: its canonical form, or the
// trimmed input when it cannot be parsed.
func URLKey(raw string) string {
	if c, err := CanonicalURL(raw); err == nil {
		return c
	}
	return strings.TrimSpace(raw)
}

// HostMatches reports whether the host of rawURL matches pattern. Patterns
// are bare domains ("example.com" also matches subdomains) or use a leading
// wildcard ("*.example.org"). A leading "www." on the host is ignored.
func HostMatches(rawURL, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	if strings.Contains(pattern, "://") {
		pattern = Domain(pattern)
	}
	host := Domain(rawURL)
	if host == "" {
		if parsed, err := parseURLPreserveHost(strings.TrimSpace(rawURL)); err == nil {
			host = strings.ToLower(parsed.Host)
		}
	}
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return false
	}
	if strings.HasPrefix(pattern, "*.") {
		base := strings.TrimPrefix(pattern, "*.")
		return host == base || strings.HasSuffix(host, "."+base)
	}
	pattern = strings.TrimPrefix(pattern, "www.")
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// parseURLPreserveHost attempts to parse raw into a url.URL, handling schemeless URLs.
func parseURLPreserveHost(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		// Attempt schemeless format like example.com/path or //example.com/path.
		if strings.HasPrefix(raw, "//") {
			return url.Parse("https:" + raw)
		}
		return url.Parse("https://" + raw)
	}
	return parsed, nil
}
