package helpers

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Citation models one bibliography entry of a report.
type Citation struct {
	ID       int
	Title    string
	URL      string
	Kind     string
	Accessed time.Time
}

// FormatCitation renders a bibliography line:
// [id] Title (kind, domain, accessed YYYY-MM-DD) <URL>
// The kind is omitted for plain websites.
func FormatCitation(c Citation) string {
	var parts []string
	if c.ID > 0 {
		parts = append(parts, "["+strconv.Itoa(c.ID)+"]")
	}
	if title := strings.TrimSpace(c.Title); title != "" {
		parts = append(parts, title)
	}
	if domain := Domain(c.URL); domain != "" {
		var meta []string
		if kind := strings.TrimSpace(c.Kind); kind != "" && kind != "website" {
			meta = append(meta, kind)
		}
		meta = append(meta, domain)
		if !c.Accessed.IsZero() {
			meta = append(meta, "accessed "+c.Accessed.Format("2006-01-02"))
		}
		parts = append(parts, "("+strings.Join(meta, ", ")+")")
	}
	if link := strings.TrimSpace(c.URL); link != "" {
		parts = append(parts, "<"+link+">")
	}
	return strings.Join(parts, " ")
}

// Domain returns the lowercased host component of raw without default ports.
// It returns "" when raw is not an absolute URL.
func Domain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return host
}
