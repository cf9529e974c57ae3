// Package readable turns raw HTML into article text shared by the fetch
// backends.
package readable

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/models"
)

// Extract runs readability over html and fills a successful Result. An
// empty article yields Success=false.
func Extract(rawURL, html string, status int, maxChars int, started time.Time) models.Result {
	res := models.Result{URL: rawURL, Status: status, ContentType: "text/html"}
	article, err := readability.FromReader(strings.NewReader(html), parseURL(rawURL))
	res.RenderMS = int(time.Since(started) / time.Millisecond)
	if err != nil {
		res.Error = "readability: " + err.Error()
		return res
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		res.Error = "no readable content"
		return res
	}
	sum := sha1.Sum([]byte(html))
	res.Success = true
	res.Title = strings.TrimSpace(article.Title)
	res.Byline = strings.TrimSpace(article.Byline)
	res.SiteName = strings.TrimSpace(article.SiteName)
	res.Excerpt = strings.TrimSpace(article.Excerpt)
	res.TopImage = article.Image
	res.Text = ClipRunes(text, maxChars)
	res.HTMLHash = hex.EncodeToString(sum[:])
	return res
}

// ClipRunes keeps at most n characters of s; n <= 0 keeps everything.
func ClipRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func parseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
