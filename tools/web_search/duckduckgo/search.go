package duckduckgo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

const (
	DefaultEndpoint = "https://html.duckduckgo.com/html/"
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxBody         = 1 << 20
)

// Search scrapes the DuckDuckGo HTML endpoint. It needs no API key.
type Search struct {
	Endpoint string
	Client   *http.Client
}

func New(timeout time.Duration) Search {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return Search{Endpoint: DefaultEndpoint, Client: &http.Client{Timeout: timeout}}
}

func (s Search) Search(ctx context.Context, q models.Query) ([]models.Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("duckduckgo search: empty query")
	}
	text := q.Text
	for _, site := range q.Sites {
		text += " site:" + site
	}
	params := url.Values{}
	params.Set("q", text)
	if q.Language != "" {
		params.Set("kl", regionFor(q.Language))
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &models.StatusError{Provider: "duckduckgo", StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: read: %w", err)
	}
	return ParseResults(string(body), q.Limit)
}

// ParseResults extracts results from a DuckDuckGo HTML page.
func ParseResults(page string, limit int) ([]models.Result, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: parse: %w", err)
	}
	var out []models.Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if limit > 0 && len(out) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") && hasClass(n, "results_links") {
			if r := extractResult(n); r.URL != "" && r.Title != "" {
				out = append(out, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func extractResult(n *html.Node) models.Result {
	r := models.Result{Engine: "duckduckgo"}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a"):
				r.URL = resolveRedirect(attr(n, "href"))
				r.Title = text(n)
			case hasClass(n, "result__snippet"):
				r.Snippet = text(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return r
}

// resolveRedirect unwraps the /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	if !strings.Contains(href, "duckduckgo.com/l/") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("uddg")
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// regionFor maps a language code to a DuckDuckGo region.
func regionFor(lang string) string {
	switch strings.ToLower(lang) {
	case "en":
		return "us-en"
	case "fr":
		return "fr-fr"
	case "de":
		return "de-de"
	case "es":
		return "es-es"
	case "it":
		return "it-it"
	default:
		return "wt-wt"
	}
}
