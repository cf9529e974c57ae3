package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

// Search queries a SearXNG instance through its JSON API. The instance must
// have the json output format enabled.
type Search struct {
	BaseURL string
	Client  *http.Client
}

func New(baseURL string, timeout time.Duration) Search {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return Search{BaseURL: strings.TrimRight(baseURL, "/"), Client: &http.Client{Timeout: timeout}}
}

type response struct {
	Results []struct {
		URL           string  `json:"url"`
		Title         string  `json:"title"`
		Content       string  `json:"content"`
		Engine        string  `json:"engine"`
		PublishedDate *string `json:"publishedDate"`
	} `json:"results"`
}

func (s Search) Search(ctx context.Context, q models.Query) ([]models.Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("searxng search: empty query")
	}
	params := url.Values{}
	text := q.Text
	for _, site := range q.Sites {
		text += " site:" + site
	}
	params.Set("q", text)
	params.Set("format", "json")
	if q.Language != "" {
		params.Set("language", q.Language)
	}
	if len(q.Categories) > 0 {
		params.Set("categories", strings.Join(q.Categories, ","))
	}
	if len(q.Engines) > 0 {
		params.Set("engines", strings.Join(q.Engines, ","))
	}
	if q.RecencyDays > 0 {
		params.Set("time_range", timeRange(q.RecencyDays))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searxng search: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.StatusError{Provider: "searxng", StatusCode: resp.StatusCode}
	}
	var raw response
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("searxng search: decode: %w", err)
	}
	out := make([]models.Result, 0, len(raw.Results))
	for _, r := range raw.Results {
		res := models.Result{URL: r.URL, Title: r.Title, Snippet: r.Content, Engine: r.Engine}
		if r.PublishedDate != nil {
			res.PublishedAt = *r.PublishedDate
		}
		out = append(out, res)
	}
	return models.Truncate(out, q.Limit), nil
}

// Ping checks that the instance answers.
func (s Search) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("searxng ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &models.StatusError{Provider: "searxng", StatusCode: resp.StatusCode}
	}
	return nil
}

func timeRange(days int) string {
	switch {
	case days <= 1:
		return "day"
	case days <= 7:
		return "week"
	case days <= 31:
		return "month"
	default:
		return "year"
	}
}
