package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

const DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

// maxCount is the largest page size the API accepts.
const maxCount = 20

type Search struct {
	ApiKey   string
	Endpoint string
	Client   *http.Client
}

func New(apiKey string, timeout time.Duration) Search {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return Search{ApiKey: apiKey, Endpoint: DefaultEndpoint, Client: &http.Client{Timeout: timeout}}
}

func (s Search) Search(ctx context.Context, q models.Query) ([]models.Result, error) {
	// https://api.search.brave.com/app/documentation/web-search
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("brave search: empty query")
	}
	text := q.Text
	for _, site := range q.Sites {
		text += " site:" + site
	}
	params := url.Values{}
	params.Set("q", text)
	count := q.Limit
	if count <= 0 || count > maxCount {
		count = maxCount
	}
	params.Set("count", strconv.Itoa(count))
	if q.Language != "" {
		params.Set("search_lang", q.Language)
	}
	if q.RecencyDays > 0 {
		params.Set("freshness", freshness(q.RecencyDays))
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.ApiKey)
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.StatusError{Provider: "brave", StatusCode: resp.StatusCode}
	}
	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
				Age     string `json:"age"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("brave search: decode: %w", err)
	}
	out := make([]models.Result, 0, len(raw.Web.Results))
	for _, r := range raw.Web.Results {
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet, Engine: "brave", PublishedAt: r.Age})
	}
	return models.Truncate(out, q.Limit), nil
}

func freshness(days int) string {
	switch {
	case days <= 1:
		return "pd"
	case days <= 7:
		return "pw"
	case days <= 31:
		return "pm"
	default:
		return "py"
	}
}
