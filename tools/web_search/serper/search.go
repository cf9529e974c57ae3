package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

const DefaultEndpoint = "https://google.serper.dev/search"

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
	// https://serper.dev/ docs
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("serper search: empty query")
	}
	text := q.Text
	if len(q.Sites) > 0 {
		sites := make([]string, 0, len(q.Sites))
		for _, site := range q.Sites {
			sites = append(sites, "site:"+site)
		}
		text += " (" + strings.Join(sites, " OR ") + ")"
	}
	payload := map[string]any{"q": text}
	if q.Limit > 0 {
		payload["num"] = q.Limit
	}
	if q.Language != "" {
		payload["hl"] = q.Language
	}
	if q.RecencyDays > 0 {
		payload["tbs"] = fmt.Sprintf("qdr:d%d", q.RecencyDays)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serper search: %w", err)
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("serper search: %w", err)
	}
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.StatusError{Provider: "serper", StatusCode: resp.StatusCode}
	}
	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("serper search: decode: %w", err)
	}
	out := make([]models.Result, 0, len(raw.Organic))
	for _, r := range raw.Organic {
		out = append(out, models.Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet, Engine: "google", PublishedAt: r.Date})
	}
	return models.Truncate(out, q.Limit), nil
}
