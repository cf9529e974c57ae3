package searxng

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

func TestSearchBuildsQueryAndParses(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"url": "https://a.example", "title": "A", "content": "first", "engine": "google", "publishedDate": "2024-01-02"},
			{"url": "https://b.example", "title": "B", "content": "second", "engine": "duckduckgo", "publishedDate": null},
			{"url": "https://c.example", "title": "C", "content": "third"}
		]}`))
	}))
	defer srv.Close()

	s := New(srv.URL+"/", time.Second)
	res, err := s.Search(context.Background(), models.Query{
		Text: "solar", Limit: 2, Language: "fr",
		Categories: []string{"general"}, Engines: []string{"google", "duckduckgo"},
		RecencyDays: 5,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 || res[0].PublishedAt != "2024-01-02" || res[1].Engine != "duckduckgo" {
		t.Fatalf("unexpected results: %+v", res)
	}
	q := got.URL.Query()
	if got.URL.Path != "/search" || q.Get("format") != "json" || q.Get("q") != "solar" {
		t.Fatalf("unexpected request: %s", got.URL)
	}
	if q.Get("language") != "fr" || q.Get("engines") != "google,duckduckgo" || q.Get("categories") != "general" || q.Get("time_range") != "week" {
		t.Fatalf("unexpected params: %v", q)
	}
}

func TestSearchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err := New(srv.URL, time.Second).Search(context.Background(), models.Query{Text: "x"})
	var se *models.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	if _, err := New("http://unused", time.Second).Search(context.Background(), models.Query{Text: "  "}); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestSearchSitesAppended(t *testing.T) {
	var q string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()
	if _, err := New(srv.URL, time.Second).Search(context.Background(), models.Query{Text: "grid", Sites: []string{"gov.example"}}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if q != "grid site:gov.example" {
		t.Fatalf("unexpected query: %q", q)
	}
}
