package research

import (
	"context"
	"errors"
	"testing"
	"time"

	fetchmodels "github.com/mohammad-safakhou/deepresearch/tools/web_fetch/models"
	searchmodels "github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

type stubBackend struct {
	results []searchmodels.Result
	err     error
	got     searchmodels.Query
}

func (s *stubBackend) Search(_ context.Context, q searchmodels.Query) ([]searchmodels.Result, error) {
	s.got = q
	return s.results, s.err
}

type stubFetcher struct {
	res  fetchmodels.Result
	err  error
	wait time.Duration
}

func (s stubFetcher) Exec(ctx context.Context, url string) (fetchmodels.Result, error) {
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return fetchmodels.Result{URL: url, Error: ctx.Err().Error()}, nil
		}
	}
	return s.res, s.err
}

func TestSearchToolMapsResults(t *testing.T) {
	backend := &stubBackend{results: []searchmodels.Result{
		{URL: "https://a.example.org", Title: "<b>Solar</b> power", Snippet: "growth &amp; costs"},
		{URL: "  ", Title: "blank"},
		{URL: "https://b.example.org", Title: "Wind"},
		{URL: "https://c.example.org", Title: "Hydro"},
	}}
	tool := NewSearchTool(backend, nil)
	hits := tool.Search(context.Background(), SearchRequest{Query: "energy", MaxResults: 2, Language: "en", Engines: []string{"bing"}})
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Title != "Solar power" || hits[0].Snippet != "growth & costs" {
		t.Fatalf("unexpected sanitised hit %+v", hits[0])
	}
	if hits[1].URL != "https://b.example.org" {
		t.Fatalf("blank url not skipped: %+v", hits)
	}
	if backend.got.Text != "energy" || backend.got.Limit != 2 || backend.got.Language != "en" || len(backend.got.Engines) != 1 {
		t.Fatalf("unexpected query %+v", backend.got)
	}
}

func TestSearchToolSwallowsErrors(t *testing.T) {
	tool := NewSearchTool(&stubBackend{err: errors.New("boom")}, nil)
	if hits := tool.Search(context.Background(), SearchRequest{Query: "x"}); len(hits) != 0 {
		t.Fatalf("expected no hits, got %v", hits)
	}
}

func TestExtractTool(t *testing.T) {
	ok := NewExtractTool(stubFetcher{res: fetchmodels.Result{
		Success: true, URL: "https://a.example.org", Title: "A", Text: "  body text  ",
		Status: 200, SiteName: "Example", ContentType: "text/html",
	}}, time.Second, nil)
	got := ok.Extract(context.Background(), "https://a.example.org")
	if !got.Success || got.Content != "body text" || got.Metadata["site_name"] != "Example" || got.Metadata["status"] != 200 {
		t.Fatalf("unexpected extraction %+v", got)
	}

	failed := NewExtractTool(stubFetcher{res: fetchmodels.Result{URL: "u", Status: 404}}, time.Second, nil).Extract(context.Background(), "u")
	if failed.Success || failed.Error != "extraction failed" {
		t.Fatalf("unexpected failure %+v", failed)
	}

	empty := NewExtractTool(stubFetcher{res: fetchmodels.Result{Success: true, Text: "   "}}, time.Second, nil).Extract(context.Background(), "u")
	if empty.Success || empty.Error != "empty content" {
		t.Fatalf("unexpected empty result %+v", empty)
	}

	errd := NewExtractTool(stubFetcher{err: errors.New("invalid url")}, time.Second, nil).Extract(context.Background(), "")
	if errd.Success || errd.Error != "invalid url" {
		t.Fatalf("unexpected error result %+v", errd)
	}
}

func TestExtractToolTimeout(t *testing.T) {
	tool := NewExtractTool(stubFetcher{wait: time.Second}, 10*time.Millisecond, nil)
	got := tool.Extract(context.Background(), "https://slow.example.org")
	if got.Success || !timedOut(got) {
		t.Fatalf("expected timeout, got %+v", got)
	}
}
