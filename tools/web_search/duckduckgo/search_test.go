package duckduckgo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

const samplePage = `<html><body>
<div class="result results_links results_links_deep web-result">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fone.example%2Fpath%3Fa%3D1&amp;rut=abc">First <b>hit</b></a></h2>
  <a class="result__snippet" href="#">Snippet   one</a>
</div>
<div class="result results_links web-result">
  <h2><a class="result__a" href="https://two.example/">Second</a></h2>
  <a class="result__snippet">Snippet two</a>
</div>
<div class="result results_links"><a class="result__snippet">no link</a></div>
<div class="result results_links">
  <h2><a class="result__a" href="https://three.example/">Third</a></h2>
</div>
</body></html>`

func TestParseResults(t *testing.T) {
	res, err := ParseResults(samplePage, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %+v", res)
	}
	if res[0].URL != "https://one.example/path?a=1" || res[0].Title != "First hit" || res[0].Snippet != "Snippet one" {
		t.Fatalf("unexpected first result: %+v", res[0])
	}
	if res[1].URL != "https://two.example/" {
		t.Fatalf("unexpected second result: %+v", res[1])
	}

	limited, _ := ParseResults(samplePage, 2)
	if len(limited) != 2 {
		t.Fatalf("limit not applied: %d", len(limited))
	}
}

func TestSearchRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "tidal power" || r.URL.Query().Get("kl") != "fr-fr" {
			t.Errorf("unexpected query: %v", r.URL.Query())
		}
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()
	res, err := Search{Endpoint: srv.URL}.Search(context.Background(), models.Query{Text: "tidal power", Language: "fr", Limit: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].Engine != "duckduckgo" {
		t.Fatalf("unexpected results: %+v", res)
	}
}

func TestSearchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	if _, err := (Search{Endpoint: srv.URL}).Search(context.Background(), models.Query{Text: "x"}); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}
