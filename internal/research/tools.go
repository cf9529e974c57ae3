package research

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search"
	searchmodels "github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
)

type SearchRequest struct {
	Query      string
	MaxResults int
	Language   string
	Categories []string
	Engines    []string
}

type SearchHit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Searcher discovers URLs. Failures yield an empty result, never an error.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) []SearchHit
}

// PageExtraction is the outcome of extracting one URL.
type PageExtraction struct {
	Success     bool           `json:"success"`
	URL         string         `json:"url"`
	Title       string         `json:"title,omitempty"`
	Content     string         `json:"content,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ContentExtractor fetches page text. Failures are reported through
// Success=false, never an error.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) PageExtraction
}

type searchTool struct {
	backend web_search.WebSearcher
	logger  *log.Logger
}

// NewSearchTool adapts a web search backend to Searcher.
func NewSearchTool(backend web_search.WebSearcher, logger *log.Logger) Searcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &searchTool{backend: backend, logger: logger}
}

func (s *searchTool) Search(ctx context.Context, req SearchRequest) []SearchHit {
	results, err := s.backend.Search(ctx, searchmodels.Query{
		Text:       req.Query,
		Limit:      req.MaxResults,
		Language:   req.Language,
		Categories: req.Categories,
		Engines:    req.Engines,
	})
	if err != nil {
		s.logger.Printf("search %q failed: %v", req.Query, err)
		return nil
	}
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		hits = append(hits, SearchHit{
			URL:     r.URL,
			Title:   helpers.PlainText(r.Title),
			Snippet: helpers.PlainText(r.Snippet),
		})
		if req.MaxResults > 0 && len(hits) >= req.MaxResults {
			break
		}
	}
	return hits
}

type extractTool struct {
	fetcher web_fetch.WebFetcher
	timeout time.Duration
	logger  *log.Logger
}

// NewExtractTool adapts a page fetcher to ContentExtractor, bounding every
// call by timeout.
func NewExtractTool(fetcher web_fetch.WebFetcher, timeout time.Duration, logger *log.Logger) ContentExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[FETCH] ", log.LstdFlags)
	}
	return &extractTool{fetcher: fetcher, timeout: timeout, logger: logger}
}

func (e *extractTool) Extract(ctx context.Context, url string) PageExtraction {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.fetcher.Exec(ctx, url)
	if err != nil {
		e.logger.Printf("extract %s failed: %v", url, err)
		return PageExtraction{URL: url, Error: err.Error()}
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "extraction failed"
		}
		return PageExtraction{URL: url, Error: msg}
	}
	content := strings.TrimSpace(res.Text)
	if content == "" {
		return PageExtraction{URL: url, Title: res.Title, Error: "empty content"}
	}
	meta := map[string]any{"status": res.Status, "render_ms": res.RenderMS}
	if res.Byline != "" {
		meta["byline"] = res.Byline
	}
	if res.SiteName != "" {
		meta["site_name"] = res.SiteName
	}
	if res.Excerpt != "" {
		meta["excerpt"] = res.Excerpt
	}
	return PageExtraction{
		Success:     true,
		URL:         url,
		Title:       res.Title,
		Content:     content,
		ContentType: res.ContentType,
		Metadata:    meta,
	}
}

// timedOut reports whether an extraction failure looks like a deadline.
func timedOut(p PageExtraction) bool {
	msg := strings.ToLower(p.Error)
	return strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}
