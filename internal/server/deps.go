package server

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/capability"
	"github.com/mohammad-safakhou/deepresearch/internal/llm"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
	"github.com/mohammad-safakhou/deepresearch/repository"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search"
)

// Deps are the long-lived collaborators shared by every run.
type Deps struct {
	Orchestrator *research.Orchestrator
	Searcher     web_search.WebSearcher
	closers      []func() error
}

// Close releases connections opened by BuildDeps.
func (d *Deps) Close() {
	for _, c := range d.closers {
		if err := c(); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

// BuildDeps wires the orchestrator from configuration. A missing LLM key is
// not an error here: runs report it individually.
func BuildDeps(ctx context.Context, cfg *config.Config) (*Deps, error) {
	d := &Deps{}

	var gen llm.Generator
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		client, err := llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
		gen = client
	} else {
		log.Printf("llm.api_key not set; research runs will fail until it is configured")
	}

	searchURL := cfg.Search.Endpoint
	if web_search.Provider(cfg.Search.Provider) == web_search.SearxngProvider {
		searchURL = cfg.Search.SearxngURL
	}
	searcher, err := web_search.NewWebSearcher(web_search.Config{
		Provider: web_search.Provider(cfg.Search.Provider),
		BaseURL:  searchURL,
		APIKey:   cfg.Search.APIKey,
		Timeout:  cfg.Search.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if cfg.Storage.Redis.Enabled() && cfg.Search.CacheTTL > 0 {
		r := cfg.Storage.Redis
		cache, err := repository.NewSearchCache(ctx, repository.RepoTypeRedis, repository.RedisOptions{
			Host: r.Host, Port: r.Port, Password: r.Password, DB: r.DB, Timeout: r.Timeout,
		})
		if err != nil {
			log.Printf("search cache disabled: %v", err)
		} else {
			d.closers = append(d.closers, cache.Close)
			searcher = web_search.NewCached(searcher, cache, cfg.Search.CacheTTL, nil)
		}
	}
	d.Searcher = searcher

	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Fetch.Backend), cfg.Fetch.Timeout, cfg.Fetch.MaxChars)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if cf, ok := fetcher.(chromedp.Fetch); ok {
		cf.Headless = cfg.Fetch.Headless
		fetcher = cf
	}

	catalog, err := NewCatalog(cfg.Capability)
	if err != nil {
		return nil, fmt.Errorf("capability: %w", err)
	}

	d.Orchestrator = research.NewOrchestrator(
		gen,
		research.NewSearchTool(searcher, nil),
		research.NewExtractTool(fetcher, cfg.Fetch.Timeout, nil),
		catalog,
		research.Options{
			MaxGapIterations:  cfg.Research.MaxGapIterations,
			ExtractStructured: cfg.Research.ExtractStructured,
			Concurrency:       cfg.Fetch.Concurrency,
			DefaultMaxSteps:   cfg.Research.MaxSteps,
			Budget:            cfg.Research.Budget(),
		},
	)
	return d, nil
}

// NewCatalog builds the tool catalog, signing the built-in cards with the
// configured secret and enforcing the configured required kinds.
func NewCatalog(cfg config.CapabilityConfig) (*capability.Registry, error) {
	if len(cfg.RequiredTools) == 0 {
		return capability.NewDefaultRegistry(cfg.SigningSecret)
	}
	required := make([]capability.ToolKind, 0, len(cfg.RequiredTools))
	for _, name := range cfg.RequiredTools {
		kind, ok := capability.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown tool kind %q", name)
		}
		required = append(required, kind)
	}
	cards := capability.DefaultToolCards()
	if cfg.SigningSecret != "" {
		for i := range cards {
			signed, err := capability.Sign(cards[i], cfg.SigningSecret)
			if err != nil {
				return nil, err
			}
			cards[i] = signed
		}
	}
	return capability.NewRegistry(cards, cfg.SigningSecret, required)
}
