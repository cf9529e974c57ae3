package web_search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/tools/web_search/brave"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/duckduckgo"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/models"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/searxng"
	"github.com/mohammad-safakhou/deepresearch/tools/web_search/serper"
)

type WebSearcher interface {
	Search(ctx context.Context, q models.Query) ([]models.Result, error)
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Provider string

const (
	SearxngProvider    Provider = "searxng"
	BraveProvider      Provider = "brave"
	SerperProvider     Provider = "serper"
	DuckDuckGoProvider Provider = "duckduckgo"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported search provider")
	ErrMissingCredentials  = errors.New("search provider credentials missing")
)

type Config struct {
	Provider Provider
	// BaseURL is the SearXNG instance, or an endpoint override for the others.
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewWebSearcher(cfg Config) (WebSearcher, error) {
	switch Provider(strings.ToLower(string(cfg.Provider))) {
	case SearxngProvider:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: searxng url", ErrMissingCredentials)
		}
		return searxng.New(cfg.BaseURL, cfg.Timeout), nil
	case BraveProvider:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: brave api key", ErrMissingCredentials)
		}
		s := brave.New(cfg.APIKey, cfg.Timeout)
		if cfg.BaseURL != "" {
			s.Endpoint = cfg.BaseURL
		}
		return s, nil
	case SerperProvider:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: serper api key", ErrMissingCredentials)
		}
		s := serper.New(cfg.APIKey, cfg.Timeout)
		if cfg.BaseURL != "" {
			s.Endpoint = cfg.BaseURL
		}
		return s, nil
	case DuckDuckGoProvider:
		s := duckduckgo.New(cfg.Timeout)
		if cfg.BaseURL != "" {
			s.Endpoint = cfg.BaseURL
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

// Ping checks a backend when it supports it; others are assumed reachable.
func Ping(ctx context.Context, s WebSearcher) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
