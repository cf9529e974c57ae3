package web_fetch

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/httpfetch"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/models"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

var ErrUnsupportedFetcher = errors.New("unsupported fetcher type")

// WebFetcher retrieves a page and returns its readable text. Fetch failures
// are reported through Result.Success/Error; a returned error means the
// request itself was invalid.
type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	ChromedpFetcherType FetcherType = "chromedp"
	HTTPFetcherType     FetcherType = "http"
)

func NewWebFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case ChromedpFetcherType:
		return chromedp.Fetch{Timeout: timeout, MaxChars: maxChars, Headless: true}, nil
	case HTTPFetcherType, "":
		return httpfetch.New(timeout, maxChars), nil
	default:
		return nil, ErrUnsupportedFetcher
	}
}
