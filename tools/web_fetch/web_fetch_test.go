package web_fetch

import (
	"errors"
	"testing"

	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/httpfetch"
)

func TestNewWebFetcher(t *testing.T) {
	f, err := NewWebFetcher(ChromedpFetcherType, 0, 0)
	if err != nil {
		t.Fatalf("chromedp: %v", err)
	}
	cf, ok := f.(chromedp.Fetch)
	if !ok || cf.Timeout != DefaultTimeout || cf.MaxChars != MaxCharsDefault || !cf.Headless {
		t.Fatalf("unexpected chromedp fetcher %#v", f)
	}

	f, err = NewWebFetcher(HTTPFetcherType, 0, 500)
	if err != nil {
		t.Fatalf("http: %v", err)
	}
	hf, ok := f.(httpfetch.Fetch)
	if !ok || hf.MaxChars != 500 || hf.Client.Timeout != DefaultTimeout {
		t.Fatalf("unexpected http fetcher %#v", f)
	}

	if _, err := NewWebFetcher("ftp", 0, 0); !errors.Is(err, ErrUnsupportedFetcher) {
		t.Fatalf("expected ErrUnsupportedFetcher, got %v", err)
	}
}
