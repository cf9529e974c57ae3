package chromedp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/models"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/readable"
)

const userAgent = "DeepResearchBot/1.0 (+https://github.com/mohammad-safakhou/deepresearch)"

// Fetch renders pages in headless Chrome before readability extraction, for
// sites that build their content with JavaScript.
type Fetch struct {
	Timeout  time.Duration
	MaxChars int
	Headless bool
}

func (f Fetch) Exec(ctx context.Context, url string) (models.Result, error) {
	if strings.TrimSpace(url) == "" {
		return models.Result{}, errors.New("invalid url")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	t0 := time.Now()

	html, err := f.fetchHTML(ctx, url)
	if err != nil {
		return models.Result{
			URL:      url,
			Status:   599,
			RenderMS: int(time.Since(t0) / time.Millisecond),
			Error:    "render: " + err.Error(),
		}, nil
	}
	return readable.Extract(url, html, 200, f.MaxChars, t0), nil
}

func (f Fetch) fetchHTML(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.Headless),
		chromedp.UserAgent(userAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
