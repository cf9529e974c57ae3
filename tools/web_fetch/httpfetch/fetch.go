package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/models"
	"github.com/mohammad-safakhou/deepresearch/tools/web_fetch/readable"
)

const (
	userAgent = "DeepResearchBot/1.0 (+https://github.com/mohammad-safakhou/deepresearch)"
	maxBody   = 5 << 20
)

// Fetch downloads pages with a plain HTTP GET. HTML goes through
// readability; text formats are returned as-is.
type Fetch struct {
	Client   *http.Client
	MaxChars int
}

func New(timeout time.Duration, maxChars int) Fetch {
	return Fetch{Client: &http.Client{Timeout: timeout}, MaxChars: maxChars}
}

func (f Fetch) Exec(ctx context.Context, url string) (models.Result, error) {
	if strings.TrimSpace(url) == "" {
		return models.Result{}, errors.New("invalid url")
	}
	t0 := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Result{}, fmt.Errorf("http fetch: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Result{URL: url, Status: 599, Error: err.Error(), RenderMS: elapsedMS(t0)}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Result{URL: url, Status: resp.StatusCode, Error: fmt.Sprintf("http %d", resp.StatusCode), RenderMS: elapsedMS(t0)}, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return models.Result{URL: url, Status: resp.StatusCode, Error: "read: " + err.Error(), RenderMS: elapsedMS(t0)}, nil
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "" || strings.Contains(mediaType, "html"):
		return readable.Extract(url, string(body), resp.StatusCode, f.MaxChars, t0), nil
	case strings.HasPrefix(mediaType, "text/") || mediaType == "application/json":
		text := strings.TrimSpace(string(body))
		res := models.Result{URL: url, Status: resp.StatusCode, ContentType: mediaType, RenderMS: elapsedMS(t0)}
		if text == "" {
			res.Error = "empty body"
			return res, nil
		}
		res.Success = true
		res.Text = readable.ClipRunes(text, f.MaxChars)
		return res, nil
	default:
		return models.Result{URL: url, Status: resp.StatusCode, ContentType: mediaType, Error: "unsupported content type " + mediaType, RenderMS: elapsedMS(t0)}, nil
	}
}

func elapsedMS(t0 time.Time) int {
	return int(time.Since(t0) / time.Millisecond)
}
