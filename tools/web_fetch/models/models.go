package models

// Result is the outcome of fetching and extracting one page. Fetch failures
// that are the page's fault (bad status, unreadable content) are reported
// with Success=false and Error set instead of a Go error.
type Result struct {
	Success     bool   `json:"success"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Byline      string `json:"byline,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
	Text        string `json:"text"`
	TopImage    string `json:"top_image,omitempty"`
	HTMLHash    string `json:"html_hash,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Status      int    `json:"status"`
	RenderMS    int    `json:"render_ms"`
	Error       string `json:"error,omitempty"`
}
