package models

import "fmt"

// Query is one search request handed to a backend.
type Query struct {
	Text       string   `json:"text"`
	Limit      int      `json:"limit"`
	Language   string   `json:"language,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Engines    []string `json:"engines,omitempty"`
	// Sites restricts results to these domains when the backend supports it.
	Sites []string `json:"sites,omitempty"`
	// RecencyDays keeps results newer than this many days; 0 disables.
	RecencyDays int `json:"recency_days,omitempty"`
}

type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Engine      string `json:"engine,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// StatusError is returned when a search backend answers with a non-2xx
// status.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s search: unexpected status %d", e.Provider, e.StatusCode)
}

// Truncate caps results at limit; a non-positive limit keeps everything.
func Truncate(results []Result, limit int) []Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
