package research

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/deepresearch/internal/budget"
	"github.com/mohammad-safakhou/deepresearch/internal/llm"
)

var (
	promptSourcePattern  = regexp.MustCompile(`"source": "([^"]+)"`)
	promptSectionPattern = regexp.MustCompile(`Write the section "([^"]+)"`)
)

// fakeLLM answers each prompt kind with a canned response.
type fakeLLM struct {
	mu sync.Mutex

	plan       string
	coherence  string
	facts      string
	planErr    error
	synthesize func(section string, call int, sources []string) string

	calls         map[string]int
	sectionCalls  map[string]int
	lastMaxTokens map[string]int
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		calls:         map[string]int{},
		sectionCalls:  map[string]int{},
		lastMaxTokens: map[string]int{},
		coherence:     `{"improvements": [], "redundancies": [], "coherence_score": 90}`,
		facts:         `{}`,
		synthesize:    longSection,
	}
}

func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "expert research planner"):
		return "planning"
	case strings.Contains(prompt, "Review the overall coherence"):
		return "coherence"
	case strings.Contains(prompt, "Analyse the content below"):
		return "extraction"
	case strings.Contains(prompt, "Write the section"):
		return "synthesis"
	default:
		return "other"
	}
}

func (f *fakeLLM) Generate(_ context.Context, msgs []llm.Message, maxTokens int, _ float64) (string, error) {
	prompt := msgs[len(msgs)-1].Content
	kind := promptKind(prompt)
	f.mu.Lock()
	f.calls[kind]++
	f.lastMaxTokens[kind] = maxTokens
	section := ""
	if m := promptSectionPattern.FindStringSubmatch(prompt); m != nil {
		section = m[1]
		f.sectionCalls[section]++
	}
	call := f.sectionCalls[section]
	f.mu.Unlock()

	switch kind {
	case "planning":
		if f.planErr != nil {
			return "", f.planErr
		}
		return f.plan, nil
	case "coherence":
		return f.coherence, nil
	case "extraction":
		return f.facts, nil
	case "synthesis":
		var sources []string
		for _, m := range promptSourcePattern.FindAllStringSubmatch(prompt, -1) {
			sources = append(sources, m[1])
		}
		return f.synthesize(section, call, sources), nil
	}
	return "", errors.New("unexpected prompt")
}

func (f *fakeLLM) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *fakeLLM) sectionCount(section string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sectionCalls[section]
}

// longSection cites every source and is long enough to avoid length gaps.
func longSection(section string, _ int, sources []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s opens with context.", section)
	for _, s := range sources {
		fmt.Fprintf(&b, " A finding reported here [SOURCE:%s].", s)
	}
	b.WriteString(" ")
	b.WriteString(strings.Repeat("Renewable energy adoption keeps growing across regions. ", 30))
	return strings.TrimSpace(b.String())
}

// fakeSearcher returns n distinct hits per call.
type fakeSearcher struct {
	mu       sync.Mutex
	n        int
	requests []SearchRequest
}

func (s *fakeSearcher) Search(_ context.Context, req SearchRequest) []SearchHit {
	s.mu.Lock()
	call := len(s.requests)
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	n := s.n
	if req.MaxResults > 0 && req.MaxResults < n {
		n = req.MaxResults
	}
	hits := make([]SearchHit, 0, n)
	for i := 0; i < n; i++ {
		hits = append(hits, SearchHit{
			URL:     fmt.Sprintf("https://src%d-%d.example.org/article", call, i),
			Title:   "Renewable energy adoption report",
			Snippet: "Renewable adoption figures and energy statistics",
		})
	}
	return hits
}

func (s *fakeSearcher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// fakeExtractor serves the same relevant page for every URL except those in
// fail.
type fakeExtractor struct {
	mu    sync.Mutex
	fail  map[string]string
	fetch []string
}

func pageText() string {
	return strings.Repeat("Renewable energy adoption reached 42 percent in 2023 according to 12 agencies. ", 8)
}

func (e *fakeExtractor) Extract(_ context.Context, url string) PageExtraction {
	e.mu.Lock()
	e.fetch = append(e.fetch, url)
	msg, failed := e.fail[url]
	e.mu.Unlock()
	if failed {
		return PageExtraction{URL: url, Error: msg}
	}
	return PageExtraction{Success: true, URL: url, Title: "Article", Content: pageText()}
}

func (e *fakeExtractor) fetched() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fetch)
}

// para builds exactly n runes of keyword-rich text.
func para(n int) string {
	const unit = "solar energy output 12 "
	return clipRunes(strings.Repeat(unit, n/len(unit)+1), n)
}

func newTestRun(query string, maxSteps int) *run {
	return &run{
		id:      "test",
		query:   query,
		exec:    NewExecutionContext(query),
		sources: NewSourceRegistry(),
		tracer:  NewExecutionTracer(),
		monitor: newStepMonitor(maxSteps),
	}
}

func newStepMonitor(maxSteps int) *budget.Monitor {
	if maxSteps <= 0 {
		return budget.NewMonitor(budget.Config{})
	}
	return budget.NewMonitor(budget.Config{MaxSteps: &maxSteps})
}
