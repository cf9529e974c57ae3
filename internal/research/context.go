package research

import (
	"fmt"
	"sort"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
)

const previewLimit = 100

// StepRecord is one entry of the run's audit log.
type StepRecord struct {
	StepNumber    int       `json:"step_number"`
	Tool          string    `json:"tool"`
	Action        string    `json:"action"`
	Success       bool      `json:"success"`
	Timestamp     time.Time `json:"timestamp"`
	InputPreview  string    `json:"input_preview"`
	OutputPreview string    `json:"output_preview"`
}

type ToolStats struct {
	Success  int `json:"success"`
	Failures int `json:"failures"`
}

// SectionState accumulates one section's data and prose.
type SectionState struct {
	RawData []ExtractedItem `json:"raw_data"`
	Content string          `json:"content"`
	KeyData []DataPoint     `json:"key_data"`
	Sources []string        `json:"sources"`
}

// Dataset is the named output of one tool invocation.
type Dataset struct {
	Name    string `json:"name"`
	Tool    string `json:"tool"`
	Records int    `json:"records"`
	Data    any    `json:"data"`
}

// ExecutionContext is the mutable state of a single research run. It is owned
// by one orchestrator goroutine and is not safe for concurrent use.
type ExecutionContext struct {
	query string

	steps        []StepRecord
	datasets     map[string]Dataset
	datasetOrder []string
	discovered   []string
	seen         map[string]struct{}
	toolStats    map[string]*ToolStats

	sections     map[string]*SectionState
	sectionOrder []string
}

func NewExecutionContext(query string) *ExecutionContext {
	return &ExecutionContext{
		query:     query,
		datasets:  make(map[string]Dataset),
		seen:      make(map[string]struct{}),
		toolStats: make(map[string]*ToolStats),
		sections:  make(map[string]*SectionState),
	}
}

func (c *ExecutionContext) Query() string { return c.query }

// InitSections fixes the section set. It may be called only once.
func (c *ExecutionContext) InitSections(names []string) error {
	if c.sectionOrder != nil {
		return fmt.Errorf("sections already initialised")
	}
	c.sectionOrder = make([]string, 0, len(names))
	for _, name := range names {
		if _, dup := c.sections[name]; dup {
			continue
		}
		c.sections[name] = &SectionState{}
		c.sectionOrder = append(c.sectionOrder, name)
	}
	return nil
}

// SectionNames returns sections in canvas order.
func (c *ExecutionContext) SectionNames() []string {
	return append([]string(nil), c.sectionOrder...)
}

// Section returns the mutable state of a known section.
func (c *ExecutionContext) Section(name string) (*SectionState, bool) {
	s, ok := c.sections[name]
	return s, ok
}

// AddStep appends to the audit log and updates per-tool counters.
func (c *ExecutionContext) AddStep(tool, action string, input, output any, success bool) StepRecord {
	rec := StepRecord{
		StepNumber:    len(c.steps) + 1,
		Tool:          tool,
		Action:        action,
		Success:       success,
		Timestamp:     time.Now().UTC(),
		InputPreview:  preview(input),
		OutputPreview: preview(output),
	}
	c.steps = append(c.steps, rec)
	stats, ok := c.toolStats[tool]
	if !ok {
		stats = &ToolStats{}
		c.toolStats[tool] = stats
	}
	if success {
		stats.Success++
	} else {
		stats.Failures++
	}
	return rec
}

func (c *ExecutionContext) Steps() []StepRecord {
	return append([]StepRecord(nil), c.steps...)
}

// ToolStats returns a snapshot of per-tool success counters.
func (c *ExecutionContext) ToolStats() map[string]ToolStats {
	out := make(map[string]ToolStats, len(c.toolStats))
	for k, v := range c.toolStats {
		out[k] = *v
	}
	return out
}

// AddDataset stores data under a key derived from name. Existing keys are
// never overwritten; a numeric suffix is added instead. The key is returned.
func (c *ExecutionContext) AddDataset(name, tool string, records int, data any) string {
	key := name
	for i := 2; ; i++ {
		if _, exists := c.datasets[key]; !exists {
			break
		}
		key = fmt.Sprintf("%s_%d", name, i)
	}
	c.datasets[key] = Dataset{Name: key, Tool: tool, Records: records, Data: data}
	c.datasetOrder = append(c.datasetOrder, key)
	return key
}

func (c *ExecutionContext) Dataset(name string) (Dataset, bool) {
	d, ok := c.datasets[name]
	return d, ok
}

func (c *ExecutionContext) DatasetNames() []string {
	return append([]string(nil), c.datasetOrder...)
}

// Discover records URLs in first-seen order and returns how many were new.
// URLs that differ only in tracking parameters, case or trailing slash count
// once; the first spelling is kept.
func (c *ExecutionContext) Discover(urls ...string) int {
	added := 0
	for _, u := range urls {
		if u == "" {
			continue
		}
		key := helpers.URLKey(u)
		if _, ok := c.seen[key]; ok {
			continue
		}
		c.seen[key] = struct{}{}
		c.discovered = append(c.discovered, u)
		added++
	}
	return added
}

func (c *ExecutionContext) DiscoveredSources() []string {
	return append([]string(nil), c.discovered...)
}

// AllItems returns every section's raw data in canvas order.
func (c *ExecutionContext) AllItems() []ExtractedItem {
	var out []ExtractedItem
	for _, name := range c.sectionOrder {
		out = append(out, c.sections[name].RawData...)
	}
	return out
}

// CrossReference annotates items with the other sections already holding the
// same source URL. The annotation is informational only.
func (c *ExecutionContext) CrossReference(section string, items []ExtractedItem) []ExtractedItem {
	out := make([]ExtractedItem, len(items))
	for i, item := range items {
		var refs []CrossReference
		key := helpers.URLKey(item.URL)
		for _, other := range c.sectionOrder {
			if other == section {
				continue
			}
			for _, existing := range c.sections[other].RawData {
				if helpers.URLKey(existing.URL) == key {
					refs = append(refs, CrossReference{Section: other, Note: "same source used"})
				}
			}
		}
		item.CrossReferences = refs
		out[i] = item
	}
	return out
}

// ToolNames returns the tools seen so far, sorted.
func (c *ExecutionContext) ToolNames() []string {
	names := make([]string, 0, len(c.toolStats))
	for k := range c.toolStats {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func preview(v any) string {
	if v == nil {
		return ""
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(v)
	}
	return helpers.Truncate(s, previewLimit)
}
