package research

import (
	"sort"
	"sync"
	"time"
)

const (
	StepSuccess = "success"
	StepFailed  = "failed"
	StepSkipped = "skipped"
	StepPartial = "partial"
)

// Workflow actions.
const (
	ActionPlanning          = "planning"
	ActionWebSearch         = "web_search"
	ActionContentExtraction = "content_extraction"
	ActionDataProcessing    = "data_processing"
	ActionSynthesis         = "synthesis"
	ActionEnrichmentCheck   = "enrichment_check"
	ActionRelevanceScoring  = "relevance_scoring"
)

// TraceStep is one workflow step with timing.
type TraceStep struct {
	Step            int       `json:"step"`
	Action          string    `json:"action"`
	Tool            string    `json:"tool"`
	Input           any       `json:"input,omitempty"`
	Output          any       `json:"output,omitempty"`
	DurationSeconds float64   `json:"duration"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

type TraceSummary struct {
	TotalSteps    int            `json:"total_steps"`
	TotalDuration float64        `json:"total_duration"`
	ToolsUsed     []string       `json:"tools_used"`
	ActionCounts  map[string]int `json:"action_counts"`
	StatusCounts  map[string]int `json:"status_counts"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type Trace struct {
	Workflow []TraceStep  `json:"workflow"`
	Summary  TraceSummary `json:"summary"`
}

// ExecutionTracer records workflow steps for the response.
type ExecutionTracer struct {
	mu       sync.Mutex
	steps    []TraceStep
	start    time.Time
	metadata map[string]any
	now      func() time.Time
}

func NewExecutionTracer() *ExecutionTracer {
	return &ExecutionTracer{start: time.Now(), metadata: make(map[string]any), now: time.Now}
}

// SetMetadata attaches a global key to the trace summary.
func (t *ExecutionTracer) SetMetadata(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metadata[key] = value
}

// StepHandle is an open step started with Begin.
type StepHandle struct {
	tracer *ExecutionTracer
	action string
	tool   string
	input  any
	start  time.Time
}

// Begin opens a step; close it with End.
func (t *ExecutionTracer) Begin(action, tool string, input any) *StepHandle {
	return &StepHandle{tracer: t, action: action, tool: tool, input: input, start: t.now()}
}

// End records the step. A non-nil err marks it failed.
func (h *StepHandle) End(output any, err error) TraceStep {
	status := StepSuccess
	if err != nil {
		status = StepFailed
	}
	return h.EndWithStatus(output, status, err)
}

func (h *StepHandle) EndWithStatus(output any, status string, err error) TraceStep {
	t := h.tracer
	t.mu.Lock()
	defer t.mu.Unlock()
	end := t.now()
	step := TraceStep{
		Step:            len(t.steps) + 1,
		Action:          h.action,
		Tool:            h.tool,
		Input:           h.input,
		Output:          output,
		DurationSeconds: roundTo(end.Sub(h.start).Seconds(), 2),
		Status:          status,
		Timestamp:       h.start.UTC(),
	}
	if err != nil {
		step.Error = err.Error()
	}
	t.steps = append(t.steps, step)
	return step
}

// HasFailures reports whether any step failed.
func (t *ExecutionTracer) HasFailures() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}

// Trace returns the workflow and its summary.
func (t *ExecutionTracer) Trace() Trace {
	t.mu.Lock()
	defer t.mu.Unlock()
	summary := TraceSummary{
		TotalSteps:    len(t.steps),
		TotalDuration: roundTo(t.now().Sub(t.start).Seconds(), 2),
		ToolsUsed:     []string{},
		ActionCounts:  map[string]int{},
		StatusCounts:  map[string]int{StepSuccess: 0, StepFailed: 0, StepPartial: 0, StepSkipped: 0},
	}
	tools := map[string]struct{}{}
	for _, s := range t.steps {
		if _, ok := tools[s.Tool]; !ok {
			tools[s.Tool] = struct{}{}
			summary.ToolsUsed = append(summary.ToolsUsed, s.Tool)
		}
		summary.ActionCounts[s.Action]++
		summary.StatusCounts[s.Status]++
	}
	sort.Strings(summary.ToolsUsed)
	if len(t.metadata) > 0 {
		summary.Metadata = make(map[string]any, len(t.metadata))
		for k, v := range t.metadata {
			summary.Metadata[k] = v
		}
	}
	return Trace{Workflow: append([]TraceStep{}, t.steps...), Summary: summary}
}

func roundTo(v float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}
