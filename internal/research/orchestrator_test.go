package research

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/budget"
	"github.com/mohammad-safakhou/deepresearch/internal/capability"
	"github.com/mohammad-safakhou/deepresearch/internal/llm"
)

const twoSectionPlan = `{
  "complexity_analysis": {"topic_complexity": 3, "specificity": 3, "format_depth": 3, "temporal_depth": 3, "interconnections": 3},
  "sections": ["Overview", "%[1]s"],
  "section_targets": {
    "Overview": {"words_target": 300, "depth": "moderate"},
    "%[1]s": {"words_target": 400, "depth": "moderate"}
  },
  "narrative_flow": [{"from_section": "Overview", "to_section": "%[1]s", "transition_type": "zoom-in"}]
}`

func planFor(second string) string {
	return fmt.Sprintf(twoSectionPlan, second)
}

func newTestOrchestrator(t *testing.T, gen llm.Generator, s Searcher, e ContentExtractor, opts Options) *Orchestrator {
	t.Helper()
	catalog, err := capability.NewDefaultRegistry("secret")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewOrchestrator(gen, s, e, catalog, opts)
}

func TestRunProducesCitedReport(t *testing.T) {
	gen := newFakeLLM()
	gen.plan = planFor("Market Data")
	gen.coherence = `{"improvements": [{"type": "transition", "between_sections": ["Overview", "Market Data"], "suggestion": "Turning to the numbers.", "priority": "high"}], "coherence_score": 88}`
	searcher := &fakeSearcher{n: 8}
	extractor := &fakeExtractor{}
	o := newTestOrchestrator(t, gen, searcher, extractor, Options{})

	required := "https://required.example/report"
	ans := o.Run(context.Background(), Request{
		Topic:   "renewable energy adoption",
		Sources: SourceConstraints{Required: []string{required}},
	})
	if !ans.Success || ans.Error != "" {
		t.Fatalf("expected success, got error %q", ans.Error)
	}
	if ans.ID == "" || ans.Report == nil {
		t.Fatalf("missing id or report")
	}
	report := ans.Report
	if len(report.Sections) != 2 || report.Sections[0].Title != "Overview" || report.Sections[1].Title != "Market Data" {
		t.Fatalf("unexpected sections: %+v", report.Sections)
	}
	if !strings.HasSuffix(report.Sections[0].Content, "Turning to the numbers.") {
		t.Fatalf("coherence transition not applied: %q", report.Sections[0].Content)
	}
	if len(report.Bibliography) != 9 {
		t.Fatalf("expected 9 cited sources, got %d", len(report.Bibliography))
	}
	ids := map[int]bool{}
	for i, b := range report.Bibliography {
		if b.ID != i+1 {
			t.Fatalf("bibliography ids must be sequential: %+v", b)
		}
		ids[b.ID] = true
	}
	for _, s := range report.Sections {
		if strings.Contains(s.Content, "[SOURCE:") {
			t.Fatalf("unconverted marker in section %s", s.Title)
		}
		for _, m := range assembledCitation.FindAllStringSubmatch(s.Content, -1) {
			n, _ := strconv.Atoi(m[1])
			if !ids[n] {
				t.Fatalf("citation [%d] without bibliography entry", n)
			}
		}
	}

	if ans.Traces.Planning.Fallback || len(ans.Traces.Planning.SectionsPlanned) != 2 {
		t.Fatalf("unexpected planning trace: %+v", ans.Traces.Planning)
	}
	if ans.Traces.Exploration.FieldAssessment != FieldRich {
		t.Fatalf("unexpected exploration trace: %+v", ans.Traces.Exploration)
	}
	if len(ans.Traces.Coherence.ImprovementsApplied) != 1 || ans.Traces.GapFilling.Iterations != 0 {
		t.Fatalf("unexpected traces: %+v", ans.Traces)
	}
	if ans.ExecutionSummary.Completeness != 100 || ans.ExecutionSummary.Confidence != "high" {
		t.Fatalf("unexpected summary: %+v", ans.ExecutionSummary)
	}
	if ans.SourceStatistics.WebsitesSuccessful != 9 {
		t.Fatalf("cited sources must be marked successful, got %d", ans.SourceStatistics.WebsitesSuccessful)
	}
	var found bool
	for _, w := range ans.Sources.Websites {
		if w.URL == required {
			found = true
			if w.Priority != PriorityRequired || w.Status != StatusSuccess {
				t.Fatalf("unexpected required source entry: %+v", w)
			}
		}
	}
	if !found {
		t.Fatalf("required source not registered")
	}
	if searcher.calls() != 3 {
		t.Fatalf("expected exploration plus one search per section, got %d", searcher.calls())
	}
	if ans.Execution.Summary.TotalSteps == 0 || ans.ExecutionSummary.ToolPerformance["search"].Success != 3 {
		t.Fatalf("unexpected execution trace: %+v", ans.Execution.Summary)
	}
}

func TestRunWithoutLLM(t *testing.T) {
	o := newTestOrchestrator(t, nil, &fakeSearcher{n: 3}, &fakeExtractor{}, Options{})
	ans := o.Run(context.Background(), Request{Topic: "anything"})
	if ans.Success || ans.Error != llm.ErrMissingAPIKey.Error() || ans.Report != nil {
		t.Fatalf("expected configuration failure, got %+v", ans)
	}
	if o.Configured() {
		t.Fatalf("orchestrator without LLM is not configured")
	}
}

func TestRunStopsAtStepCap(t *testing.T) {
	gen := newFakeLLM()
	gen.plan = planFor("Market Data")
	searcher := &fakeSearcher{n: 8}
	extractor := &fakeExtractor{}
	o := newTestOrchestrator(t, gen, searcher, extractor, Options{})

	ans := o.Run(context.Background(), Request{Topic: "renewable energy adoption", MaxSteps: 3})
	if !ans.Success {
		t.Fatalf("partial results still succeed: %q", ans.Error)
	}
	if searcher.calls() != 2 || extractor.fetched() != 1 {
		t.Fatalf("budget exceeded: %d searches, %d fetches", searcher.calls(), extractor.fetched())
	}
	if ans.Report.Sections[1].Content != "" {
		t.Fatalf("second section must be empty without budget")
	}
	if !ans.Traces.GapFilling.Skipped || ans.Traces.GapFilling.Iterations != 0 {
		t.Fatalf("gap filling must be skipped: %+v", ans.Traces.GapFilling)
	}
	if ans.ExecutionSummary.Completeness != 40 || ans.ExecutionSummary.Confidence != "low" {
		t.Fatalf("unexpected summary: %+v", ans.ExecutionSummary)
	}
}

func TestRunFillsGapsOnlyWhereNeeded(t *testing.T) {
	gen := newFakeLLM()
	gen.plan = planFor("Details")
	gen.synthesize = func(section string, call int, sources []string) string {
		if section == "Details" && call == 1 {
			return "Brief note [SOURCE:" + sources[0] + "]."
		}
		return longSection(section, call, sources)
	}
	o := newTestOrchestrator(t, gen, &fakeSearcher{n: 8}, &fakeExtractor{}, Options{MaxGapIterations: 1})

	ans := o.Run(context.Background(), Request{Topic: "renewable energy adoption"})
	if !ans.Success {
		t.Fatalf("run failed: %q", ans.Error)
	}
	gf := ans.Traces.GapFilling
	if len(HighPriority(gf.InitialGaps)) != 1 || gf.Iterations != 1 || len(HighPriority(gf.RemainingGaps)) != 0 {
		t.Fatalf("unexpected gap filling trace: %+v", gf)
	}
	if gen.sectionCount("Overview") != 1 {
		t.Fatalf("section without gaps must not be rewritten, synthesized %d times", gen.sectionCount("Overview"))
	}
	if gen.sectionCount("Details") != 2 {
		t.Fatalf("gap section must be synthesized again, got %d", gen.sectionCount("Details"))
	}
	if len([]rune(ans.Report.Sections[1].Content)) < 1500 {
		t.Fatalf("gap section not refreshed")
	}
}

func TestRunFallsBackOnBadPlan(t *testing.T) {
	gen := newFakeLLM()
	gen.plan = "no plan today"
	o := newTestOrchestrator(t, gen, &fakeSearcher{n: 8}, &fakeExtractor{}, Options{})
	ans := o.Run(context.Background(), Request{Topic: "renewable energy adoption"})
	if !ans.Traces.Planning.Fallback {
		t.Fatalf("expected fallback plan")
	}
	if len(ans.Report.Sections) != 3 || ans.Report.Sections[0].Title != "Introduction" {
		t.Fatalf("unexpected sections: %+v", ans.Report.Sections)
	}
}

func TestOptionsClamped(t *testing.T) {
	o := NewOrchestrator(nil, nil, nil, nil, Options{MaxGapIterations: 10})
	if o.opts.MaxGapIterations != 3 || o.opts.DefaultMaxSteps != DefaultMaxSteps {
		t.Fatalf("unexpected options: %+v", o.opts)
	}
}

func TestCompletenessAndConfidence(t *testing.T) {
	report := Report{Sections: []ReportSection{{Content: "a"}, {Content: "b"}, {Content: ""}, {Content: "d"}}}
	if got := Completeness(report, nil); got != 75 {
		t.Fatalf("completeness = %v, want 75", got)
	}
	gaps := []Gap{{Priority: PriorityHigh}, {Priority: PriorityHigh}, {Priority: PriorityLow}}
	if got := Completeness(report, gaps); got != 55 {
		t.Fatalf("completeness = %v, want 55", got)
	}
	if got := Completeness(Report{Sections: []ReportSection{{}}}, gaps); got != 0 {
		t.Fatalf("completeness must floor at 0, got %v", got)
	}
	cases := []struct {
		completeness float64
		bib          int
		want         string
	}{
		{100, 5, "high"},
		{100, 4, "medium"},
		{50, 0, "medium"},
		{49.9, 10, "low"},
	}
	for _, tc := range cases {
		if got := ConfidenceLevel(tc.completeness, tc.bib); got != tc.want {
			t.Fatalf("ConfidenceLevel(%v, %d) = %s, want %s", tc.completeness, tc.bib, got, tc.want)
		}
	}
}

func TestRunCancelledMidRunIsNotSuccessful(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := newFakeLLM()
	gen.plan = planFor("Market Data")
	gen.synthesize = func(section string, call int, sources []string) string {
		if section == "Overview" {
			cancel()
		}
		return longSection(section, call, sources)
	}
	o := newTestOrchestrator(t, gen, &fakeSearcher{n: 8}, &fakeExtractor{}, Options{})

	ans := o.Run(ctx, Request{Topic: "renewable energy adoption"})
	if ans.Success {
		t.Fatalf("cancelled run must not succeed")
	}
	if ans.Error != context.Canceled.Error() {
		t.Fatalf("expected %q, got %q", context.Canceled.Error(), ans.Error)
	}
	if ans.Report != nil {
		t.Fatalf("partial report must be discarded, got %+v", ans.Report)
	}
	if gen.sectionCount("Market Data") != 0 {
		t.Fatalf("no section may be built after cancellation")
	}
	if gen.count("coherence") != 0 {
		t.Fatalf("coherence review must be skipped after cancellation")
	}
}

func TestRunReportsBudgetAndRequiredSources(t *testing.T) {
	gen := newFakeLLM()
	gen.plan = planFor("Market Data")
	required := "https://required.example/report"
	extractor := &fakeExtractor{fail: map[string]string{required: "http 403"}}
	steps := 6
	o := newTestOrchestrator(t, gen, &fakeSearcher{n: 8}, extractor, Options{Budget: budget.Config{MaxSteps: &steps}})

	ans := o.Run(context.Background(), Request{
		Topic:   "renewable energy adoption",
		Sources: SourceConstraints{Required: []string{required}},
	})
	if !ans.Success {
		t.Fatalf("run failed: %q", ans.Error)
	}
	b := ans.ExecutionSummary.Budget
	if b.MaxSteps != 6 || b.StepsUsed == 0 || b.StepsUsed > 6 || b.MaxTokens != 0 {
		t.Fatalf("unexpected budget usage: %+v", b)
	}
	if ans.ExecutionSummary.RequiredSourcesMet {
		t.Fatalf("failed required source must be reported as unmet")
	}

	ans = o.Run(context.Background(), Request{Topic: "renewable energy adoption", MaxSteps: 2})
	if ans.ExecutionSummary.Budget.MaxSteps != 2 {
		t.Fatalf("request limit must override service default, got %+v", ans.ExecutionSummary.Budget)
	}
	if !ans.ExecutionSummary.RequiredSourcesMet {
		t.Fatalf("no required sources is vacuously met")
	}
}

func TestRunRejectsInvalidBudget(t *testing.T) {
	gen := newFakeLLM()
	gen.plan = planFor("Market Data")
	tokens := int64(-1)
	o := newTestOrchestrator(t, gen, &fakeSearcher{n: 8}, &fakeExtractor{}, Options{Budget: budget.Config{MaxTokens: &tokens}})
	ans := o.Run(context.Background(), Request{Topic: "renewable energy adoption"})
	if ans.Success || !strings.Contains(ans.Error, "max_tokens") {
		t.Fatalf("expected budget validation failure, got %+v", ans.Error)
	}
	if gen.count("planning") != 0 {
		t.Fatalf("no phase may run with an invalid budget")
	}
}

func TestRunPastDeadlineReportsTimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	gen := newFakeLLM()
	gen.plan = planFor("Market Data")
	o := newTestOrchestrator(t, gen, &fakeSearcher{n: 8}, &fakeExtractor{}, Options{})

	ans := o.Run(ctx, Request{Topic: "renewable energy adoption"})
	if ans.Success || ans.Error != context.DeadlineExceeded.Error() || ans.Report != nil {
		t.Fatalf("expected deadline failure, got success=%v error=%q", ans.Success, ans.Error)
	}
	if gen.count("synthesis") != 0 {
		t.Fatalf("no section may be synthesized past the deadline")
	}
	if !ans.Traces.GapFilling.Skipped {
		t.Fatalf("gap filling must be skipped past the deadline")
	}
}
