package research

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestFallbackPlanDefault(t *testing.T) {
	plan := FallbackPlan(nil)
	if !reflect.DeepEqual(plan.Sections, []string{"Introduction", "Analysis", "Conclusion"}) {
		t.Fatalf("unexpected sections: %v", plan.Sections)
	}
	if plan.SectionTargets["Analysis"].WordsTarget != 600 || plan.SectionTargets["Conclusion"].Depth != DepthLight {
		t.Fatalf("unexpected targets: %+v", plan.SectionTargets)
	}
	if plan.ComplexityAnalysis.OverallScore != 3.0 || plan.ComplexityAnalysis.TargetLength != TierStandard || plan.ComplexityAnalysis.EstimatedWords != 1200 {
		t.Fatalf("unexpected complexity: %+v", plan.ComplexityAnalysis)
	}
	if !reflect.DeepEqual(plan, FallbackPlan([]string{" ", ""})) {
		t.Fatalf("blank requested sections must yield the default plan")
	}
}

func TestFallbackPlanRequestedSections(t *testing.T) {
	plan := FallbackPlan([]string{" Market ", "Market", "Risks"})
	if !reflect.DeepEqual(plan.Sections, []string{"Market", "Risks"}) {
		t.Fatalf("unexpected sections: %v", plan.Sections)
	}
	for _, s := range plan.Sections {
		if tgt := plan.SectionTargets[s]; tgt.WordsTarget != 400 || tgt.Depth != DepthModerate {
			t.Fatalf("unexpected target for %s: %+v", s, tgt)
		}
	}
	if plan.ComplexityAnalysis.EstimatedWords != 800 {
		t.Fatalf("expected 800 estimated words, got %d", plan.ComplexityAnalysis.EstimatedWords)
	}
}

func TestCreatePlanFallsBack(t *testing.T) {
	for name, gen := range map[string]*fakeLLM{
		"garbage": func() *fakeLLM { f := newFakeLLM(); f.plan = "I cannot help with that"; return f }(),
		"empty":   func() *fakeLLM { f := newFakeLLM(); f.plan = ""; return f }(),
		"error":   func() *fakeLLM { f := newFakeLLM(); f.planErr = errors.New("503"); return f }(),
		"nosects": func() *fakeLLM { f := newFakeLLM(); f.plan = `{"sections": []}`; return f }(),
	} {
		p := NewPlanner(gen, nil, nil, nil)
		plan, fallback := p.CreatePlan(context.Background(), "", PlanningInput{}, Exploration{})
		if !fallback {
			t.Fatalf("%s: expected fallback", name)
		}
		if !reflect.DeepEqual(plan, FallbackPlan(nil)) {
			t.Fatalf("%s: fallback plan differs: %+v", name, plan)
		}
	}
}

const samplePlan = `Sure! {
  "complexity_analysis": {"topic_complexity": 5, "specificity": 5, "format_depth": 5, "temporal_depth": 4, "interconnections": 4, "overall_score": 2, "estimated_words": 3000},
  "sections": ["Context", "Market", "Outlook"],
  "section_targets": {
    "Context": {"words_target": 300, "depth": "light", "objectives": ["frame"], "key_questions": ["why now?"]},
    "Market": {"words_target": "900", "depth": "deep"}
  },
  "narrative_flow": [
    {"from_section": "Context", "to_section": "Market", "transition_type": "zoom-in"},
    {"from_section": "Market", "to_section": "Nowhere", "transition_type": "comparison"}
  ]
}`

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan(samplePlan, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(plan.Sections, []string{"Context", "Market", "Outlook"}) {
		t.Fatalf("unexpected sections: %v", plan.Sections)
	}
	if got := plan.SectionTargets["Market"]; got.WordsTarget != 900 || got.Depth != DepthDeep {
		t.Fatalf("unexpected Market target: %+v", got)
	}
	if got := plan.SectionTargets["Outlook"]; got.WordsTarget != 500 || got.Depth != DepthModerate {
		t.Fatalf("missing target must default to 500/moderate: %+v", got)
	}
	if len(plan.NarrativeFlow) != 1 {
		t.Fatalf("transitions to unknown sections must be dropped: %+v", plan.NarrativeFlow)
	}
	if plan.ComplexityAnalysis.OverallScore != 4.6 || plan.ComplexityAnalysis.TargetLength != TierInDepth {
		t.Fatalf("overall score must be the axis mean: %+v", plan.ComplexityAnalysis)
	}
	if plan.SearchStrategy.TotalSourcesNeeded != 10 || plan.SearchStrategy.SourcesPerSection != 3 || plan.SearchStrategy.SearchDepth != "standard" {
		t.Fatalf("unexpected search strategy defaults: %+v", plan.SearchStrategy)
	}
}

func TestParsePlanRequestedSectionsWin(t *testing.T) {
	plan, err := ParsePlan(samplePlan, []string{"Market", "Regulation"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(plan.Sections, []string{"Market", "Regulation"}) {
		t.Fatalf("requested sections must override: %v", plan.Sections)
	}
	if plan.SectionTargets["Market"].WordsTarget != 900 {
		t.Fatalf("matching target must be kept")
	}
	if len(plan.NarrativeFlow) != 0 {
		t.Fatalf("unexpected transitions: %+v", plan.NarrativeFlow)
	}
}

func TestParsePlanPartialAxes(t *testing.T) {
	plan, err := ParsePlan(`{"complexity_analysis": {"topic_complexity": 2, "overall_score": 1.5}, "sections": ["Only"]}`, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if plan.ComplexityAnalysis.OverallScore != 1.5 || plan.ComplexityAnalysis.TargetLength != TierConcise {
		t.Fatalf("unexpected complexity: %+v", plan.ComplexityAnalysis)
	}
	if plan.ComplexityAnalysis.EstimatedWords != 500 {
		t.Fatalf("estimated words should default to the target sum, got %d", plan.ComplexityAnalysis.EstimatedWords)
	}
}

func TestTierForScore(t *testing.T) {
	cases := map[float64]string{1: TierConcise, 2: TierConcise, 2.5: TierStandard, 3: TierStandard, 3.4: TierDetailed, 4.2: TierInDepth}
	for score, want := range cases {
		if got := TierForScore(score); got != want {
			t.Fatalf("TierForScore(%v) = %s, want %s", score, got, want)
		}
	}
}

func TestExtractTopics(t *testing.T) {
	hits := []SearchHit{
		{Title: "Solar power growth", Snippet: "solar capacity and storage"},
		{Title: "Storage economics", Snippet: "battery storage costs with solar"},
		{Title: "Wind", Snippet: "offshore wind power"},
	}
	got := ExtractTopics(hits)
	want := []string{"solar", "storage", "power", "wind"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("topics = %v, want %v", got, want)
	}
	if got := ExtractTopics(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil topics, got %#v", got)
	}
}

func TestExploreWithoutSearcher(t *testing.T) {
	exp := NewPlanner(nil, nil, nil, nil).Explore(context.Background(), "q", "en")
	if exp.FieldAssessment != FieldUnknown {
		t.Fatalf("expected unknown field, got %s", exp.FieldAssessment)
	}
}

func TestExploreAssessesField(t *testing.T) {
	s := &fakeSearcher{n: 8}
	exp := NewPlanner(nil, s, nil, nil).Explore(context.Background(), "renewable energy", "en")
	if exp.FieldAssessment != FieldRich || len(exp.Sources) != 8 {
		t.Fatalf("unexpected exploration: %+v", exp)
	}
	if exp.DataPreview.TotalSources != 8 || len(exp.DataPreview.Snippets) != 3 {
		t.Fatalf("unexpected preview: %+v", exp.DataPreview)
	}
	if s.requests[0].MaxResults != 8 {
		t.Fatalf("exploration must request 8 results, got %d", s.requests[0].MaxResults)
	}
}

func TestParsePlanSkipsRejectedExample(t *testing.T) {
	resp := `Example: {"complexity_analysis":{"topic_complexity":5,"specificity":5,"format_depth":5,"temporal_depth":5,"interconnections":5},"sections":"bad"} Final: {"sections":["X"]}`
	plan, err := ParsePlan(resp, nil)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if len(plan.Sections) != 1 || plan.Sections[0] != "X" {
		t.Fatalf("unexpected sections %v", plan.Sections)
	}
	if plan.ComplexityAnalysis.OverallScore != 3.0 || plan.ComplexityAnalysis.TargetLength != TierStandard {
		t.Fatalf("example scores leaked into plan: %+v", plan.ComplexityAnalysis)
	}
}
