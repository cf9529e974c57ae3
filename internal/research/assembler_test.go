package research

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"
)

var assembledCitation = regexp.MustCompile(`\[(\d+)\]`)

func assemblyFixture(t *testing.T) (Plan, *ExecutionContext) {
	t.Helper()
	plan := Plan{Sections: []string{"Intro", "Body"}, ComplexityAnalysis: ComplexityAnalysis{OverallScore: 3.2, TargetLength: TierDetailed}}
	c := NewExecutionContext("grid storage")
	if err := c.InitSections(plan.Sections); err != nil {
		t.Fatalf("init: %v", err)
	}
	intro, _ := c.Section("Intro")
	intro.Content = "Storage grew fast [SOURCE:https://a.example/x]. Costs fell [SOURCE:https://b.example/y]. Third sentence."
	intro.Sources = []string{"https://a.example/x"}
	body, _ := c.Section("Body")
	body.Content = "Again [SOURCE:https://a.example/x] and new [SOURCE:https://www.c.example/z]."
	body.KeyData = []DataPoint{{Metric: "capacity", Value: 3, Source: "https://d.example/data"}, {Metric: "cost", Value: 1, Source: "https://b.example/y"}}
	return plan, c
}

func TestAssembleBibliography(t *testing.T) {
	plan, c := assemblyFixture(t)
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	report := Assemble("grid storage", plan, c, now, nil)

	wantURLs := []string{"https://a.example/x", "https://b.example/y", "https://www.c.example/z", "https://d.example/data"}
	if !reflect.DeepEqual(report.SourceURLs(), wantURLs) {
		t.Fatalf("bibliography order = %v, want %v", report.SourceURLs(), wantURLs)
	}
	for i, b := range report.Bibliography {
		if b.ID != i+1 || b.Accessed != "2024-03-09" || b.Type != "website" {
			t.Fatalf("unexpected entry %+v", b)
		}
	}
	if report.Bibliography[2].Title != "Source 3 - www.c.example" {
		t.Fatalf("unexpected title: %q", report.Bibliography[2].Title)
	}
	if got := report.Sections[1].Content; got != "Again [1] and new [3]." {
		t.Fatalf("unexpected converted content: %q", got)
	}
	if report.Title != "Analysis: grid storage" || report.Summary != "Storage grew fast [1]. Costs fell [2]." {
		t.Fatalf("unexpected title/summary: %q / %q", report.Title, report.Summary)
	}
	if report.Metadata.SectionsCount != 2 || report.Metadata.TargetLength != TierDetailed {
		t.Fatalf("unexpected metadata: %+v", report.Metadata)
	}
}

func TestAssembleCitationsResolve(t *testing.T) {
	plan, c := assemblyFixture(t)
	report := Assemble("grid storage", plan, c, time.Now(), nil)
	ids := map[int]bool{}
	for _, b := range report.Bibliography {
		ids[b.ID] = true
	}
	for _, s := range report.Sections {
		if strings.Contains(s.Content, "[SOURCE:") {
			t.Fatalf("unconverted marker in %q", s.Content)
		}
		for _, m := range assembledCitation.FindAllStringSubmatch(s.Content, -1) {
			n, _ := strconv.Atoi(m[1])
			if !ids[n] {
				t.Fatalf("citation [%d] has no bibliography entry", n)
			}
		}
	}
}

func TestAssembleDeterministic(t *testing.T) {
	plan, c := assemblyFixture(t)
	now := time.Now()
	first := Assemble("grid storage", plan, c, now, nil)
	second := Assemble("grid storage", plan, c, now, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("assembly must be deterministic")
	}
	again := ConvertCitations(first, now, nil)
	for i := range first.Sections {
		if again.Sections[i].Content != first.Sections[i].Content {
			t.Fatalf("converting twice must not change content")
		}
	}
}

func TestConvertCitationsTypeLookup(t *testing.T) {
	report := Report{Sections: []ReportSection{{Content: "x [SOURCE:https://api.example/v1]"}}}
	got := ConvertCitations(report, time.Now(), func(u string) string {
		if strings.Contains(u, "api.") {
			return "api_rest"
		}
		return ""
	})
	if got.Bibliography[0].Type != "api_rest" {
		t.Fatalf("expected type from lookup, got %q", got.Bibliography[0].Type)
	}
}

func TestSummarize(t *testing.T) {
	if got := summarize(""); got != "" {
		t.Fatalf("expected empty summary, got %q", got)
	}
	if got := summarize("One sentence only"); got != "One sentence only." {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestConvertCitationsWithoutMarkersIsIdentity(t *testing.T) {
	in := Report{
		Summary: "Plain summary [2] with a bracketed number.",
		Sections: []ReportSection{
			{Title: "Intro", Content: "No citations here."},
			{Title: "Body", Content: "Already numbered [1] and a link https://a.example/x."},
		},
	}
	out := ConvertCitations(in, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), nil)
	if len(out.Bibliography) != 0 {
		t.Fatalf("expected empty bibliography, got %+v", out.Bibliography)
	}
	for i := range in.Sections {
		if out.Sections[i].Content != in.Sections[i].Content {
			t.Fatalf("section %d changed: %q", i, out.Sections[i].Content)
		}
	}
	if out.Summary != in.Summary {
		t.Fatalf("summary changed: %q", out.Summary)
	}
}
