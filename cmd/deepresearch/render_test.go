package main

import (
	"strings"
	"testing"

	"github.com/mohammad-safakhou/deepresearch/internal/research"
)

func TestRenderMarkdown(t *testing.T) {
	ans := research.Answer{
		Topic: "grid storage",
		Report: &research.Report{
			Title:   "Grid storage",
			Summary: "Storage capacity doubled.",
			Sections: []research.ReportSection{
				{Title: "Overview", Content: "Deployments grew [1].", Data: []research.DataPoint{{Metric: "capacity", Value: 42.5, Unit: "GW", Source: "https://www.iea.org/report"}}},
				{Title: "Outlook"},
			},
			Bibliography: []research.BibliographyEntry{{ID: 1, URL: "https://www.iea.org/report", Title: "IEA report", Type: "report", Accessed: "2024-05-01"}},
		},
		ExecutionSummary: research.ExecutionSummary{Completeness: 40, Confidence: "low", StepsExecuted: 3, SourcesConsulted: 2},
	}
	md := RenderMarkdown(ans)
	for _, want := range []string{
		"# Grid storage",
		"> Storage capacity doubled.",
		"## Overview\n\nDeployments grew [1].",
		"| capacity | 42.5 GW | www.iea.org |",
		"_No content could be produced for this section._",
		"- [1] IEA report (report, www.iea.org, accessed 2024-05-01) <https://www.iea.org/report>",
		"Completeness 40.0%, confidence low, 3 steps",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestRenderMarkdownWithoutReport(t *testing.T) {
	md := RenderMarkdown(research.Answer{Topic: "x", Error: "llm api key missing"})
	if !strings.Contains(md, "No report was produced. Error: llm api key missing") {
		t.Fatalf("unexpected markdown %q", md)
	}
}
