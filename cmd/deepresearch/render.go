package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
)

// RenderMarkdown formats an answer as a markdown document with a numbered
// bibliography.
func RenderMarkdown(ans research.Answer) string {
	var b strings.Builder
	if ans.Report == nil {
		fmt.Fprintf(&b, "# %s\n\nNo report was produced.", ans.Topic)
		if ans.Error != "" {
			fmt.Fprintf(&b, " Error: %s", ans.Error)
		}
		b.WriteString("\n")
		return b.String()
	}
	rep := ans.Report
	title := rep.Title
	if title == "" {
		title = ans.Topic
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if s := strings.TrimSpace(rep.Summary); s != "" {
		fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(s, "\n", "\n> "))
	}
	for _, sec := range rep.Sections {
		fmt.Fprintf(&b, "## %s\n\n", sec.Title)
		if c := strings.TrimSpace(sec.Content); c != "" {
			b.WriteString(c)
			b.WriteString("\n\n")
		} else {
			b.WriteString("_No content could be produced for this section._\n\n")
		}
		if len(sec.Data) > 0 {
			b.WriteString("| Metric | Value | Source |\n|---|---|---|\n")
			for _, d := range sec.Data {
				value := strconv.FormatFloat(d.Value, 'f', -1, 64)
				if d.Unit != "" {
					value += " " + d.Unit
				}
				fmt.Fprintf(&b, "| %s | %s | %s |\n", escapeCell(d.Metric), escapeCell(value), escapeCell(helpers.Domain(d.Source)))
			}
			b.WriteString("\n")
		}
	}
	if len(rep.Bibliography) > 0 {
		b.WriteString("## Bibliography\n\n")
		for _, entry := range rep.Bibliography {
			c := helpers.Citation{ID: entry.ID, Title: entry.Title, URL: entry.URL, Kind: entry.Type}
			if t, err := time.Parse("2006-01-02", entry.Accessed); err == nil {
				c.Accessed = t
			}
			fmt.Fprintf(&b, "- %s\n", helpers.FormatCitation(c))
		}
		b.WriteString("\n")
	}
	s := ans.ExecutionSummary
	fmt.Fprintf(&b, "---\n\nCompleteness %.1f%%, confidence %s, %d steps, %d sources consulted, %.1fs.\n",
		s.Completeness, s.Confidence, s.StepsExecuted, s.SourcesConsulted, ans.ProcessingTime)
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
