package research

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
)

var sourceMarker = regexp.MustCompile(`\[SOURCE:(https?://[^\]]+)\]`)

// Assemble merges the canvas sections into a report and converts inline
// [SOURCE:url] markers into a numbered bibliography.
func Assemble(query string, plan Plan, exec *ExecutionContext, now time.Time, typeOf func(string) string) Report {
	report := Report{
		Type:     "report",
		Title:    "Analysis: " + query,
		Sections: []ReportSection{},
	}
	total := 0
	for _, name := range plan.Sections {
		st, ok := exec.Section(name)
		if !ok {
			continue
		}
		words := len(strings.Fields(st.Content))
		total += words
		data := append([]DataPoint{}, st.KeyData...)
		report.Sections = append(report.Sections, ReportSection{
			Title:    name,
			Content:  st.Content,
			Data:     data,
			Sources:  append([]string{}, st.Sources...),
			Metadata: SectionMetadata{WordCount: words, SourcesCount: len(st.RawData)},
		})
	}
	if len(report.Sections) > 0 {
		report.Summary = summarize(report.Sections[0].Content)
	}
	report.Metadata = ReportMetadata{
		TotalWordCount:  total,
		SectionsCount:   len(report.Sections),
		ComplexityScore: plan.ComplexityAnalysis.OverallScore,
		TargetLength:    plan.ComplexityAnalysis.TargetLength,
	}
	return ConvertCitations(report, now, typeOf)
}

// summarize keeps the first two sentences of content.
func summarize(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	sentences := strings.SplitN(content, ". ", 3)
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	return strings.TrimRight(strings.Join(sentences, ". "), ".") + "."
}

// ConvertCitations numbers every cited URL in first-seen order, then every
// data point source not yet cited, and rewrites [SOURCE:url] to [n]. typeOf
// may supply a source type per URL; nil means "website".
func ConvertCitations(report Report, now time.Time, typeOf func(string) string) Report {
	ids := make(map[string]int)
	bib := []BibliographyEntry{}
	accessed := now.Format("2006-01-02")
	add := func(u string) {
		if _, ok := ids[u]; ok {
			return
		}
		id := len(bib) + 1
		ids[u] = id
		kind := "website"
		if typeOf != nil {
			if t := typeOf(u); t != "" {
				kind = t
			}
		}
		bib = append(bib, BibliographyEntry{
			ID:       id,
			URL:      u,
			Title:    fmt.Sprintf("Source %d - %s", id, hostOf(u)),
			Type:     kind,
			Accessed: accessed,
		})
	}
	for _, s := range report.Sections {
		for _, m := range sourceMarker.FindAllStringSubmatch(s.Content, -1) {
			add(m[1])
		}
	}
	for _, s := range report.Sections {
		for _, d := range s.Data {
			if d.Source != "" {
				add(d.Source)
			}
		}
	}
	sections := make([]ReportSection, len(report.Sections))
	for i, s := range report.Sections {
		s.Content = sourceMarker.ReplaceAllStringFunc(s.Content, func(m string) string {
			u := sourceMarker.FindStringSubmatch(m)[1]
			return fmt.Sprintf("[%d]", ids[u])
		})
		sections[i] = s
	}
	report.Sections = sections
	report.Bibliography = bib
	if report.Summary != "" {
		report.Summary = sourceMarker.ReplaceAllStringFunc(report.Summary, func(m string) string {
			u := sourceMarker.FindStringSubmatch(m)[1]
			return fmt.Sprintf("[%d]", ids[u])
		})
	}
	return report
}

func hostOf(u string) string {
	if d := helpers.Domain(u); d != "" {
		return d
	}
	parts := strings.Split(u, "/")
	if len(parts) > 2 {
		return parts[2]
	}
	return u
}
