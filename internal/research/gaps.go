package research

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var numberedCitation = regexp.MustCompile(`\[\d+\]`)

const (
	minSectionChars      = 1500
	criticalSectionChars = 800
	minSectionDataPoints = 2
	maxGapsPerIteration  = 2
)

// IdentifyGaps flags short sections, sections with little structured data
// and sections without any citation. It never calls the LLM.
func IdentifyGaps(report Report) []Gap {
	gaps := []Gap{}
	for _, s := range report.Sections {
		n := utf8.RuneCountInString(s.Content)
		if n < minSectionChars {
			priority := PriorityMedium
			if n < criticalSectionChars {
				priority = PriorityHigh
			}
			gaps = append(gaps, Gap{Section: s.Title, Type: GapContentTooShort, Description: fmt.Sprintf("short section: %d chars", n), Priority: priority})
		}
		if len(s.Data) < minSectionDataPoints {
			gaps = append(gaps, Gap{Section: s.Title, Type: GapMissingData, Description: fmt.Sprintf("little data: %d data points", len(s.Data)), Priority: PriorityMedium})
		}
		if !hasCitation(s.Content) {
			gaps = append(gaps, Gap{Section: s.Title, Type: GapMissingSources, Description: "no source cited", Priority: PriorityLow})
		}
	}
	return gaps
}

// HighPriority filters gaps down to the high priority ones.
func HighPriority(gaps []Gap) []Gap {
	var out []Gap
	for _, g := range gaps {
		if g.Priority == PriorityHigh {
			out = append(out, g)
		}
	}
	return out
}

// hasCitation accepts raw URLs as well as numbered markers left by
// bibliography conversion.
func hasCitation(content string) bool {
	return strings.Contains(content, "http") || strings.Contains(content, "www") || numberedCitation.MatchString(content)
}
