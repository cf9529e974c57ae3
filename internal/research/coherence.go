package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
	"github.com/mohammad-safakhou/deepresearch/internal/llm"
)

const (
	coherencePreviewLen    = 500
	coherenceMaxTokens     = 1500
	coherenceTemperature   = 0.2
	coherenceFallbackScore = 75
	maxCoherenceFixes      = 3
)

// CoherenceReviewer asks the LLM for cross-section fixes and applies the
// high priority transitions.
type CoherenceReviewer struct {
	llm    llm.Generator
	logger *log.Logger
}

func NewCoherenceReviewer(gen llm.Generator, logger *log.Logger) *CoherenceReviewer {
	if logger == nil {
		logger = log.New(log.Writer(), "[COHERENCE] ", log.LstdFlags)
	}
	return &CoherenceReviewer{llm: gen, logger: logger}
}

// FallbackCoherence is returned when the review cannot be parsed.
func FallbackCoherence() CoherenceAnalysis {
	return CoherenceAnalysis{Improvements: []CoherenceImprovement{}, Redundancies: []Redundancy{}, CoherenceScore: coherenceFallbackScore}
}

type sectionPreview struct {
	Title          string `json:"title"`
	ContentPreview string `json:"content_preview"`
	WordCount      int    `json:"word_count"`
	SourcesCount   int    `json:"sources_count"`
}

// Review never fails; errors yield FallbackCoherence.
func (c *CoherenceReviewer) Review(ctx context.Context, query string, plan Plan, exec *ExecutionContext) CoherenceAnalysis {
	if c.llm == nil {
		return FallbackCoherence()
	}
	previews := make([]sectionPreview, 0, len(exec.SectionNames()))
	for _, name := range exec.SectionNames() {
		st, _ := exec.Section(name)
		previews = append(previews, sectionPreview{
			Title:          name,
			ContentPreview: clipRunes(st.Content, coherencePreviewLen),
			WordCount:      len(strings.Fields(st.Content)),
			SourcesCount:   len(st.RawData),
		})
	}
	resp, err := c.llm.Generate(ctx, []llm.Message{llm.User(coherencePrompt(query, previews, plan.NarrativeFlow))}, coherenceMaxTokens, coherenceTemperature)
	recordLLMCall(ctx, "coherence", err == nil)
	if err != nil {
		c.logger.Printf("coherence review failed: %v", err)
		return FallbackCoherence()
	}
	var analysis CoherenceAnalysis
	if err := helpers.DecodeJSONObject(resp, &analysis); err != nil {
		c.logger.Printf("coherence review unparseable: %v", err)
		return FallbackCoherence()
	}
	if analysis.Improvements == nil {
		analysis.Improvements = []CoherenceImprovement{}
	}
	if analysis.Redundancies == nil {
		analysis.Redundancies = []Redundancy{}
	}
	return analysis
}

// AppliedTransition records one transition appended to a section.
type AppliedTransition struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Apply appends suggested transitions to the end of the first section of a
// pair. Only the first three high priority improvements are considered, and
// of those only transitions between two known sections are applied. Existing
// content is never rewritten. A non-nil only restricts application to
// transitions starting in those sections.
func (c *CoherenceReviewer) Apply(analysis CoherenceAnalysis, exec *ExecutionContext, only map[string]bool) []AppliedTransition {
	var high []CoherenceImprovement
	for _, imp := range analysis.Improvements {
		if imp.Priority == PriorityHigh {
			high = append(high, imp)
		}
	}
	if len(high) > maxCoherenceFixes {
		high = high[:maxCoherenceFixes]
	}
	applied := []AppliedTransition{}
	for _, imp := range high {
		if imp.Type != "transition" || len(imp.BetweenSections) != 2 {
			continue
		}
		from, to := imp.BetweenSections[0], imp.BetweenSections[1]
		if only != nil && !only[from] {
			continue
		}
		src, ok := exec.Section(from)
		if !ok {
			continue
		}
		if _, ok := exec.Section(to); !ok {
			continue
		}
		src.Content += "\n\n" + imp.Suggestion
		applied = append(applied, AppliedTransition{From: from, To: to})
		c.logger.Printf("transition added: %s -> %s", from, to)
	}
	return applied
}

func coherencePrompt(query string, previews []sectionPreview, flow []NarrativeTransition) string {
	sections, err := json.MarshalIndent(previews, "", "  ")
	if err != nil {
		sections = []byte("[]")
	}
	if flow == nil {
		flow = []NarrativeTransition{}
	}
	transitions, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		transitions = []byte("[]")
	}
	return fmt.Sprintf(`Review the overall coherence of this report under construction.

INITIAL QUERY: %q

GENERATED SECTIONS:
%s

PLANNED TRANSITIONS:
%s

Identify coherence improvements. Return JSON:
{
  "improvements": [
    {"type": "transition|link|structure", "between_sections": ["Section A", "Section B"], "issue": "problem", "suggestion": "text to add", "priority": "high|medium|low"}
  ],
  "redundancies": [{"sections": ["Section X", "Section Y"], "description": "..."}],
  "coherence_score": 0-100
}`, query, sections, transitions)
}
