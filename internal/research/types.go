package research

import (
	"strings"
	"time"
)

// Depth controls how much material a section draws on.
type Depth string

const (
	DepthLight    Depth = "light"
	DepthModerate Depth = "moderate"
	DepthDeep     Depth = "deep"
)

// ParseDepth maps free text to a Depth, defaulting to moderate.
func ParseDepth(s string) Depth {
	switch Depth(strings.ToLower(strings.TrimSpace(s))) {
	case DepthLight:
		return DepthLight
	case DepthDeep:
		return DepthDeep
	default:
		return DepthModerate
	}
}

// NumericalFact is a number found in a source together with its context.
type NumericalFact struct {
	Metric         string  `json:"metric"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit,omitempty"`
	Context        string  `json:"context,omitempty"`
	TemporalMarker string  `json:"temporal_marker,omitempty"`
	SourceSentence string  `json:"source_sentence,omitempty"`
	Confidence     float64 `json:"confidence"`
}

type TemporalFact struct {
	Event      string  `json:"event"`
	Date       string  `json:"date"`
	Precision  string  `json:"precision,omitempty"`
	Context    string  `json:"context,omitempty"`
	Confidence float64 `json:"confidence"`
}

type EntityFact struct {
	Name       string  `json:"name"`
	Type       string  `json:"type,omitempty"`
	Role       string  `json:"role,omitempty"`
	Context    string  `json:"context,omitempty"`
	Confidence float64 `json:"confidence"`
}

type RelationshipFact struct {
	Entity1    string  `json:"entity1"`
	Relation   string  `json:"relation"`
	Entity2    string  `json:"entity2"`
	Context    string  `json:"context,omitempty"`
	Confidence float64 `json:"confidence"`
}

// StructuredData holds the facts extracted from one source. A zero
// OverallConfidence marks an empty or fallback extraction.
type StructuredData struct {
	SourceURL           string             `json:"source_url"`
	Numerical           []NumericalFact    `json:"numerical"`
	Temporal            []TemporalFact     `json:"temporal"`
	Entities            []EntityFact       `json:"entities"`
	Relationships       []RelationshipFact `json:"relationships"`
	ExtractionTimestamp time.Time          `json:"extraction_timestamp"`
	OverallConfidence   float64            `json:"overall_confidence"`
}

// FactCount returns the number of facts across all four lists.
func (s *StructuredData) FactCount() int {
	if s == nil {
		return 0
	}
	return len(s.Numerical) + len(s.Temporal) + len(s.Entities) + len(s.Relationships)
}

// CrossReference notes that another section used the same source.
type CrossReference struct {
	Section string `json:"section"`
	Note    string `json:"note"`
}

// ExtractedItem is one page's contribution to a section.
type ExtractedItem struct {
	URL             string           `json:"source"`
	Title           string           `json:"title"`
	Content         string           `json:"content"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
	Structured      *StructuredData  `json:"structured_data,omitempty"`
	CrossReferences []CrossReference `json:"cross_references,omitempty"`
}

// DataPoint is a numerical fact attributed to a source URL.
type DataPoint struct {
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit,omitempty"`
	Source  string  `json:"source"`
	Context string  `json:"context,omitempty"`
}

// ComplexityAnalysis scores a query on five axes, each in [1,5].
type ComplexityAnalysis struct {
	TopicComplexity  float64 `json:"topic_complexity,omitempty"`
	Specificity      float64 `json:"specificity,omitempty"`
	FormatDepth      float64 `json:"format_depth,omitempty"`
	TemporalDepth    float64 `json:"temporal_depth,omitempty"`
	Interconnections float64 `json:"interconnections,omitempty"`
	OverallScore     float64 `json:"overall_score"`
	TargetLength     string  `json:"target_length"`
	EstimatedWords   int     `json:"estimated_words"`
	Justification    string  `json:"justification,omitempty"`
}

// Length tiers derived from the overall complexity score.
const (
	TierConcise  = "concise"
	TierStandard = "standard"
	TierDetailed = "detailed"
	TierInDepth  = "in-depth"
)

// TierForScore maps a mean complexity score to a report length tier.
func TierForScore(score float64) string {
	switch {
	case score <= 2.0:
		return TierConcise
	case score <= 3.0:
		return TierStandard
	case score <= 4.0:
		return TierDetailed
	default:
		return TierInDepth
	}
}

type SectionTarget struct {
	WordsTarget  int      `json:"words_target"`
	Depth        Depth    `json:"depth"`
	Objectives   []string `json:"objectives"`
	KeyQuestions []string `json:"key_questions"`
}

type NarrativeTransition struct {
	FromSection    string `json:"from_section"`
	ToSection      string `json:"to_section"`
	TransitionType string `json:"transition_type"`
	Rationale      string `json:"rationale,omitempty"`
}

type SearchStrategy struct {
	TotalSourcesNeeded int    `json:"total_sources_needed"`
	SourcesPerSection  int    `json:"sources_per_section"`
	SearchDepth        string `json:"search_depth"`
}

// Plan is the canvas produced by planning. Sections is frozen once the
// execution context is initialised from it.
type Plan struct {
	ComplexityAnalysis ComplexityAnalysis       `json:"complexity_analysis"`
	Sections           []string                 `json:"sections"`
	SectionTargets     map[string]SectionTarget `json:"section_targets"`
	NarrativeFlow      []NarrativeTransition    `json:"narrative_flow"`
	SearchStrategy     SearchStrategy           `json:"search_strategy"`
}

// Target returns the target for a section, or a moderate default.
func (p Plan) Target(section string) SectionTarget {
	if t, ok := p.SectionTargets[section]; ok {
		return t
	}
	return SectionTarget{WordsTarget: 500, Depth: DepthModerate}
}

// Field richness classes produced by exploration.
const (
	FieldRich     = "rich"
	FieldModerate = "moderate"
	FieldLimited  = "limited"
	FieldUnknown  = "unknown"
)

type DataPreview struct {
	TotalSources int      `json:"total_sources"`
	Snippets     []string `json:"snippets"`
}

// Exploration summarises the restricted search run before planning.
type Exploration struct {
	Sources         []SearchHit `json:"sources"`
	FieldAssessment string      `json:"field_assessment"`
	TopicsFound     []string    `json:"topics_found"`
	DataPreview     DataPreview `json:"data_preview"`
}

// ReportSection is one assembled section of the final report.
type ReportSection struct {
	Title    string          `json:"title"`
	Content  string          `json:"content"`
	Data     []DataPoint     `json:"data"`
	Sources  []string        `json:"sources"`
	Metadata SectionMetadata `json:"metadata"`
}

type SectionMetadata struct {
	WordCount    int `json:"word_count"`
	SourcesCount int `json:"sources_count"`
}

type BibliographyEntry struct {
	ID       int    `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Accessed string `json:"date"`
}

type ReportMetadata struct {
	TotalWordCount  int     `json:"total_word_count"`
	SectionsCount   int     `json:"sections_count"`
	ComplexityScore float64 `json:"complexity_score"`
	TargetLength    string  `json:"target_length"`
}

// MetricValidation reports cross-source agreement for one metric.
type MetricValidation struct {
	Metric           string    `json:"metric"`
	Values           []float64 `json:"values"`
	Sources          []string  `json:"sources"`
	Mean             float64   `json:"mean"`
	StdDev           float64   `json:"std_dev"`
	Coherent         bool      `json:"coherent"`
	RecommendedValue *float64  `json:"recommended_value,omitempty"`
}

// Report is the final artifact of a run.
type Report struct {
	Type              string              `json:"type"`
	Title             string              `json:"title"`
	Summary           string              `json:"summary"`
	Sections          []ReportSection     `json:"sections"`
	Bibliography      []BibliographyEntry `json:"bibliography"`
	Metadata          ReportMetadata      `json:"metadata"`
	MetricsValidation []MetricValidation  `json:"metrics_validation,omitempty"`
}

// SourceURLs returns the bibliography URLs in id order.
func (r Report) SourceURLs() []string {
	out := make([]string, 0, len(r.Bibliography))
	for _, b := range r.Bibliography {
		out = append(out, b.URL)
	}
	return out
}

// Gap priorities and kinds.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"

	GapContentTooShort = "content_too_short"
	GapMissingData     = "missing_data"
	GapMissingSources  = "missing_sources"
)

// Gap is a heuristically detected deficiency in a section.
type Gap struct {
	Section     string `json:"section"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// CoherenceImprovement is one fix proposed by the coherence review.
type CoherenceImprovement struct {
	Type            string   `json:"type"`
	BetweenSections []string `json:"between_sections"`
	Issue           string   `json:"issue"`
	Suggestion      string   `json:"suggestion"`
	Priority        string   `json:"priority"`
}

type Redundancy struct {
	Sections    []string `json:"sections"`
	Description string   `json:"description"`
}

// CoherenceAnalysis is the parsed output of the coherence review.
type CoherenceAnalysis struct {
	Improvements   []CoherenceImprovement `json:"improvements"`
	Redundancies   []Redundancy           `json:"redundancies"`
	CoherenceScore float64                `json:"coherence_score"`
}
