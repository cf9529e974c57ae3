package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/deepresearch/internal/capability"
	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
	"github.com/mohammad-safakhou/deepresearch/internal/llm"
)

const (
	explorationMaxResults = 8
	explorationSnippetLen = 200
	planningMaxTokens     = 3000
	planningTemperature   = 0.2
	defaultWordsTarget    = 500
	requestedWordsTarget  = 400
)

var (
	explorationCategories = []string{"general"}
	explorationEngines    = []string{"google", "duckduckgo"}

	topicWordPattern = regexp.MustCompile(`\b[a-zA-Z]{4,}\b`)
	topicStopwords   = map[string]struct{}{
		"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "more": {}, "will": {},
		"your": {}, "about": {}, "what": {}, "when": {}, "where": {}, "which": {}, "their": {}, "there": {},
	}
)

// PlanningInput carries the caller's preferences into planning.
type PlanningInput struct {
	Objectives        []string
	Language          string
	RequestedSections []string
	RequiredSources   []string
	Extra             map[string]any
}

// Planner runs exploration and canvas generation.
type Planner struct {
	llm      llm.Generator
	searcher Searcher
	catalog  *capability.Registry
	logger   *log.Logger
}

func NewPlanner(gen llm.Generator, searcher Searcher, catalog *capability.Registry, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{llm: gen, searcher: searcher, catalog: catalog, logger: logger}
}

// ExplorationRequest is the restricted search issued before planning.
func ExplorationRequest(query, language string) SearchRequest {
	return SearchRequest{
		Query:      query,
		MaxResults: explorationMaxResults,
		Language:   language,
		Categories: explorationCategories,
		Engines:    explorationEngines,
	}
}

// Explore assesses how rich the field is from a handful of search results.
// A nil searcher yields an unknown assessment.
func (p *Planner) Explore(ctx context.Context, query, language string) Exploration {
	if p.searcher == nil {
		return Exploration{FieldAssessment: FieldUnknown}
	}
	hits := p.searcher.Search(ctx, ExplorationRequest(query, language))
	if len(hits) > explorationMaxResults {
		hits = hits[:explorationMaxResults]
	}
	sources := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, SearchHit{URL: h.URL, Title: h.Title, Snippet: helpers.Truncate(h.Snippet, explorationSnippetLen)})
	}
	preview := DataPreview{TotalSources: len(sources), Snippets: []string{}}
	for i := 0; i < len(sources) && i < 3; i++ {
		preview.Snippets = append(preview.Snippets, sources[i].Snippet)
	}
	exp := Exploration{
		Sources:         sources,
		FieldAssessment: assessField(len(sources)),
		TopicsFound:     ExtractTopics(sources),
		DataPreview:     preview,
	}
	p.logger.Printf("exploration: %d sources, field %s, topics %v", len(sources), exp.FieldAssessment, exp.TopicsFound)
	return exp
}

func assessField(n int) string {
	switch {
	case n >= 6:
		return FieldRich
	case n >= 3:
		return FieldModerate
	default:
		return FieldLimited
	}
}

// ExtractTopics returns up to five frequent words (four letters or more)
// from titles and snippets that appear at least twice. Ties keep first
// appearance order.
func ExtractTopics(hits []SearchHit) []string {
	counts := make(map[string]int)
	var order []string
	for _, h := range hits {
		text := strings.ToLower(h.Title + " " + h.Snippet)
		for _, w := range topicWordPattern.FindAllString(text, -1) {
			if _, stop := topicStopwords[w]; stop {
				continue
			}
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	topics := []string{}
	for i := 0; i < len(order) && i < 5; i++ {
		if counts[order[i]] >= 2 {
			topics = append(topics, order[i])
		}
	}
	return topics
}

// FallbackPlan is the fixed plan used whenever canvas generation fails. When
// sections are requested they replace the default three-section layout.
func FallbackPlan(requested []string) Plan {
	if names := cleanSections(requested); len(names) > 0 {
		targets := make(map[string]SectionTarget, len(names))
		for _, n := range names {
			targets[n] = SectionTarget{WordsTarget: requestedWordsTarget, Depth: DepthModerate, Objectives: []string{}, KeyQuestions: []string{}}
		}
		return Plan{
			ComplexityAnalysis: ComplexityAnalysis{OverallScore: 3.0, TargetLength: TierStandard, EstimatedWords: requestedWordsTarget * len(names)},
			Sections:           names,
			SectionTargets:     targets,
			NarrativeFlow:      []NarrativeTransition{},
			SearchStrategy:     SearchStrategy{TotalSourcesNeeded: 10, SourcesPerSection: 3, SearchDepth: "standard"},
		}
	}
	return Plan{
		ComplexityAnalysis: ComplexityAnalysis{OverallScore: 3.0, TargetLength: TierStandard, EstimatedWords: 1200},
		Sections:           []string{"Introduction", "Analysis", "Conclusion"},
		SectionTargets: map[string]SectionTarget{
			"Introduction": {WordsTarget: 300, Depth: DepthModerate, Objectives: []string{"Introduce the topic"}, KeyQuestions: []string{}},
			"Analysis":     {WordsTarget: 600, Depth: DepthModerate, Objectives: []string{"Analyse the topic"}, KeyQuestions: []string{}},
			"Conclusion":   {WordsTarget: 300, Depth: DepthLight, Objectives: []string{"Conclude"}, KeyQuestions: []string{}},
		},
		NarrativeFlow:  []NarrativeTransition{},
		SearchStrategy: SearchStrategy{TotalSourcesNeeded: 10, SourcesPerSection: 3, SearchDepth: "standard"},
	}
}

type rawPlan struct {
	ComplexityAnalysis struct {
		TopicComplexity  flexFloat `json:"topic_complexity"`
		Specificity      flexFloat `json:"specificity"`
		FormatDepth      flexFloat `json:"format_depth"`
		TemporalDepth    flexFloat `json:"temporal_depth"`
		Interconnections flexFloat `json:"interconnections"`
		OverallScore     flexFloat `json:"overall_score"`
		TargetLength     string    `json:"target_length"`
		EstimatedWords   flexFloat `json:"estimated_words"`
		Justification    string    `json:"justification"`
	} `json:"complexity_analysis"`
	Sections       []string `json:"sections"`
	SectionTargets map[string]struct {
		WordsTarget  flexFloat `json:"words_target"`
		Depth        string    `json:"depth"`
		Objectives   []string  `json:"objectives"`
		KeyQuestions []string  `json:"key_questions"`
	} `json:"section_targets"`
	NarrativeFlow  []NarrativeTransition `json:"narrative_flow"`
	SearchStrategy struct {
		TotalSourcesNeeded flexFloat `json:"total_sources_needed"`
		SourcesPerSection  flexFloat `json:"sources_per_section"`
		SearchDepth        string    `json:"search_depth"`
	} `json:"search_strategy"`
}

// CreatePlan asks the LLM for a canvas. The second return value reports
// whether the fallback plan was used.
func (p *Planner) CreatePlan(ctx context.Context, query string, in PlanningInput, exp Exploration) (Plan, bool) {
	if p.llm == nil {
		return FallbackPlan(in.RequestedSections), true
	}
	resp, err := p.llm.Generate(ctx, []llm.Message{llm.User(p.planningPrompt(query, in, exp))}, planningMaxTokens, planningTemperature)
	if err != nil {
		p.logger.Printf("planning call failed: %v", err)
		return FallbackPlan(in.RequestedSections), true
	}
	plan, err := ParsePlan(resp, in.RequestedSections)
	if err != nil {
		p.logger.Printf("planning response unusable: %v", err)
		return FallbackPlan(in.RequestedSections), true
	}
	p.logger.Printf("plan created: %d sections, tier %s", len(plan.Sections), plan.ComplexityAnalysis.TargetLength)
	return plan, false
}

// ParsePlan decodes and normalises an LLM planning response.
func ParsePlan(resp string, requested []string) (Plan, error) {
	var raw rawPlan
	if err := helpers.DecodeJSONObject(resp, &raw); err != nil {
		return Plan{}, err
	}
	sections := cleanSections(requested)
	if len(sections) == 0 {
		sections = cleanSections(raw.Sections)
	}
	if len(sections) == 0 {
		return Plan{}, fmt.Errorf("plan has no sections")
	}

	plan := Plan{
		Sections:       sections,
		SectionTargets: make(map[string]SectionTarget, len(sections)),
		NarrativeFlow:  []NarrativeTransition{},
	}
	totalWords := 0
	for _, name := range sections {
		t := SectionTarget{WordsTarget: defaultWordsTarget, Depth: DepthModerate, Objectives: []string{}, KeyQuestions: []string{}}
		if rt, ok := raw.SectionTargets[name]; ok {
			if w := int(rt.WordsTarget); w > 0 {
				t.WordsTarget = w
			}
			t.Depth = ParseDepth(rt.Depth)
			if rt.Objectives != nil {
				t.Objectives = rt.Objectives
			}
			if rt.KeyQuestions != nil {
				t.KeyQuestions = rt.KeyQuestions
			}
		}
		plan.SectionTargets[name] = t
		totalWords += t.WordsTarget
	}
	for _, tr := range raw.NarrativeFlow {
		if _, ok := plan.SectionTargets[tr.FromSection]; !ok {
			continue
		}
		if _, ok := plan.SectionTargets[tr.ToSection]; !ok {
			continue
		}
		plan.NarrativeFlow = append(plan.NarrativeFlow, tr)
	}

	ca := raw.ComplexityAnalysis
	axes := []float64{float64(ca.TopicComplexity), float64(ca.Specificity), float64(ca.FormatDepth), float64(ca.TemporalDepth), float64(ca.Interconnections)}
	complete := true
	var sum float64
	for i, a := range axes {
		if a <= 0 {
			complete = false
			continue
		}
		axes[i] = math.Max(1, math.Min(5, a))
		sum += axes[i]
	}
	overall := float64(ca.OverallScore)
	if complete {
		overall = sum / 5
	}
	if overall <= 0 {
		overall = 3.0
	}
	overall = math.Max(1, math.Min(5, overall))
	estimated := int(ca.EstimatedWords)
	if estimated <= 0 {
		estimated = totalWords
	}
	plan.ComplexityAnalysis = ComplexityAnalysis{
		TopicComplexity:  axes[0],
		Specificity:      axes[1],
		FormatDepth:      axes[2],
		TemporalDepth:    axes[3],
		Interconnections: axes[4],
		OverallScore:     math.Round(overall*100) / 100,
		TargetLength:     TierForScore(overall),
		EstimatedWords:   estimated,
		Justification:    ca.Justification,
	}

	ss := raw.SearchStrategy
	plan.SearchStrategy = SearchStrategy{
		TotalSourcesNeeded: int(ss.TotalSourcesNeeded),
		SourcesPerSection:  int(ss.SourcesPerSection),
		SearchDepth:        ss.SearchDepth,
	}
	if plan.SearchStrategy.TotalSourcesNeeded <= 0 {
		plan.SearchStrategy.TotalSourcesNeeded = 10
	}
	if plan.SearchStrategy.SourcesPerSection <= 0 {
		plan.SearchStrategy.SourcesPerSection = 3
	}
	if plan.SearchStrategy.SearchDepth == "" {
		plan.SearchStrategy.SearchDepth = "standard"
	}
	return plan, nil
}

func cleanSections(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (p *Planner) planningPrompt(query string, in PlanningInput, exp Exploration) string {
	firstSnippet := "N/A"
	if len(exp.DataPreview.Snippets) > 0 {
		firstSnippet = helpers.Truncate(exp.DataPreview.Snippets[0], 150)
	}
	userCtx := "none"
	if len(in.Objectives) > 0 || in.Language != "" || len(in.RequiredSources) > 0 || len(in.Extra) > 0 {
		raw, err := json.MarshalIndent(map[string]any{
			"objectives":       in.Objectives,
			"language":         in.Language,
			"required_sources": in.RequiredSources,
			"extra":            in.Extra,
		}, "", "  ")
		if err == nil {
			userCtx = string(raw)
		}
	}
	tools := "none"
	if p.catalog != nil {
		tools = p.catalog.PromptDescription()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert research planner. Build a detailed plan answering this query.\n\nQUERY: %q\n\n", query)
	fmt.Fprintf(&b, "EXPLORATION:\n- Sources discovered: %d\n- Field richness: %s\n- Sub-topics: %s\n- Preview: %s\n\n",
		len(exp.Sources), exp.FieldAssessment, strings.Join(exp.TopicsFound, ", "), firstSnippet)
	fmt.Fprintf(&b, "USER CONTEXT:\n%s\n\nAVAILABLE TOOLS:\n%s\n\n", userCtx, tools)
	if names := cleanSections(in.RequestedSections); len(names) > 0 {
		fmt.Fprintf(&b, "The report MUST use exactly these sections, in this order: %s\n\n", strings.Join(names, " | "))
	}
	b.WriteString(`STEP 1: score the query from 1 to 5 on each axis:
topic_complexity (simple -> multidimensional), specificity (broad -> precise),
format_depth (summary -> in-depth study), temporal_depth (point in time -> evolution and projection),
interconnections (isolated -> systemic). The mean is the overall score.

STEP 2: size the report from the overall score:
- 1.0-2.0: concise (1-2 sections, 500-1000 words)
- 2.1-3.0: standard (2-3 sections, 1000-1500 words)
- 3.1-4.0: detailed (3-5 sections, 1500-2500 words)
- 4.1-5.0: in-depth (4-7 sections, 2500-4000 words)

STEP 3: define the narrative transitions between consecutive sections.

Return JSON:
{
  "complexity_analysis": {"topic_complexity": 1-5, "specificity": 1-5, "format_depth": 1-5, "temporal_depth": 1-5, "interconnections": 1-5, "overall_score": mean, "target_length": "concise|standard|detailed|in-depth", "estimated_words": total, "justification": "why"},
  "sections": ["Section 1", "Section 2"],
  "section_targets": {"Section 1": {"words_target": 300, "depth": "light|moderate|deep", "objectives": ["..."], "key_questions": ["..."]}},
  "narrative_flow": [{"from_section": "Section 1", "to_section": "Section 2", "transition_type": "zoom-in|cause-effect|chronological|comparison", "rationale": "why"}],
  "search_strategy": {"total_sources_needed": 10, "sources_per_section": 3, "search_depth": "quick|standard|exhaustive"}
}
`)
	if len(exp.TopicsFound) > 0 {
		fmt.Fprintf(&b, "\nAdapt the structure to the discovered sub-topics: %s\n", strings.Join(exp.TopicsFound, ", "))
	}
	return b.String()
}
