package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
	"github.com/mohammad-safakhou/deepresearch/internal/llm"
)

const (
	sectionSnippetLen      = 300
	charsPerTargetWord     = 10
	synthesisPromptItems   = 5
	synthesisTokensPerWord = 2.5
	synthesisTemperature   = 0.3
	targetedSearchResults  = 5
	targetedExtractURLs    = 2
	targetedContentLimit   = 2000

	toolSearch  = "search"
	toolExtract = "extract"
	toolLLM     = "llm"
)

var sourcesPerDepth = map[Depth]int{DepthLight: 3, DepthModerate: 5, DepthDeep: 8}

var errNoSectionData = errors.New("no data collected for section")

// SectionBuilder runs the per-section pipeline: targeted search, extraction,
// cross-referencing and synthesis into cited prose.
type SectionBuilder struct {
	llm               llm.Generator
	searcher          Searcher
	extractor         ContentExtractor
	structured        *StructuredExtractor
	extractStructured bool
	concurrency       int
	logger            *log.Logger
}

type SectionBuilderOptions struct {
	ExtractStructured bool
	Concurrency       int
	Logger            *log.Logger
}

func NewSectionBuilder(gen llm.Generator, searcher Searcher, extractor ContentExtractor, structured *StructuredExtractor, opts SectionBuilderOptions) *SectionBuilder {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[SECTION] ", log.LstdFlags)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &SectionBuilder{
		llm:               gen,
		searcher:          searcher,
		extractor:         extractor,
		structured:        structured,
		extractStructured: opts.ExtractStructured,
		concurrency:       opts.Concurrency,
		logger:            logger,
	}
}

// SectionQuery joins the query, section name and up to two key questions.
func SectionQuery(query, section string, target SectionTarget) string {
	parts := []string{query, section}
	for i := 0; i < len(target.KeyQuestions) && i < 2; i++ {
		parts = append(parts, target.KeyQuestions[i])
	}
	return strings.Join(parts, " ")
}

// SourcesForDepth is the number of search results a section extracts.
func SourcesForDepth(d Depth) int {
	if n, ok := sourcesPerDepth[d]; ok {
		return n
	}
	return sourcesPerDepth[DepthModerate]
}

// Build runs the whole pipeline for one section and stores the result in the
// run's execution context. extraURLs are fetched ahead of search results.
func (b *SectionBuilder) Build(ctx context.Context, r *run, section string, target SectionTarget, extraURLs []string) {
	state, ok := r.exec.Section(section)
	if !ok {
		return
	}
	hits := b.Research(ctx, r, section, target)
	urls := append([]string(nil), extraURLs...)
	for _, h := range hits {
		urls = append(urls, h.URL)
	}
	urls = dedupe(urls)
	items := b.Extract(ctx, r, section, urls, 0)
	items = r.exec.CrossReference(section, items)
	if refs := countCrossReferenced(items); refs > 0 {
		b.logger.Printf("section %q: %d items share sources with other sections", section, refs)
	}
	state.RawData = append(state.RawData, items...)
	refreshSectionMetadata(state)

	content, err := b.Synthesize(ctx, r, section, target)
	if err != nil {
		b.logger.Printf("section %q left empty: %v", section, err)
	}
	state.Content = content
}

// Research searches for a section's sources, filtered by the run's source
// constraints.
func (b *SectionBuilder) Research(ctx context.Context, r *run, section string, target SectionTarget) []SearchHit {
	query := SectionQuery(r.query, section, target)
	limit := SourcesForDepth(target.Depth)
	req := SearchRequest{Query: query, MaxResults: limit, Language: r.language, Categories: explorationCategories, Engines: explorationEngines}
	raw, ok := b.search(ctx, r, req)
	if !ok {
		return nil
	}
	var hits []SearchHit
	for _, h := range raw {
		if !r.constraints.Allowed(h.URL) {
			continue
		}
		hits = append(hits, SearchHit{URL: h.URL, Title: h.Title, Snippet: helpers.Truncate(h.Snippet, sectionSnippetLen)})
		if len(hits) >= limit {
			break
		}
	}
	r.exec.AddDataset("search_"+slug(section), toolSearch, len(hits), hits)
	return hits
}

// search performs one budgeted search call and records it everywhere.
func (b *SectionBuilder) search(ctx context.Context, r *run, req SearchRequest) ([]SearchHit, bool) {
	if b.searcher == nil {
		return nil, false
	}
	if err := r.monitor.TakeStep(); err != nil {
		r.noteStepsExhausted(b.logger, err)
		return nil, false
	}
	h := r.tracer.Begin(ActionWebSearch, toolSearch, map[string]any{"query": req.Query, "max_results": req.MaxResults})
	hits := b.searcher.Search(ctx, req)
	var err error
	if len(hits) == 0 {
		err = errors.New("no results")
	}
	h.End(map[string]any{"results": len(hits)}, err)
	r.exec.AddStep(toolSearch, "search: "+req.Query, req.Query, fmt.Sprintf("%d results", len(hits)), len(hits) > 0)
	recordToolOutcome(ctx, toolSearch, len(hits) > 0)
	r.sources.AddSearchEngine(req.Engines, req.Query, len(hits))
	for _, hit := range hits {
		r.exec.Discover(hit.URL)
		r.sources.Add(SourceEntry{URL: hit.URL, Type: SourceWebsite, Status: StatusDiscoveredNotUsed, Priority: PriorityAutoDiscovered})
	}
	return hits, true
}

type extractionResult struct {
	page PageExtraction
	item ExtractedItem
}

// Extract fetches urls concurrently, keeping successes with content in input
// order. contentLimit, when positive, clips each item's content.
func (b *SectionBuilder) Extract(ctx context.Context, r *run, section string, urls []string, contentLimit int) []ExtractedItem {
	if b.extractor == nil || len(urls) == 0 {
		return nil
	}
	// Steps are reserved up front so the budget cut is deterministic.
	var admitted []string
	for _, u := range urls {
		if err := r.monitor.TakeStep(); err != nil {
			r.noteStepsExhausted(b.logger, err)
			break
		}
		admitted = append(admitted, u)
	}
	results := make([]extractionResult, len(admitted))
	handles := make([]*StepHandle, len(admitted))
	for i, u := range admitted {
		handles[i] = r.tracer.Begin(ActionContentExtraction, toolExtract, map[string]any{"url": u})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	topic := r.query + " - " + section
	for i, u := range admitted {
		i, u := i, u
		g.Go(func() error {
			page := b.extractor.Extract(gctx, u)
			res := extractionResult{page: page}
			if page.Success && page.Content != "" {
				content := page.Content
				if contentLimit > 0 {
					content = clipRunes(content, contentLimit)
				}
				res.item = ExtractedItem{URL: u, Title: page.Title, Content: content, Metadata: page.Metadata}
				if b.extractStructured && b.structured != nil {
					sd := b.structured.Extract(gctx, content, u, topic)
					res.item.Structured = &sd
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var items []ExtractedItem
	for i, res := range results {
		u := admitted[i]
		ok := res.page.Success && res.page.Content != ""
		var err error
		if !ok {
			err = errors.New(nonEmpty(res.page.Error, "empty content"))
		}
		handles[i].End(map[string]any{"title": res.page.Title, "content_length": len(res.item.Content)}, err)
		r.exec.AddStep(toolExtract, "extract: "+u, u, res.page.Title, ok)
		recordToolOutcome(ctx, toolExtract, ok)
		r.exec.Discover(u)
		r.sources.Add(SourceEntry{URL: u, Type: SourceWebsite, Status: StatusDiscoveredNotUsed, Priority: PriorityAutoDiscovered})
		if !ok {
			status := StatusFailed
			if timedOut(res.page) {
				status = StatusTimeout
			}
			r.sources.Update(u, func(e *SourceEntry) {
				e.Status = status
				e.Reason = res.page.Error
				e.ExtractionMethod = "fetch"
			})
			continue
		}
		r.sources.Update(u, func(e *SourceEntry) {
			e.ExtractionMethod = "fetch"
			e.ContentLength = len(res.item.Content)
		})
		items = append(items, res.item)
	}
	if len(items) > 0 {
		r.exec.AddDataset("extract_"+slug(section), toolExtract, len(items), itemSummaries(items))
	}
	b.logger.Printf("section %q: %d/%d sources extracted", section, len(items), len(admitted))
	return items
}

// TargetedSearch gathers extra material for a section with a gap.
func (b *SectionBuilder) TargetedSearch(ctx context.Context, r *run, section string) []ExtractedItem {
	req := SearchRequest{Query: r.query + " " + section, MaxResults: targetedSearchResults, Language: r.language}
	hits, ok := b.search(ctx, r, req)
	if !ok {
		return nil
	}
	var urls []string
	for _, h := range hits {
		if !r.constraints.Allowed(h.URL) {
			continue
		}
		urls = append(urls, h.URL)
		if len(urls) >= targetedExtractURLs {
			break
		}
	}
	items := b.Extract(ctx, r, section, urls, targetedContentLimit)
	return r.exec.CrossReference(section, items)
}

// Synthesize writes a section from its collected data. Failures yield empty
// content and a failed step.
func (b *SectionBuilder) Synthesize(ctx context.Context, r *run, section string, target SectionTarget) (string, error) {
	state, ok := r.exec.Section(section)
	if !ok {
		return "", fmt.Errorf("unknown section %q", section)
	}
	h := r.tracer.Begin(ActionSynthesis, toolLLM, map[string]any{"section": section, "items": len(state.RawData)})
	if len(state.RawData) == 0 {
		h.EndWithStatus(nil, StepSkipped, errNoSectionData)
		r.exec.AddStep(toolLLM, "synthesize: "+section, section, errNoSectionData.Error(), false)
		return "", errNoSectionData
	}
	maxChars := target.WordsTarget * charsPerTargetWord
	selected := SelectChunks(state.RawData, r.query+" "+section, maxChars, target.Depth)
	if len(selected) > synthesisPromptItems {
		selected = selected[:synthesisPromptItems]
	}
	prompt := synthesisPrompt(r.query, section, target, selected)
	maxTokens := int(float64(target.WordsTarget) * synthesisTokensPerWord)
	resp, err := b.llm.Generate(ctx, []llm.Message{llm.User(prompt)}, maxTokens, synthesisTemperature)
	recordLLMCall(ctx, "synthesis", err == nil)
	if err != nil {
		h.End(nil, err)
		r.exec.AddStep(toolLLM, "synthesize: "+section, section, err.Error(), false)
		return "", err
	}
	content := strings.TrimSpace(resp)
	h.End(map[string]any{"words": len(strings.Fields(content))}, nil)
	r.exec.AddStep(toolLLM, "synthesize: "+section, section, content, content != "")
	return content, nil
}

var depthInstructions = map[Depth]string{
	DepthLight:    "Write 2-3 tight paragraphs that go straight to the essentials.",
	DepthModerate: "Write 4-6 balanced, informative paragraphs.",
	DepthDeep:     "Write 6-10 detailed paragraphs exploring every aspect and the interconnections between them.",
}

type promptItem struct {
	Source          string           `json:"source"`
	Title           string           `json:"title"`
	Content         string           `json:"content"`
	Facts           *StructuredData  `json:"structured_data,omitempty"`
	CrossReferences []CrossReference `json:"cross_references,omitempty"`
}

func synthesisPrompt(query, section string, target SectionTarget, items []ExtractedItem) string {
	data := make([]promptItem, 0, len(items))
	for _, it := range items {
		var facts *StructuredData
		if it.Structured != nil && it.Structured.FactCount() > 0 {
			facts = it.Structured
		}
		data = append(data, promptItem{Source: it.URL, Title: it.Title, Content: it.Content, Facts: facts, CrossReferences: it.CrossReferences})
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		raw = []byte("[]")
	}
	instr, ok := depthInstructions[target.Depth]
	if !ok {
		instr = depthInstructions[DepthModerate]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write the section %q answering: %q\n\n", section, query)
	b.WriteString("SECTION OBJECTIVES:\n")
	for _, o := range target.Objectives {
		fmt.Fprintf(&b, "- %s\n", o)
	}
	b.WriteString("\nKEY QUESTIONS:\n")
	for _, q := range target.KeyQuestions {
		fmt.Fprintf(&b, "- %s\n", q)
	}
	fmt.Fprintf(&b, "\nINSTRUCTIONS:\n%s\n\nAVAILABLE DATA (%d sources):\n%s\n\n", instr, len(items), raw)
	if len(items) == 0 {
		b.WriteString("No collected source is relevant enough for this section. State briefly that the available data is insufficient instead of inventing facts.\n\n")
	}
	fmt.Fprintf(&b, `RULES:
1. Every factual claim must carry an inline citation in the form [SOURCE:url].
2. Length follows from the quality of the data, it is not a strict target.
3. Approximate length: ~%d words.
4. Coherent paragraphs, no bullet lists.
5. Informative, precise, fluent tone.

Write only the section body, without a title or metadata.`, target.WordsTarget)
	return b.String()
}

func refreshSectionMetadata(state *SectionState) {
	state.KeyData = KeyData(state.RawData)
	seen := make(map[string]struct{}, len(state.RawData))
	state.Sources = state.Sources[:0]
	for _, it := range state.RawData {
		key := helpers.URLKey(it.URL)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		state.Sources = append(state.Sources, it.URL)
	}
}

func countCrossReferenced(items []ExtractedItem) int {
	n := 0
	for _, it := range items {
		if len(it.CrossReferences) > 0 {
			n++
		}
	}
	return n
}

func itemSummaries(items []ExtractedItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{"source": it.URL, "title": it.Title, "content_length": len(it.Content)})
	}
	return out
}

// dedupe drops blanks and canonical duplicates, keeping first spellings.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := helpers.URLKey(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('_')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
