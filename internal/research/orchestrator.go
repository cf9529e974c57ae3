package research

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/deepresearch/internal/budget"
	"github.com/mohammad-safakhou/deepresearch/internal/capability"
	"github.com/mohammad-safakhou/deepresearch/internal/llm"
)

const (
	DefaultMaxSteps         = 30
	DefaultMaxGapIterations = 1
	maxGapIterationsCap     = 3
)

var researchTracer trace.Tracer = otel.Tracer("deepresearch/internal/research")

// ErrEmptyResult is reported when no section produced any content.
var ErrEmptyResult = errors.New("research produced no content")

// Request describes one research run.
type Request struct {
	Topic           string
	Objectives      []string
	Language        string
	MinSources      int
	IncludeData     bool
	IncludeReports  bool
	IncludeAcademic bool
	Sources         SourceConstraints
	Structure       string
	Sections        []string
	MaxSteps        int
	MaxTokens       int64
	Timeout         time.Duration
}

type ExecutionSummary struct {
	StepsExecuted     int                  `json:"steps_executed"`
	SourcesConsulted  int                  `json:"sources_consulted"`
	Completeness      float64              `json:"completeness"`
	Confidence        string               `json:"confidence"`
	DatasetsCollected int                  `json:"datasets_collected"`
	SourcesDiscovered []string             `json:"sources_discovered"`
	ToolPerformance   map[string]ToolStats `json:"tool_performance"`
	StepLog           []StepRecord         `json:"step_log"`
	Budget            BudgetUsage          `json:"budget"`

	// RequiredSourcesMet is true when every required source was fetched, or
	// when none was required.
	RequiredSourcesMet bool `json:"required_sources_met"`
}

// BudgetUsage reports consumption against the run's limits. A zero limit is
// unlimited.
type BudgetUsage struct {
	TokensUsed     int64   `json:"tokens_used"`
	MaxTokens      int64   `json:"max_tokens"`
	StepsUsed      int     `json:"steps_used"`
	MaxSteps       int     `json:"max_steps"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

type ExplorationTrace struct {
	SourcesDiscovered int      `json:"sources_discovered"`
	FieldAssessment   string   `json:"field_assessment"`
	TopicsIdentified  []string `json:"topics_identified"`
}

type PlanningTrace struct {
	ComplexityAnalysis ComplexityAnalysis    `json:"complexity_analysis"`
	SectionsPlanned    []string              `json:"sections_planned"`
	NarrativeFlow      []NarrativeTransition `json:"narrative_flow"`
	SearchStrategy     SearchStrategy        `json:"search_strategy"`
	Fallback           bool                  `json:"fallback"`
}

type ConstructionTrace struct {
	SectionsBuilt         []string `json:"sections_built"`
	TotalSourcesCollected int      `json:"total_sources_collected"`
	StepsExecuted         int      `json:"steps_executed"`
}

type CoherenceTrace struct {
	CoherenceScore       float64             `json:"coherence_score"`
	ImprovementsProposed int                 `json:"improvements_proposed"`
	ImprovementsApplied  []AppliedTransition `json:"improvements_applied"`
	Redundancies         []Redundancy        `json:"redundancies"`
}

type GapFillingTrace struct {
	InitialGaps   []Gap `json:"initial_gaps"`
	Iterations    int   `json:"iterations"`
	RemainingGaps []Gap `json:"remaining_gaps"`
	Skipped       bool  `json:"skipped,omitempty"`
}

// PhaseTraces summarises each phase of the workflow.
type PhaseTraces struct {
	Exploration  ExplorationTrace  `json:"exploration_phase"`
	Planning     PlanningTrace     `json:"planning_phase"`
	Construction ConstructionTrace `json:"construction_phase"`
	Coherence    CoherenceTrace    `json:"coherence_phase"`
	GapFilling   GapFillingTrace   `json:"gap_filling_phase"`
}

// Answer is the result of a run. It holds plain values only so it can be
// encoded incrementally.
type Answer struct {
	ID               string           `json:"id"`
	Success          bool             `json:"success"`
	Topic            string           `json:"topic"`
	Report           *Report          `json:"report,omitempty"`
	ExecutionSummary ExecutionSummary `json:"execution_summary"`
	Execution        Trace            `json:"execution"`
	Sources          AllSources       `json:"sources"`
	SourceStatistics SourceStatistics `json:"source_statistics"`
	Traces           PhaseTraces      `json:"traces"`
	ProcessingTime   float64          `json:"processing_time"`
	Error            string           `json:"error,omitempty"`
}

type Options struct {
	MaxGapIterations  int
	ExtractStructured bool
	Concurrency       int
	DefaultMaxSteps   int
	Logger            *log.Logger
	Now               func() time.Time

	// Budget holds service-wide limits; request limits override it.
	Budget budget.Config
}

// Orchestrator sequences exploration, planning, section construction,
// coherence review, assembly and gap filling.
type Orchestrator struct {
	llm       llm.Generator
	searcher  Searcher
	extractor ContentExtractor
	catalog   *capability.Registry
	opts      Options
	logger    *log.Logger
}

func NewOrchestrator(gen llm.Generator, searcher Searcher, extractor ContentExtractor, catalog *capability.Registry, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxGapIterations <= 0 {
		opts.MaxGapIterations = DefaultMaxGapIterations
	}
	if opts.MaxGapIterations > maxGapIterationsCap {
		opts.MaxGapIterations = maxGapIterationsCap
	}
	if opts.DefaultMaxSteps <= 0 {
		opts.DefaultMaxSteps = DefaultMaxSteps
	}
	return &Orchestrator{llm: gen, searcher: searcher, extractor: extractor, catalog: catalog, opts: opts, logger: opts.Logger}
}

// Configured reports whether the LLM collaborator is available.
func (o *Orchestrator) Configured() bool { return o.llm != nil }

// run is the per-request state shared by the phases.
type run struct {
	id          string
	query       string
	language    string
	exec        *ExecutionContext
	sources     *SourceRegistry
	tracer      *ExecutionTracer
	monitor     *budget.Monitor
	constraints SourceConstraints

	stepsExhausted bool
}

func (r *run) noteStepsExhausted(logger *log.Logger, err error) {
	if !r.stepsExhausted {
		logger.Printf("run %s: %v; continuing with collected data", r.id, err)
	}
	r.stepsExhausted = true
}

// runSearcher routes phase searches through the run's step budget and
// bookkeeping.
type runSearcher struct {
	r *run
	b *SectionBuilder
}

func (s runSearcher) Search(ctx context.Context, req SearchRequest) []SearchHit {
	hits, _ := s.b.search(ctx, s.r, req)
	return hits
}

// Run executes the full workflow. It fails only on missing configuration or
// when nothing at all could be produced.
func (o *Orchestrator) Run(ctx context.Context, req Request) Answer {
	start := o.opts.Now()
	ans := Answer{ID: uuid.New().String(), Topic: req.Topic}
	ctx, span := researchTracer.Start(ctx, "research.run", trace.WithAttributes(
		attribute.String("research.id", ans.ID),
		attribute.String("research.topic", req.Topic),
	))
	defer span.End()

	if o.llm == nil {
		ans.Error = llm.ErrMissingAPIKey.Error()
		span.SetStatus(codes.Error, ans.Error)
		recordRun(ctx, false, 0)
		return ans
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var override budget.Config
	if req.MaxSteps > 0 {
		steps := req.MaxSteps
		override.MaxSteps = &steps
	}
	if req.Timeout > 0 {
		secs := int64(req.Timeout / time.Second)
		override.MaxTimeSeconds = &secs
	}
	if req.MaxTokens > 0 {
		tokens := req.MaxTokens
		override.MaxTokens = &tokens
	}
	limits := budget.Merge(o.opts.Budget, override)
	if limits.MaxSteps == nil || *limits.MaxSteps <= 0 {
		steps := o.opts.DefaultMaxSteps
		limits.MaxSteps = &steps
	}
	if err := limits.Validate(); err != nil {
		ans.Error = err.Error()
		span.SetStatus(codes.Error, ans.Error)
		recordRun(ctx, false, 0)
		return ans
	}
	monitor := budget.NewMonitor(limits)
	// halted reports why the run must stop early: cancellation, deadline or
	// the wall clock budget.
	halted := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return monitor.CheckTime()
	}
	gen := o.llm
	if m, ok := gen.(llm.Metered); ok {
		gen = m.WithMonitor(monitor)
	}

	r := &run{
		id:          ans.ID,
		query:       req.Topic,
		language:    req.Language,
		exec:        NewExecutionContext(req.Topic),
		sources:     NewSourceRegistry(),
		tracer:      NewExecutionTracer(),
		monitor:     monitor,
		constraints: req.Sources,
	}
	r.tracer.SetMetadata("research_id", ans.ID)
	structured := NewStructuredExtractor(gen, nil)
	builder := NewSectionBuilder(gen, o.searcher, o.extractor, structured, SectionBuilderOptions{
		ExtractStructured: o.opts.ExtractStructured,
		Concurrency:       o.opts.Concurrency,
	})
	var phaseSearcher Searcher
	if o.searcher != nil {
		phaseSearcher = runSearcher{r: r, b: builder}
	}
	planner := NewPlanner(gen, phaseSearcher, o.catalog, nil)
	reviewer := NewCoherenceReviewer(gen, nil)

	o.logger.Printf("run %s: researching %q", r.id, req.Topic)

	// Phase 1: exploration and planning.
	pctx, pspan := researchTracer.Start(ctx, "research.plan")
	exp := planner.Explore(pctx, req.Topic, req.Language)
	if exp.FieldAssessment != FieldUnknown {
		r.exec.AddDataset("exploration", toolSearch, len(exp.Sources), exp.Sources)
	}
	ans.Traces.Exploration = ExplorationTrace{SourcesDiscovered: len(exp.Sources), FieldAssessment: exp.FieldAssessment, TopicsIdentified: exp.TopicsFound}

	ph := r.tracer.Begin(ActionPlanning, toolLLM, map[string]any{"query": req.Topic, "field": exp.FieldAssessment})
	plan, fallback := planner.CreatePlan(pctx, req.Topic, PlanningInput{
		Objectives:        req.Objectives,
		Language:          req.Language,
		RequestedSections: req.Sections,
		RequiredSources:   req.Sources.Required,
		Extra:             requestExtras(req),
	}, exp)
	recordLLMCall(ctx, "planning", !fallback)
	planStatus := StepSuccess
	if fallback {
		planStatus = StepPartial
	}
	ph.EndWithStatus(map[string]any{"sections": plan.Sections, "fallback": fallback}, planStatus, nil)
	r.exec.AddStep(toolLLM, "planning", req.Topic, plan.Sections, !fallback)
	pspan.SetAttributes(attribute.Int("plan.sections", len(plan.Sections)), attribute.Bool("plan.fallback", fallback))
	pspan.End()
	ans.Traces.Planning = PlanningTrace{
		ComplexityAnalysis: plan.ComplexityAnalysis,
		SectionsPlanned:    plan.Sections,
		NarrativeFlow:      plan.NarrativeFlow,
		SearchStrategy:     plan.SearchStrategy,
		Fallback:           fallback,
	}
	if err := r.exec.InitSections(plan.Sections); err != nil {
		o.logger.Printf("run %s: %v", r.id, err)
	}
	for _, u := range dedupe(req.Sources.Required) {
		r.sources.Add(SourceEntry{URL: u, Type: SourceWebsite, Status: StatusDiscoveredNotUsed, Priority: PriorityRequired})
	}
	for _, u := range dedupe(req.Sources.Suggested) {
		r.sources.Add(SourceEntry{URL: u, Type: SourceWebsite, Status: StatusDiscoveredNotUsed, Priority: PrioritySuggested})
	}

	// Phase 2: sections, one at a time so cross-referencing sees earlier data.
	for i, name := range plan.Sections {
		if err := halted(); err != nil {
			o.logger.Printf("run %s: stopping before section %q: %v", r.id, name, err)
			break
		}
		var extra []string
		if i == 0 {
			extra = dedupe(append(append([]string{}, req.Sources.Required...), req.Sources.Suggested...))
		}
		sctx, sspan := researchTracer.Start(ctx, "research.section", trace.WithAttributes(attribute.String("section", name)))
		builder.Build(sctx, r, name, plan.Target(name), extra)
		sspan.End()
	}
	ans.Traces.Construction = ConstructionTrace{
		SectionsBuilt:         r.exec.SectionNames(),
		TotalSourcesCollected: len(r.exec.AllItems()),
		StepsExecuted:         len(r.exec.Steps()),
	}

	// Phase 3: coherence.
	analysis := FallbackCoherence()
	applied := []AppliedTransition{}
	if halted() == nil {
		cctx, cspan := researchTracer.Start(ctx, "research.coherence")
		ch := r.tracer.Begin(ActionEnrichmentCheck, toolLLM, map[string]any{"sections": len(plan.Sections)})
		analysis = reviewer.Review(cctx, req.Topic, plan, r.exec)
		applied = reviewer.Apply(analysis, r.exec, nil)
		ch.End(map[string]any{"coherence_score": analysis.CoherenceScore, "applied": len(applied)}, nil)
		r.exec.AddStep(toolLLM, "coherence review", len(plan.Sections), analysis.CoherenceScore, true)
		cspan.End()
	}
	ans.Traces.Coherence = CoherenceTrace{
		CoherenceScore:       analysis.CoherenceScore,
		ImprovementsProposed: len(analysis.Improvements),
		ImprovementsApplied:  applied,
		Redundancies:         analysis.Redundancies,
	}

	// Phase 4: assembly, then gap filling.
	typeOf := func(u string) string {
		if e, ok := r.sources.Get(u); ok {
			return string(e.Type)
		}
		return ""
	}
	report := Assemble(req.Topic, plan, r.exec, o.opts.Now(), typeOf)
	gaps := IdentifyGaps(report)
	if halted() == nil {
		report, ans.Traces.GapFilling = o.fillGaps(ctx, r, builder, reviewer, plan, analysis, report, gaps, typeOf)
	} else {
		ans.Traces.GapFilling = GapFillingTrace{InitialGaps: gaps, RemainingGaps: gaps, Skipped: true}
	}

	var allData []StructuredData
	for _, it := range r.exec.AllItems() {
		if it.Structured != nil {
			allData = append(allData, *it.Structured)
		}
	}
	report.MetricsValidation = ValidateMetrics(allData)
	for _, b := range report.Bibliography {
		r.sources.UpdateStatus(b.URL, StatusSuccess)
	}

	ans.Report = &report
	ans.ExecutionSummary = summarizeExecution(r, report, ans.Traces.GapFilling.RemainingGaps)
	ans.Execution = r.tracer.Trace()
	ans.Sources = r.sources.GetAllSources()
	ans.SourceStatistics = r.sources.Statistics()
	ans.Success = hasContent(report)
	stopErr := halted()
	switch {
	case stopErr != nil:
		// A cancelled or expired run keeps its traces but not its partial report.
		ans.Success = false
		ans.Report = nil
		ans.Error = stopErr.Error()
		span.SetStatus(codes.Error, ans.Error)
	case !ans.Success:
		ans.Error = ErrEmptyResult.Error()
		span.SetStatus(codes.Error, ans.Error)
	}
	ans.ProcessingTime = roundTo(o.opts.Now().Sub(start).Seconds(), 2)
	recordRun(ctx, ans.Success, ans.ProcessingTime)
	span.SetAttributes(
		attribute.Int("research.steps", ans.ExecutionSummary.StepsExecuted),
		attribute.Float64("research.completeness", ans.ExecutionSummary.Completeness),
	)
	o.logger.Printf("run %s: done in %.2fs, %d sections, %d bibliography entries, completeness %.0f%%",
		r.id, ans.ProcessingTime, len(report.Sections), len(report.Bibliography), ans.ExecutionSummary.Completeness)
	return ans
}

// fillGaps runs the bounded repair loop. Only sections that received new data
// are re-synthesised; the loop continues only while the number of high
// priority gaps strictly decreases.
func (o *Orchestrator) fillGaps(ctx context.Context, r *run, builder *SectionBuilder, reviewer *CoherenceReviewer, plan Plan, analysis CoherenceAnalysis, report Report, gaps []Gap, typeOf func(string) string) (Report, GapFillingTrace) {
	tr := GapFillingTrace{InitialGaps: gaps, RemainingGaps: gaps}
	high := HighPriority(gaps)
	if len(gaps) == 0 || len(high) == 0 {
		return report, tr
	}
	if r.stepsExhausted || ctx.Err() != nil {
		tr.Skipped = true
		return report, tr
	}
	ctx, span := researchTracer.Start(ctx, "research.gaps", trace.WithAttributes(attribute.Int("gaps.high", len(high))))
	defer span.End()

	for iter := 0; iter < o.opts.MaxGapIterations; iter++ {
		if ctx.Err() != nil || r.stepsExhausted || r.monitor.CheckTime() != nil {
			break
		}
		tr.Iterations++
		recordGapIteration(ctx)
		targets := high
		if len(targets) > maxGapsPerIteration {
			targets = targets[:maxGapsPerIteration]
		}
		modified := map[string]bool{}
		for _, g := range targets {
			if modified[g.Section] {
				continue
			}
			st, ok := r.exec.Section(g.Section)
			if !ok {
				continue
			}
			o.logger.Printf("run %s: filling %s gap in %q", r.id, g.Type, g.Section)
			items := builder.TargetedSearch(ctx, r, g.Section)
			if len(items) == 0 {
				continue
			}
			st.RawData = append(st.RawData, items...)
			refreshSectionMetadata(st)
			modified[g.Section] = true
		}
		for _, name := range plan.Sections {
			if !modified[name] {
				continue
			}
			content, err := builder.Synthesize(ctx, r, name, plan.Target(name))
			if err != nil || content == "" {
				continue
			}
			st, _ := r.exec.Section(name)
			st.Content = content
		}
		if len(modified) > 0 {
			reviewer.Apply(analysis, r.exec, modified)
		}
		report = Assemble(r.query, plan, r.exec, o.opts.Now(), typeOf)
		newGaps := IdentifyGaps(report)
		tr.RemainingGaps = newGaps
		newHigh := HighPriority(newGaps)
		if len(newHigh) >= len(high) {
			o.logger.Printf("run %s: gap filling made no progress", r.id)
			break
		}
		high = newHigh
		if len(high) == 0 {
			break
		}
	}
	return report, tr
}

func requestExtras(req Request) map[string]any {
	extra := map[string]any{}
	if req.MinSources > 0 {
		extra["min_sources"] = req.MinSources
	}
	if req.IncludeData {
		extra["include_data"] = true
	}
	if req.IncludeReports {
		extra["include_reports"] = true
	}
	if req.IncludeAcademic {
		extra["include_academic"] = true
	}
	if req.Structure != "" {
		extra["structure"] = req.Structure
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func hasContent(report Report) bool {
	for _, s := range report.Sections {
		if s.Content != "" {
			return true
		}
	}
	return false
}

// Completeness is the share of sections with content, minus ten points per
// remaining high priority gap, floored at zero.
func Completeness(report Report, remaining []Gap) float64 {
	if len(report.Sections) == 0 {
		return 0
	}
	filled := 0
	for _, s := range report.Sections {
		if s.Content != "" {
			filled++
		}
	}
	score := float64(filled)/float64(len(report.Sections))*100 - 10*float64(len(HighPriority(remaining)))
	return math.Round(math.Max(0, score)*10) / 10
}

// ConfidenceLevel grades a run from its completeness and bibliography size.
func ConfidenceLevel(completeness float64, bibliography int) string {
	switch {
	case completeness >= 80 && bibliography >= 5:
		return "high"
	case completeness >= 50:
		return "medium"
	default:
		return "low"
	}
}

func summarizeExecution(r *run, report Report, remaining []Gap) ExecutionSummary {
	completeness := Completeness(report, remaining)
	tokens, steps, elapsed := r.monitor.Usage()
	usage := BudgetUsage{TokensUsed: tokens, StepsUsed: steps, ElapsedSeconds: roundTo(elapsed.Seconds(), 2)}
	limits := r.monitor.Config()
	if limits.MaxTokens != nil {
		usage.MaxTokens = *limits.MaxTokens
	}
	if limits.MaxSteps != nil {
		usage.MaxSteps = *limits.MaxSteps
	}
	return ExecutionSummary{
		StepsExecuted:     len(r.exec.Steps()),
		SourcesConsulted:  len(r.exec.DiscoveredSources()),
		Completeness:      completeness,
		Confidence:        ConfidenceLevel(completeness, len(report.Bibliography)),
		DatasetsCollected: len(r.exec.DatasetNames()),
		SourcesDiscovered: r.exec.DiscoveredSources(),
		ToolPerformance:   r.exec.ToolStats(),
		StepLog:           r.exec.Steps(),
		Budget:            usage,

		RequiredSourcesMet: r.sources.HasRequiredSourcesSucceeded(),
	}
}
