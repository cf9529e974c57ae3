package research

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	researchMetricsOnce sync.Once
	runsTotal           otelmetric.Int64Counter
	runDuration         otelmetric.Float64Histogram
	toolCalls           otelmetric.Int64Counter
	llmCalls            otelmetric.Int64Counter
	gapIterations       otelmetric.Int64Counter
)

func initResearchMetrics() {
	meter := otel.Meter("deepresearch/internal/research")
	var err error
	runsTotal, err = meter.Int64Counter(
		"research_runs_total",
		otelmetric.WithDescription("Research runs completed, by outcome"),
	)
	if err != nil {
		log.Printf("research metrics init: research_runs_total: %v", err)
	}
	runDuration, err = meter.Float64Histogram(
		"research_run_duration_seconds",
		otelmetric.WithDescription("Wall clock duration of research runs"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("research metrics init: research_run_duration_seconds: %v", err)
	}
	toolCalls, err = meter.Int64Counter(
		"research_tool_calls_total",
		otelmetric.WithDescription("External tool calls by tool and outcome"),
	)
	if err != nil {
		log.Printf("research metrics init: research_tool_calls_total: %v", err)
	}
	llmCalls, err = meter.Int64Counter(
		"research_llm_calls_total",
		otelmetric.WithDescription("LLM calls by phase and outcome"),
	)
	if err != nil {
		log.Printf("research metrics init: research_llm_calls_total: %v", err)
	}
	gapIterations, err = meter.Int64Counter(
		"research_gap_iterations_total",
		otelmetric.WithDescription("Gap filling iterations executed"),
	)
	if err != nil {
		log.Printf("research metrics init: research_gap_iterations_total: %v", err)
	}
}

func outcome(ok bool) attribute.KeyValue {
	if ok {
		return attribute.String("outcome", "success")
	}
	return attribute.String("outcome", "failure")
}

func recordToolOutcome(ctx context.Context, tool string, ok bool) {
	researchMetricsOnce.Do(initResearchMetrics)
	if toolCalls == nil {
		return
	}
	toolCalls.Add(contextOrBackground(ctx), 1, otelmetric.WithAttributes(attribute.String("tool", tool), outcome(ok)))
}

func recordLLMCall(ctx context.Context, phase string, ok bool) {
	researchMetricsOnce.Do(initResearchMetrics)
	if llmCalls == nil {
		return
	}
	llmCalls.Add(contextOrBackground(ctx), 1, otelmetric.WithAttributes(attribute.String("phase", phase), outcome(ok)))
}

func recordGapIteration(ctx context.Context) {
	researchMetricsOnce.Do(initResearchMetrics)
	if gapIterations == nil {
		return
	}
	gapIterations.Add(contextOrBackground(ctx), 1)
}

func recordRun(ctx context.Context, ok bool, seconds float64) {
	researchMetricsOnce.Do(initResearchMetrics)
	if runsTotal != nil {
		runsTotal.Add(contextOrBackground(ctx), 1, otelmetric.WithAttributes(outcome(ok)))
	}
	if runDuration != nil {
		runDuration.Record(contextOrBackground(ctx), seconds, otelmetric.WithAttributes(outcome(ok)))
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
