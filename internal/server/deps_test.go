package server

import (
	"context"
	"testing"
	"time"

	"github.com/mohammad-safakhou/deepresearch/config"
)

func TestBuildDepsWithoutLLMKey(t *testing.T) {
	cfg := testConfig()
	cfg.Search = config.SearchConfig{Provider: "duckduckgo", Timeout: time.Second}
	cfg.Fetch = config.FetchConfig{Backend: "http", Timeout: time.Second, Concurrency: 2}
	cfg.Research.MaxGapIterations = 2

	d, err := BuildDeps(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildDeps: %v", err)
	}
	defer d.Close()
	if d.Orchestrator == nil || d.Orchestrator.Configured() {
		t.Fatalf("orchestrator must exist but report missing llm")
	}
	if d.Searcher == nil {
		t.Fatalf("expected searcher")
	}
}

func TestBuildDepsRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Search = config.SearchConfig{Provider: "altavista"}
	cfg.Fetch = config.FetchConfig{Backend: "http", Concurrency: 1}
	if _, err := BuildDeps(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unknown search provider")
	}
}
