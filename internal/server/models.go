package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

const (
	defaultLanguage   = "en"
	defaultMinSources = 10
	maxMinSources     = 100
	maxStepsLimit     = 60
	minTimeoutSeconds = 60
	maxTopicLength    = 1000
)

// DeepResearchRequest is the body of POST /api/v1/research/deep.
type DeepResearchRequest struct {
	Topic        string             `json:"topic"`
	Objectives   []string           `json:"objectives"`
	Context      ResearchContext    `json:"context"`
	Sources      SourcesConstraints `json:"sources"`
	OutputFormat OutputFormat       `json:"output_format"`
	MaxSteps     *int               `json:"max_steps"`
	Timeout      *int               `json:"timeout"`
}

type ResearchContext struct {
	Language        string `json:"language"`
	MinSources      *int   `json:"min_sources"`
	IncludeData     bool   `json:"include_data"`
	IncludeReports  bool   `json:"include_reports"`
	IncludeAcademic bool   `json:"include_academic"`
}

type SourcesConstraints struct {
	Required         []string `json:"required"`
	Suggested        []string `json:"suggested"`
	Exclusions       []string `json:"exclusions"`
	DomainsWhitelist []string `json:"domains_whitelist"`
}

type OutputFormat struct {
	Structure string   `json:"structure"`
	Sections  []string `json:"sections"`
}

// HTTPError is the JSON error envelope.
type HTTPError struct {
	Error string `json:"error"`
}

// ResearchHealth is returned by GET /api/v1/research/health.
type ResearchHealth struct {
	Status        string `json:"status"`
	LLMConfigured bool   `json:"llm_configured"`
	Search        string `json:"search"`
}

// ReportListResponse wraps GET /api/v1/reports.
type ReportListResponse struct {
	Reports []store.ReportRecord `json:"reports"`
	Count   int                  `json:"count"`
}

// ToRequest validates the body, applies defaults and folds in the
// server-wide source policy.
func (r DeepResearchRequest) ToRequest(general config.GeneralConfig, rc config.ResearchConfig) (research.Request, error) {
	topic := strings.TrimSpace(r.Topic)
	if topic == "" {
		return research.Request{}, fmt.Errorf("topic is required")
	}
	if len(topic) > maxTopicLength {
		return research.Request{}, fmt.Errorf("topic must be at most %d characters", maxTopicLength)
	}

	minSources := defaultMinSources
	if r.Context.MinSources != nil {
		minSources = *r.Context.MinSources
		if minSources < 1 || minSources > maxMinSources {
			return research.Request{}, fmt.Errorf("context.min_sources must be within 1..%d", maxMinSources)
		}
	}

	maxSteps := rc.MaxSteps
	if r.MaxSteps != nil {
		maxSteps = *r.MaxSteps
		if maxSteps < 1 || maxSteps > maxStepsLimit {
			return research.Request{}, fmt.Errorf("max_steps must be within 1..%d", maxStepsLimit)
		}
	}

	timeout := general.DefaultTimeout
	if r.Timeout != nil {
		maxSecs := int(general.MaxTimeout / time.Second)
		if *r.Timeout < minTimeoutSeconds || *r.Timeout > maxSecs {
			return research.Request{}, fmt.Errorf("timeout must be within %d..%d seconds", minTimeoutSeconds, maxSecs)
		}
		timeout = time.Duration(*r.Timeout) * time.Second
	}

	language := strings.TrimSpace(r.Context.Language)
	if language == "" {
		language = defaultLanguage
	}
	structure := strings.TrimSpace(r.OutputFormat.Structure)
	if structure == "" {
		structure = "report"
	}

	exclusions, whitelist := rc.SourcePolicy.Merge(cleanList(r.Sources.Exclusions), cleanList(r.Sources.DomainsWhitelist))
	return research.Request{
		Topic:           topic,
		Objectives:      cleanList(r.Objectives),
		Language:        language,
		MinSources:      minSources,
		IncludeData:     r.Context.IncludeData,
		IncludeReports:  r.Context.IncludeReports,
		IncludeAcademic: r.Context.IncludeAcademic,
		Sources: research.SourceConstraints{
			Required:   cleanList(r.Sources.Required),
			Suggested:  cleanList(r.Sources.Suggested),
			Exclusions: exclusions,
			Whitelist:  whitelist,
		},
		Structure: structure,
		Sections:  cleanList(r.OutputFormat.Sections),
		MaxSteps:  maxSteps,
		Timeout:   timeout,
	}, nil
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
