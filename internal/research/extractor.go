package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
	"github.com/mohammad-safakhou/deepresearch/internal/llm"
)

const (
	extractionContentLimit = 8000
	extractionMaxTokens    = 3000
	extractionTemperature  = 0.1
	coherenceCVThreshold   = 0.10
)

// StructuredExtractor pulls numerical, temporal, entity and relationship
// facts out of page content with one LLM call per page.
type StructuredExtractor struct {
	llm    llm.Generator
	logger *log.Logger
}

func NewStructuredExtractor(gen llm.Generator, logger *log.Logger) *StructuredExtractor {
	if logger == nil {
		logger = log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags)
	}
	return &StructuredExtractor{llm: gen, logger: logger}
}

// flexFloat accepts JSON numbers and numeric strings such as "1,200" or "12%".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*f = 0
		return nil
	}
	s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), "%"))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexFloat(v)
	} else {
		*f = 0
	}
	return nil
}

type rawFacts struct {
	Numerical []struct {
		Metric         string    `json:"metric"`
		Value          flexFloat `json:"value"`
		Unit           string    `json:"unit"`
		Context        string    `json:"context"`
		TemporalMarker string    `json:"temporal_marker"`
		SourceSentence string    `json:"source_sentence"`
		Confidence     flexFloat `json:"confidence"`
	} `json:"numerical"`
	Temporal []struct {
		Event      string    `json:"event"`
		Date       string    `json:"date"`
		Precision  string    `json:"precision"`
		Context    string    `json:"context"`
		Confidence flexFloat `json:"confidence"`
	} `json:"temporal"`
	Entities []struct {
		Name       string    `json:"name"`
		Type       string    `json:"type"`
		Role       string    `json:"role"`
		Context    string    `json:"context"`
		Confidence flexFloat `json:"confidence"`
	} `json:"entities"`
	Relationships []struct {
		Entity1    string    `json:"entity1"`
		Relation   string    `json:"relation"`
		Entity2    string    `json:"entity2"`
		Context    string    `json:"context"`
		Confidence flexFloat `json:"confidence"`
	} `json:"relationships"`
}

// Extract never fails: LLM or parse errors yield empty fact lists with zero
// confidence.
func (e *StructuredExtractor) Extract(ctx context.Context, content, sourceURL, topicContext string) StructuredData {
	out := StructuredData{SourceURL: sourceURL, ExtractionTimestamp: time.Now().UTC()}
	if e == nil || e.llm == nil || strings.TrimSpace(content) == "" {
		return out
	}
	sample := clipRunes(content, extractionContentLimit)
	resp, err := e.llm.Generate(ctx, []llm.Message{llm.User(extractionPrompt(sample, topicContext))}, extractionMaxTokens, extractionTemperature)
	if err != nil {
		e.logger.Printf("structured extraction for %s failed: %v", sourceURL, err)
		return out
	}
	var raw rawFacts
	if err := helpers.DecodeJSONObject(resp, &raw); err != nil {
		e.logger.Printf("structured extraction for %s unparseable: %v", sourceURL, err)
		return out
	}

	var sum float64
	var n int
	add := func(c flexFloat) float64 {
		v := clamp01(float64(c))
		sum += v
		n++
		return v
	}
	for _, f := range raw.Numerical {
		out.Numerical = append(out.Numerical, NumericalFact{
			Metric: f.Metric, Value: float64(f.Value), Unit: f.Unit, Context: f.Context,
			TemporalMarker: f.TemporalMarker, SourceSentence: f.SourceSentence, Confidence: add(f.Confidence),
		})
	}
	for _, f := range raw.Temporal {
		out.Temporal = append(out.Temporal, TemporalFact{
			Event: f.Event, Date: f.Date, Precision: f.Precision, Context: f.Context, Confidence: add(f.Confidence),
		})
	}
	for _, f := range raw.Entities {
		out.Entities = append(out.Entities, EntityFact{
			Name: f.Name, Type: f.Type, Role: f.Role, Context: f.Context, Confidence: add(f.Confidence),
		})
	}
	for _, f := range raw.Relationships {
		out.Relationships = append(out.Relationships, RelationshipFact{
			Entity1: f.Entity1, Relation: f.Relation, Entity2: f.Entity2, Context: f.Context, Confidence: add(f.Confidence),
		})
	}
	if n > 0 {
		out.OverallConfidence = sum / float64(n)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SourcedFact ties a numerical fact to the source it came from.
type SourcedFact struct {
	NumericalFact
	Source string
}

// FindCommonMetrics groups numerical facts by case-folded metric name and
// keeps only metrics reported at least twice.
func FindCommonMetrics(data []StructuredData) map[string][]SourcedFact {
	groups := make(map[string][]SourcedFact)
	for _, sd := range data {
		for _, f := range sd.Numerical {
			key := strings.ToLower(strings.TrimSpace(f.Metric))
			if key == "" {
				continue
			}
			groups[key] = append(groups[key], SourcedFact{NumericalFact: f, Source: sd.SourceURL})
		}
	}
	for k, v := range groups {
		if len(v) < 2 {
			delete(groups, k)
		}
	}
	return groups
}

// ValidateCoherence checks whether the values of one metric agree. Values are
// coherent when the coefficient of variation is below 10%; a zero mean is
// never coherent.
func ValidateCoherence(metric string, facts []SourcedFact) MetricValidation {
	v := MetricValidation{Metric: metric}
	if len(facts) == 0 {
		return v
	}
	for _, f := range facts {
		v.Values = append(v.Values, f.Value)
		v.Sources = append(v.Sources, f.Source)
	}
	var sum float64
	for _, x := range v.Values {
		sum += x
	}
	v.Mean = sum / float64(len(v.Values))
	var sq float64
	for _, x := range v.Values {
		sq += (x - v.Mean) * (x - v.Mean)
	}
	v.StdDev = math.Sqrt(sq / float64(len(v.Values)))
	if v.Mean != 0 {
		v.Coherent = v.StdDev/math.Abs(v.Mean) < coherenceCVThreshold
	}
	if v.Coherent {
		mean := v.Mean
		v.RecommendedValue = &mean
	}
	return v
}

// ValidateMetrics runs ValidateCoherence over every common metric, sorted by
// metric name.
func ValidateMetrics(data []StructuredData) []MetricValidation {
	groups := FindCommonMetrics(data)
	names := make([]string, 0, len(groups))
	for k := range groups {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]MetricValidation, 0, len(names))
	for _, name := range names {
		out = append(out, ValidateCoherence(name, groups[name]))
	}
	return out
}

// KeyData converts confident numerical facts of items into data points.
func KeyData(items []ExtractedItem) []DataPoint {
	var out []DataPoint
	for _, it := range items {
		if it.Structured == nil {
			continue
		}
		for _, f := range it.Structured.Numerical {
			if f.Confidence <= 0 {
				continue
			}
			out = append(out, DataPoint{Metric: f.Metric, Value: f.Value, Unit: f.Unit, Source: it.URL, Context: f.Context})
		}
	}
	return out
}

func extractionPrompt(content, topic string) string {
	if strings.TrimSpace(topic) == "" {
		topic = "generic analysis"
	}
	return fmt.Sprintf(`Analyse the content below and extract every relevant structured fact.

CONTENT:
%s

TOPIC CONTEXT: %s

Identify:
1. NUMERICAL data: amounts, quantities, percentages, ratios, with unit and period when stated.
2. TEMPORAL data: precise dates, years, quarters, dated events.
3. ENTITIES: organisations, people, places, products, with their role.
4. RELATIONSHIPS between entities.

Return a single JSON object:
{
  "numerical": [{"metric": "generic_metric_name", "value": 123.45, "unit": "unit", "context": "source sentence", "temporal_marker": "2024", "confidence": 0.9}],
  "temporal": [{"event": "event description", "date": "2024-01-15", "precision": "day|month|year|quarter", "context": "source sentence", "confidence": 0.9}],
  "entities": [{"name": "Entity", "type": "organization|person|location|product|other", "role": "role in context", "context": "source sentence", "confidence": 0.8}],
  "relationships": [{"entity1": "A", "relation": "relation_type", "entity2": "B", "context": "source sentence", "confidence": 0.7}]
}

Rules:
- Extract every number mentioned together with its context.
- Never invent data that is absent from the content.
- Use confidence above 0.8 for explicit facts and below 0.8 for inferred ones.
- Use generic snake_case names for metric, event and relation.`, content, topic)
}
