package llm

import (
	"context"
	"errors"

	"github.com/mohammad-safakhou/deepresearch/internal/budget"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces a completion for a conversation. Implementations fail on
// transport errors, non-2xx responses and empty upstream payloads.
type Generator interface {
	Generate(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	return f(ctx, messages, maxTokens, temperature)
}

// Metered is implemented by generators that can report token usage to a
// per-run budget monitor.
type Metered interface {
	WithMonitor(m *budget.Monitor) Generator
}

// ErrMissingAPIKey is returned when a provider is configured without credentials.
var ErrMissingAPIKey = errors.New("llm api key is not configured")

// ErrEmptyResponse is returned when the provider answered without any choice.
var ErrEmptyResponse = errors.New("llm returned no choices")

// System builds a system message.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: "user", Content: content} }
