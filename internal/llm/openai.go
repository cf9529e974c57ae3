package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/deepresearch/internal/budget"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures an OpenAI compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAI implements Generator against /chat/completions.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	http    *HTTPClient
	monitor *budget.Monitor
	logger  *log.Logger
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAI validates cfg and builds a client.
func NewOpenAI(cfg OpenAIConfig, logger *log.Logger) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[LLM] ", log.LstdFlags)
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		baseURL: base,
		model:   cfg.Model,
		http:    NewHTTPClient(cfg.Timeout, cfg.MaxRetries, 0),
		logger:  logger,
	}, nil
}

// WithMonitor returns a copy of the client that reports token usage to m.
func (c *OpenAI) WithMonitor(m *budget.Monitor) Generator {
	clone := *c
	clone.monitor = m
	return &clone
}

func (c *OpenAI) Generate(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	ctx, span := otel.Tracer("deepresearch/internal/llm").Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.max_tokens", maxTokens),
		attribute.Float64("llm.temperature", temperature),
	))
	defer span.End()

	if err := c.monitor.CheckTokens(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	req := chatRequest{Model: c.model, Messages: messages, MaxTokens: maxTokens, Temperature: temperature}
	if err := c.http.DoJSON(ctx, "POST", c.baseURL+"/chat/completions", headers, req, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("chat completion: %w", err)
	}
	span.SetAttributes(attribute.Int64("llm.total_tokens", resp.Usage.TotalTokens))
	if err := c.monitor.AddTokens(resp.Usage.TotalTokens); err != nil {
		c.logger.Printf("token budget: %v", err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
