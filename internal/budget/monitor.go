package budget

import (
	"fmt"
	"sync"
	"time"
)

// Monitor tracks actual usage against configured limits during a run. It is
// shared by the LLM client (tokens) and the orchestrator (steps, time).
type Monitor struct {
	config     Config
	tokensUsed int64
	stepsUsed  int
	startTime  time.Time
	mu         sync.Mutex
}

// NewMonitor clones the provided config and starts tracking usage.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{
		config:    cfg.Clone(),
		startTime: time.Now(),
	}
}

// AddTokens records LLM token usage, returning an error once the limit is breached.
func (m *Monitor) AddTokens(tokens int64) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokensUsed += tokens
	if m.config.MaxTokens != nil && *m.config.MaxTokens > 0 && m.tokensUsed > *m.config.MaxTokens {
		return ErrExceeded{
			Kind:  "tokens",
			Usage: fmt.Sprintf("%d tokens", m.tokensUsed),
			Limit: fmt.Sprintf("%d tokens", *m.config.MaxTokens),
		}
	}
	return nil
}

// CheckTokens reports ErrExceeded once the token limit has been reached, so
// callers can refuse further LLM calls.
func (m *Monitor) CheckTokens() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.MaxTokens != nil && *m.config.MaxTokens > 0 && m.tokensUsed >= *m.config.MaxTokens {
		return ErrExceeded{
			Kind:  "tokens",
			Usage: fmt.Sprintf("%d tokens", m.tokensUsed),
			Limit: fmt.Sprintf("%d tokens", *m.config.MaxTokens),
		}
	}
	return nil
}

// TakeStep reserves one external tool call. It returns ErrExceeded without
// reserving when the step cap is reached.
func (m *Monitor) TakeStep() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.MaxSteps != nil && *m.config.MaxSteps > 0 && m.stepsUsed >= *m.config.MaxSteps {
		return ErrExceeded{
			Kind:  "steps",
			Usage: fmt.Sprintf("%d steps", m.stepsUsed),
			Limit: fmt.Sprintf("%d steps", *m.config.MaxSteps),
		}
	}
	m.stepsUsed++
	return nil
}

// CheckTime verifies elapsed time against the configured limit.
func (m *Monitor) CheckTime() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := m.config.Timeout()
	if limit == 0 {
		return nil
	}
	elapsed := time.Since(m.startTime)
	if elapsed > limit {
		return ErrExceeded{
			Kind:  "time",
			Usage: elapsed.String(),
			Limit: limit.String(),
		}
	}
	return nil
}

// Usage returns the accumulated metrics.
func (m *Monitor) Usage() (tokens int64, steps int, elapsed time.Duration) {
	if m == nil {
		return 0, 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokensUsed, m.stepsUsed, time.Since(m.startTime)
}

// Config returns a clone of the underlying budget config.
func (m *Monitor) Config() Config {
	if m == nil {
		return Config{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.Clone()
}
