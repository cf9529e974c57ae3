package budget

import (
	"fmt"
	"time"
)

// Config defines guardrails for one research run. Nil fields are unlimited.
type Config struct {
	MaxTokens      *int64
	MaxTimeSeconds *int64
	// MaxSteps caps external tool calls (search, extraction).
	MaxSteps *int
}

// Validate ensures the budget values are sane before use.
func (c Config) Validate() error {
	if c.MaxTokens != nil && *c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative")
	}
	if c.MaxTimeSeconds != nil && *c.MaxTimeSeconds < 0 {
		return fmt.Errorf("max_time_seconds cannot be negative")
	}
	if c.MaxSteps != nil && *c.MaxSteps < 0 {
		return fmt.Errorf("max_steps cannot be negative")
	}
	return nil
}

// Clone produces a deep copy of the config.
func (c Config) Clone() Config {
	var clone Config
	if c.MaxTokens != nil {
		v := *c.MaxTokens
		clone.MaxTokens = &v
	}
	if c.MaxTimeSeconds != nil {
		v := *c.MaxTimeSeconds
		clone.MaxTimeSeconds = &v
	}
	if c.MaxSteps != nil {
		v := *c.MaxSteps
		clone.MaxSteps = &v
	}
	return clone
}

// Merge overlays non-nil values from override onto base. Request limits are
// merged over the service defaults this way.
func Merge(base Config, override Config) Config {
	result := base.Clone()
	if override.MaxTokens != nil {
		v := *override.MaxTokens
		result.MaxTokens = &v
	}
	if override.MaxTimeSeconds != nil {
		v := *override.MaxTimeSeconds
		result.MaxTimeSeconds = &v
	}
	if override.MaxSteps != nil {
		v := *override.MaxSteps
		result.MaxSteps = &v
	}
	return result
}

// Timeout returns the wall clock limit, or 0 when unlimited.
func (c Config) Timeout() time.Duration {
	if c.MaxTimeSeconds == nil || *c.MaxTimeSeconds <= 0 {
		return 0
	}
	return time.Duration(*c.MaxTimeSeconds) * time.Second
}
