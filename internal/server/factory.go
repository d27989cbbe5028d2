package server

import (
	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/event"
	"github.com/Iron-Ham/dsstar/internal/logging"
	"github.com/Iron-Ham/dsstar/internal/orchestrator"
)

// Overrides are the per-query settings a client may send with start.
// Unset fields keep the server configuration.
type Overrides struct {
	MaxIterations           *int     `json:"max_iterations,omitempty"`
	MaxDebugAttempts        *int     `json:"max_debug_attempts,omitempty"`
	ExecutionTimeoutSeconds *float64 `json:"execution_timeout_seconds,omitempty"`
	Temperature             *float32 `json:"temperature,omitempty"`
	MaxTokens               *int     `json:"max_tokens,omitempty"`
	AnswerFormat            *string  `json:"answer_format,omitempty"`
}

// Apply returns a copy of base with the overrides applied. Values that would
// fail validation are ignored.
func (o Overrides) Apply(base *config.Config) *config.Config {
	cfg := *base
	if o.MaxIterations != nil && *o.MaxIterations > 0 {
		cfg.Session.MaxIterations = *o.MaxIterations
	}
	if o.MaxDebugAttempts != nil && *o.MaxDebugAttempts > 0 {
		cfg.Session.MaxDebugAttempts = *o.MaxDebugAttempts
	}
	if o.ExecutionTimeoutSeconds != nil && *o.ExecutionTimeoutSeconds > 0 {
		cfg.Executor.TimeoutSeconds = *o.ExecutionTimeoutSeconds
	}
	if o.Temperature != nil && *o.Temperature >= 0 && *o.Temperature <= 2 {
		cfg.LLM.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil && *o.MaxTokens > 0 {
		cfg.LLM.MaxTokens = *o.MaxTokens
	}
	if o.AnswerFormat != nil && *o.AnswerFormat != "" {
		cfg.Session.AnswerFormat = *o.AnswerFormat
	}
	return &cfg
}

// NewSessionFactory builds sessions from base plus each request's overrides.
// Every session publishes on bus, which may be nil.
func NewSessionFactory(base *config.Config, bus *event.Bus, logger *logging.Logger) SessionFactory {
	return func(sessionID string, o Overrides) (Runner, error) {
		return orchestrator.FromConfig(o.Apply(base), logger,
			orchestrator.WithEventBus(bus),
			orchestrator.WithSessionID(sessionID),
		)
	}
}
