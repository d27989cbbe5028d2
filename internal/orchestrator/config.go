package orchestrator

import (
	"slices"

	"github.com/Iron-Ham/dsstar/internal/agent"
	"github.com/Iron-Ham/dsstar/internal/config"
)

// Config holds the iteration loop settings
type Config struct {
	// MaxIterations bounds plan/execute/verify rounds
	MaxIterations int
	// MaxDebugAttempts bounds executor invocations per iteration
	MaxDebugAttempts int
	// AllowedExtensions filters expanded data paths
	AllowedExtensions []string
	// OutputFormat is passed to the answer formatter
	OutputFormat string
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:     20,
		MaxDebugAttempts:  3,
		AllowedExtensions: config.DefaultAllowedExtensions(),
		OutputFormat:      agent.DefaultOutputFormat,
	}
}

// ConfigFrom projects the session and data sections of cfg. An empty
// session.answer_format keeps the default formatter instruction.
func ConfigFrom(cfg *config.Config) Config {
	format := cfg.Session.AnswerFormat
	if format == "" {
		format = agent.DefaultOutputFormat
	}
	return Config{
		MaxIterations:     cfg.Session.MaxIterations,
		MaxDebugAttempts:  cfg.Session.MaxDebugAttempts,
		AllowedExtensions: slices.Clone(cfg.Data.AllowedExtensions),
		OutputFormat:      format,
	}
}
