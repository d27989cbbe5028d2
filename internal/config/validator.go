package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "executor.timeout_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateExecutor()...)
	errors = append(errors, c.validateData()...)
	errors = append(errors, c.validateAnalyzer()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.MaxIterations < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.max_iterations",
			Value:   c.Session.MaxIterations,
			Message: "must be at least 1",
		})
	}

	if c.Session.MaxDebugAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.max_debug_attempts",
			Value:   c.Session.MaxDebugAttempts,
			Message: "must be at least 1",
		})
	}

	if c.Session.AnalysisConcurrency < 1 || c.Session.AnalysisConcurrency > 64 {
		errors = append(errors, ValidationError{
			Field:   "session.analysis_concurrency",
			Value:   c.Session.AnalysisConcurrency,
			Message: "must be between 1 and 64",
		})
	}

	if !IsValidOutputFormat(c.Session.OutputFormat) {
		errors = append(errors, ValidationError{
			Field:   "session.output_format",
			Value:   c.Session.OutputFormat,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidOutputFormats(), ", ")),
		})
	}

	return errors
}

// validateExecutor validates the ExecutorConfig
func (c *Config) validateExecutor() []ValidationError {
	var errors []ValidationError

	if c.Executor.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "executor.timeout_seconds",
			Value:   c.Executor.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Executor.MaxOutputLength < 1 {
		errors = append(errors, ValidationError{
			Field:   "executor.max_output_length",
			Value:   c.Executor.MaxOutputLength,
			Message: "must be positive",
		})
	}

	for i, pattern := range c.Executor.BlockedPatterns {
		if strings.TrimSpace(pattern) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("executor.blocked_patterns[%d]", i),
				Value:   pattern,
				Message: "pattern cannot be empty",
			})
		}
	}

	return errors
}

// validateData validates the DataConfig
func (c *Config) validateData() []ValidationError {
	var errors []ValidationError

	if len(c.Data.AllowedExtensions) == 0 {
		errors = append(errors, ValidationError{
			Field:   "data.allowed_extensions",
			Value:   c.Data.AllowedExtensions,
			Message: "at least one extension is required",
		})
	}

	seen := make(map[string]bool)
	for i, ext := range c.Data.AllowedExtensions {
		field := fmt.Sprintf("data.allowed_extensions[%d]", i)
		switch {
		case !strings.HasPrefix(ext, ".") || len(ext) < 2:
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   ext,
				Message: "must start with '.' followed by at least one character",
			})
		case ext != strings.ToLower(ext):
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   ext,
				Message: "must be lowercase",
			})
		case seen[ext]:
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   ext,
				Message: "duplicate extension",
			})
		}
		seen[ext] = true
	}

	return errors
}

// validateAnalyzer validates the AnalyzerConfig
func (c *Config) validateAnalyzer() []ValidationError {
	var errors []ValidationError

	if c.Analyzer.PreviewLines < 1 {
		errors = append(errors, ValidationError{
			Field:   "analyzer.preview_lines",
			Value:   c.Analyzer.PreviewLines,
			Message: "must be at least 1",
		})
	}

	if c.Analyzer.PreviewBytes < 1 {
		errors = append(errors, ValidationError{
			Field:   "analyzer.preview_bytes",
			Value:   c.Analyzer.PreviewBytes,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateLLM validates the LLMConfig. A missing API key is not an error
// here: it is reported when a provider is constructed.
func (c *Config) validateLLM() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.LLM.Model) == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Value:   c.LLM.Model,
			Message: "model is required",
		})
	}

	if c.LLM.BaseURL != "" {
		u, err := url.Parse(c.LLM.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Value:   c.LLM.BaseURL,
				Message: "must be an absolute URL",
			})
		}
	}

	if c.LLM.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Value:   c.LLM.MaxTokens,
			Message: "must be positive",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Value:   c.LLM.Temperature,
			Message: "must be between 0 and 2",
		})
	}

	if c.LLM.RequestTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.request_timeout_seconds",
			Value:   c.LLM.RequestTimeoutSeconds,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}

	return errors
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Server.Addr) == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Value:   c.Server.Addr,
			Message: "listen address is required",
		})
	}

	for i, origin := range c.Server.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("server.allowed_origins[%d]", i),
				Value:   origin,
				Message: "must be an origin such as https://example.com",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
