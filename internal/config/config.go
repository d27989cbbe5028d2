package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete dsstar configuration
type Config struct {
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Data     DataConfig     `mapstructure:"data" yaml:"data"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer" yaml:"analyzer"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// SessionConfig controls the iteration loop
type SessionConfig struct {
	// MaxIterations bounds the number of plan/execute/verify rounds (default: 20)
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// MaxDebugAttempts bounds executor invocations per iteration (default: 3)
	MaxDebugAttempts int `mapstructure:"max_debug_attempts" yaml:"max_debug_attempts"`
	// AnalysisConcurrency caps in-flight file analyses (default: 5)
	AnalysisConcurrency int `mapstructure:"analysis_concurrency" yaml:"analysis_concurrency"`
	// OutputFormat is the default `dsstar run` output: "text", "json" or "yaml" (default: "" = text)
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	// AnswerFormat is the instruction given to the answer formatter
	// (default: "" = return the answer as-is)
	AnswerFormat string `mapstructure:"answer_format" yaml:"answer_format"`
}

// ExecutorConfig controls the sandboxed program runner
type ExecutorConfig struct {
	// TimeoutSeconds is the wall-clock limit for one program; fractions are allowed (default: 60)
	TimeoutSeconds float64 `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// MaxOutputLength caps stdout and stderr independently, in characters (default: 10000)
	MaxOutputLength int `mapstructure:"max_output_length" yaml:"max_output_length"`
	// WorkingDirectory is the child process working directory.
	// If empty, the current directory is used.
	WorkingDirectory string `mapstructure:"working_directory" yaml:"working_directory"`
	// Interpreter is the program used to run generated code.
	// If empty, python3 and then python are looked up on PATH.
	Interpreter string `mapstructure:"interpreter" yaml:"interpreter"`
	// BlockedPatterns are substrings that reject a program before it is spawned
	BlockedPatterns []string `mapstructure:"blocked_patterns" yaml:"blocked_patterns"`
	// SyntaxCheck parses programs before spawning them (default: true)
	SyntaxCheck bool `mapstructure:"syntax_check" yaml:"syntax_check"`
}

// DataConfig controls input path expansion
type DataConfig struct {
	// AllowedExtensions are the lowercase file extensions accepted as data files
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
}

// AnalyzerConfig controls the preview sent with each file analysis request
type AnalyzerConfig struct {
	// PreviewLines limits text previews to this many lines (default: 50)
	PreviewLines int `mapstructure:"preview_lines" yaml:"preview_lines"`
	// PreviewBytes limits every preview to roughly this many bytes (default: 5000)
	PreviewBytes int `mapstructure:"preview_bytes" yaml:"preview_bytes"`
}

// LLMConfig controls the reasoning service client
type LLMConfig struct {
	// BaseURL overrides the OpenAI-compatible endpoint (default: "" = api.openai.com)
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Model is the chat completion model name (default: "gpt-4o-mini")
	Model string `mapstructure:"model" yaml:"model"`
	// APIKey authenticates requests. Falls back to OPENAI_API_KEY when empty.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	// MaxTokens bounds each completion (default: 4096)
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens"`
	// Temperature is the sampling temperature (default: 1.0)
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	// RequestTimeoutSeconds bounds a single completion request (default: 120)
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// ServerConfig controls `dsstar serve`
type ServerConfig struct {
	// Addr is the listen address (default: ":8000")
	Addr string `mapstructure:"addr" yaml:"addr"`
	// UploadDir stores uploaded data files. If empty, a directory under os.TempDir is used.
	UploadDir string `mapstructure:"upload_dir" yaml:"upload_dir"`
	// AllowedOrigins lists websocket origins; empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory for dsstar.log. If empty, logs go to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// DefaultBlockedPatterns returns the substrings rejected by the executor by default.
func DefaultBlockedPatterns() []string {
	return []string{
		"subprocess",
		"os.system",
		"shutil.rmtree",
		"socket",
		"requests",
		"urllib",
		"http.client",
	}
}

// DefaultAllowedExtensions returns the data file extensions accepted by default.
func DefaultAllowedExtensions() []string {
	return []string{".csv", ".json", ".xlsx", ".xls", ".parquet", ".md", ".txt", ".xml", ".yaml", ".yml"}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			MaxIterations:       20,
			MaxDebugAttempts:    3,
			AnalysisConcurrency: 5,
			OutputFormat:        "",
		},
		Executor: ExecutorConfig{
			TimeoutSeconds:   60,
			MaxOutputLength:  10000,
			WorkingDirectory: "",
			Interpreter:      "",
			BlockedPatterns:  DefaultBlockedPatterns(),
			SyntaxCheck:      true,
		},
		Data: DataConfig{
			AllowedExtensions: DefaultAllowedExtensions(),
		},
		Analyzer: AnalyzerConfig{
			PreviewLines: 50,
			PreviewBytes: 5000,
		},
		LLM: LLMConfig{
			Model:                 "gpt-4o-mini",
			MaxTokens:             4096,
			Temperature:           1.0,
			RequestTimeoutSeconds: 120,
		},
		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ExecutionTimeout returns the executor timeout as a time.Duration
func (c *ExecutorConfig) ExecutionTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// RequestTimeout returns the per-request timeout as a time.Duration (0 means none)
func (c *LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ResolveAPIKey returns the configured API key, falling back to OPENAI_API_KEY.
func (c *LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

// ResolveUploadDir returns the upload directory, defaulting to a dsstar
// directory under os.TempDir.
func (c *ServerConfig) ResolveUploadDir() string {
	if c.UploadDir == "" {
		return filepath.Join(os.TempDir(), "dsstar_uploads")
	}
	return expandHome(c.UploadDir)
}

// OriginAllowed reports whether a websocket Origin header is acceptable.
func (c *ServerConfig) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	return slices.Contains(c.AllowedOrigins, origin)
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Session defaults
	viper.SetDefault("session.max_iterations", defaults.Session.MaxIterations)
	viper.SetDefault("session.max_debug_attempts", defaults.Session.MaxDebugAttempts)
	viper.SetDefault("session.analysis_concurrency", defaults.Session.AnalysisConcurrency)
	viper.SetDefault("session.output_format", defaults.Session.OutputFormat)
	viper.SetDefault("session.answer_format", defaults.Session.AnswerFormat)

	// Executor defaults
	viper.SetDefault("executor.timeout_seconds", defaults.Executor.TimeoutSeconds)
	viper.SetDefault("executor.max_output_length", defaults.Executor.MaxOutputLength)
	viper.SetDefault("executor.working_directory", defaults.Executor.WorkingDirectory)
	viper.SetDefault("executor.interpreter", defaults.Executor.Interpreter)
	viper.SetDefault("executor.blocked_patterns", defaults.Executor.BlockedPatterns)
	viper.SetDefault("executor.syntax_check", defaults.Executor.SyntaxCheck)

	// Data defaults
	viper.SetDefault("data.allowed_extensions", defaults.Data.AllowedExtensions)

	// Analyzer defaults
	viper.SetDefault("analyzer.preview_lines", defaults.Analyzer.PreviewLines)
	viper.SetDefault("analyzer.preview_bytes", defaults.Analyzer.PreviewBytes)

	// LLM defaults
	viper.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	viper.SetDefault("llm.model", defaults.LLM.Model)
	viper.SetDefault("llm.api_key", defaults.LLM.APIKey)
	viper.SetDefault("llm.max_tokens", defaults.LLM.MaxTokens)
	viper.SetDefault("llm.temperature", defaults.LLM.Temperature)
	viper.SetDefault("llm.request_timeout_seconds", defaults.LLM.RequestTimeoutSeconds)

	// Server defaults
	viper.SetDefault("server.addr", defaults.Server.Addr)
	viper.SetDefault("server.upload_dir", defaults.Server.UploadDir)
	viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dsstar")
	}
	// Fall back to ~/.config/dsstar
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dsstar"
	}
	return filepath.Join(home, ".config", "dsstar")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidOutputFormats returns the list of valid `dsstar run` output formats
func ValidOutputFormats() []string {
	return []string{"text", "json", "yaml"}
}

// IsValidOutputFormat checks if the given format is valid. Empty means text.
func IsValidOutputFormat(format string) bool {
	return format == "" || slices.Contains(ValidOutputFormats(), format)
}
