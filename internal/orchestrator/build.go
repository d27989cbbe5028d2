package orchestrator

import (
	"github.com/Iron-Ham/dsstar/internal/agent"
	"github.com/Iron-Ham/dsstar/internal/analyzer"
	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/executor"
	"github.com/Iron-Ham/dsstar/internal/llm"
	"github.com/Iron-Ham/dsstar/internal/logging"
)

// FromConfig assembles a session backed by the OpenAI-compatible provider
// and the local executor described by cfg. logger may be nil. opts are
// applied after the config-derived options.
func FromConfig(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Session, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	provider, err := llm.NewOpenAIProvider(llm.OpenAIConfigFrom(cfg), llm.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	suite := agent.NewSuite(provider, logger)
	exec := executor.New(executor.ConfigFrom(cfg), executor.WithLogger(logger.WithPhase("executor")))

	all := append([]Option{
		WithLogger(logger),
		WithAnalyzerConfig(analyzer.ConfigFrom(cfg)),
	}, opts...)
	return New(FromSuite(suite), exec, ConfigFrom(cfg), all...), nil
}
