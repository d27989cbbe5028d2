package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/errors"
	"github.com/Iron-Ham/dsstar/internal/logging"
)

// chatClient is the subset of *openai.Client used by OpenAIProvider
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures an OpenAI-compatible provider
type OpenAIConfig struct {
	BaseURL        string
	Model          string
	APIKey         string
	MaxTokens      int
	Temperature    float32
	RequestTimeout time.Duration
}

// OpenAIConfigFrom projects the llm section of cfg, resolving the API key
// from the environment when it is not configured.
func OpenAIConfigFrom(cfg *config.Config) OpenAIConfig {
	return OpenAIConfig{
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		APIKey:         cfg.LLM.ResolveAPIKey(),
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
		RequestTimeout: cfg.LLM.RequestTimeout(),
	}
}

// OpenAIProvider completes conversations through the chat completions API.
type OpenAIProvider struct {
	client chatClient
	cfg    OpenAIConfig
	logger *logging.Logger
}

// OpenAIOption configures an OpenAIProvider
type OpenAIOption func(*OpenAIProvider)

// WithLogger sets the provider logger.
func WithLogger(logger *logging.Logger) OpenAIOption {
	return func(p *OpenAIProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewOpenAIProvider creates a provider. An API key is required unless a
// custom BaseURL points at a server that does not need one.
func NewOpenAIProvider(cfg OpenAIConfig, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.ErrMissingAPIKey
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	p := &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Model returns the configured model name.
func (p *OpenAIProvider) Model() string {
	return p.cfg.Model
}

// Complete sends req as a chat completion and returns the first choice.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Temperature: p.cfg.Temperature,
	}
	if p.cfg.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = p.cfg.MaxTokens
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    chatRole(m.Role),
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		p.logger.Error("chat completion failed", "agent", req.Agent, "model", p.cfg.Model, "error", err)
		return Response{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.ErrEmptyReply
	}

	p.logger.Debug("chat completion received",
		"agent", req.Agent,
		"model", resp.Model,
		"finish_reason", string(resp.Choices[0].FinishReason),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func chatRole(role string) string {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
