// Package llm is the boundary to the reasoning service: a Provider turns a
// conversation into reply text. The rest of dsstar treats it as opaque.
package llm

import "context"

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation
type Message struct {
	Role    string
	Content string
}

// Request is a single completion request
type Request struct {
	// Agent names the capability issuing the request ("planner", "coder", ...).
	// Providers may use it for logging; it is never sent to the service.
	Agent    string
	Messages []Message
}

// Usage reports token accounting when the service provides it
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is the reply to a Request
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Provider completes conversations.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

// Complete calls f(ctx, req).
func (f ProviderFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Conversation builds the system + user message pair every role sends.
func Conversation(system, user string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}
