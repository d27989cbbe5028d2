// Package agent implements the capabilities the orchestrator drives. Every
// capability has the same shape: render a prompt, call the reasoning service,
// parse the reply. Role captures that shape once; each capability supplies
// only its prompt templates and its reply parser.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/Iron-Ham/dsstar/internal/errors"
	"github.com/Iron-Ham/dsstar/internal/llm"
	"github.com/Iron-Ham/dsstar/internal/logging"
)

// Role is one capability: prompt templates over In and a parser producing Out.
type Role[In, Out any] struct {
	name     string
	system   *template.Template
	user     *template.Template
	parse    func(string) Out
	provider llm.Provider
	logger   *logging.Logger
}

// NewRole creates a role. The templates are parsed immediately and a
// malformed template panics, so roles are built from package constants.
func NewRole[In, Out any](name, system, user string, parse func(string) Out, provider llm.Provider, logger *logging.Logger) *Role[In, Out] {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Role[In, Out]{
		name:     name,
		system:   template.Must(template.New(name + "-system").Parse(system)),
		user:     template.Must(template.New(name + "-user").Parse(user)),
		parse:    parse,
		provider: provider,
		logger:   logger.WithRole(name),
	}
}

// Name returns the role name sent as llm.Request.Agent.
func (r *Role[In, Out]) Name() string {
	return r.name
}

// Prompt renders the conversation for in.
func (r *Role[In, Out]) Prompt(in In) ([]llm.Message, error) {
	system, err := render(r.system, in)
	if err != nil {
		return nil, err
	}
	user, err := render(r.user, in)
	if err != nil {
		return nil, err
	}
	return llm.Conversation(system, user), nil
}

// Run renders the prompt, completes it and parses the reply. Failures are
// wrapped in a CapabilityError naming the role.
func (r *Role[In, Out]) Run(ctx context.Context, in In) (Out, error) {
	var zero Out

	messages, err := r.Prompt(in)
	if err != nil {
		return zero, errors.NewCapabilityError(r.name, "prompt", err)
	}

	resp, err := r.provider.Complete(ctx, llm.Request{Agent: r.name, Messages: messages})
	if err != nil {
		return zero, errors.NewCapabilityError(r.name, "complete", err)
	}

	r.logger.Debug("reply received", "model", resp.Model, "reply_len", len(resp.Content))
	return r.parse(resp.Content), nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
