package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/Iron-Ham/dsstar/internal/llm"
)

// ScriptedProvider is an llm.Provider that answers each agent from a fixed
// script. Replies for an agent are returned in order and the last one is
// repeated once the script runs out.
type ScriptedProvider struct {
	mu       sync.Mutex
	replies  map[string][]string
	failures map[string]error
	calls    map[string]int
	requests []llm.Request
}

// NewScriptedProvider creates an empty script.
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{
		replies:  make(map[string][]string),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// On appends replies for agent.
func (p *ScriptedProvider) On(agent string, replies ...string) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies[agent] = append(p.replies[agent], replies...)
	return p
}

// Fail makes every request from agent fail with err.
func (p *ScriptedProvider) Fail(agent string, err error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[agent] = err
	return p
}

// Complete implements llm.Provider.
func (p *ScriptedProvider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	n := p.calls[req.Agent]
	p.calls[req.Agent] = n + 1

	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	if err, ok := p.failures[req.Agent]; ok {
		return llm.Response{}, err
	}

	script := p.replies[req.Agent]
	if len(script) == 0 {
		return llm.Response{}, fmt.Errorf("no scripted reply for agent %q", req.Agent)
	}
	return llm.Response{Content: script[min(n, len(script)-1)], Model: "scripted"}, nil
}

// Calls returns how many requests agent has made.
func (p *ScriptedProvider) Calls(agent string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[agent]
}

// Requests returns every request received, in order.
func (p *ScriptedProvider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}
