package agent

import (
	"context"
	"strings"

	"github.com/Iron-Ham/dsstar/internal/analyzer"
	"github.com/Iron-Ham/dsstar/internal/llm"
	"github.com/Iron-Ham/dsstar/internal/logging"
	"github.com/Iron-Ham/dsstar/internal/plan"
	"github.com/Iron-Ham/dsstar/internal/reply"
	"github.com/Iron-Ham/dsstar/internal/session"
)

// Planner proposes the next plan step
type Planner struct {
	role *Role[*session.State, string]
}

// NextStep returns the description of the step to append.
func (p *Planner) NextStep(ctx context.Context, s *session.State) (string, error) {
	return p.role.Run(ctx, s)
}

// Coder writes a program for the whole active plan
type Coder struct {
	role *Role[*session.State, string]
}

// GenerateCode returns the program text.
func (c *Coder) GenerateCode(ctx context.Context, s *session.State) (string, error) {
	return c.role.Run(ctx, s)
}

// Verifier judges whether the latest execution answers the query
type Verifier struct {
	role *Role[*session.State, session.Verification]
}

// Verify returns the verdict and its reasoning.
func (v *Verifier) Verify(ctx context.Context, s *session.State) (session.Verification, error) {
	return v.role.Run(ctx, s)
}

// Router chooses between extending and backtracking the plan
type Router struct {
	role *Role[*session.State, plan.Route]
}

// Route returns the routing decision.
func (r *Router) Route(ctx context.Context, s *session.State) (plan.Route, error) {
	return r.role.Run(ctx, s)
}

// RepairInput is what the debugger sees of a failed program
type RepairInput struct {
	Code      string
	Traceback string
	Files     string
}

// Debugger repairs failing programs
type Debugger struct {
	role *Role[RepairInput, string]
}

// Repair returns a corrected version of code.
func (d *Debugger) Repair(ctx context.Context, code, traceback, files string) (string, error) {
	return d.role.Run(ctx, RepairInput{Code: code, Traceback: traceback, Files: files})
}

// FileAnalyzer describes data files
type FileAnalyzer struct {
	role *Role[analyzer.Request, session.FileDescription]
}

// Describe implements analyzer.Describer.
func (a *FileAnalyzer) Describe(ctx context.Context, req analyzer.Request) (session.FileDescription, error) {
	return a.role.Run(ctx, req)
}

// FinalizeInput is what the finalizer sees of a finished session
type FinalizeInput struct {
	Query        string
	Execution    string
	OutputFormat string
}

// Finalizer formats the answer when it cannot be read off program output
type Finalizer struct {
	role *Role[FinalizeInput, string]
}

// Finalize returns the formatted answer. An empty format uses
// DefaultOutputFormat.
func (f *Finalizer) Finalize(ctx context.Context, s *session.State, outputFormat string) (string, error) {
	if strings.TrimSpace(outputFormat) == "" {
		outputFormat = DefaultOutputFormat
	}
	return f.role.Run(ctx, FinalizeInput{
		Query:        s.Query,
		Execution:    s.ExecutionSummary(),
		OutputFormat: outputFormat,
	})
}

// Suite holds one of every capability, all backed by the same provider
type Suite struct {
	Planner   *Planner
	Coder     *Coder
	Verifier  *Verifier
	Router    *Router
	Debugger  *Debugger
	Analyzer  *FileAnalyzer
	Finalizer *Finalizer
}

// NewSuite builds every capability on top of provider.
func NewSuite(provider llm.Provider, logger *logging.Logger) *Suite {
	return &Suite{
		Planner: &Planner{NewRole[*session.State](RolePlanner, plannerSystem, plannerUser,
			reply.Step, provider, logger)},
		Coder: &Coder{NewRole[*session.State](RoleCoder, coderSystem, coderUser,
			reply.Code, provider, logger)},
		Verifier: &Verifier{NewRole[*session.State](RoleVerifier, verifierSystem, verifierUser,
			reply.Verdict, provider, logger)},
		Router: &Router{NewRole[*session.State](RoleRouter, routerSystem, routerUser,
			reply.Route, provider, logger)},
		Debugger: &Debugger{NewRole[RepairInput](RoleDebugger, debuggerSystem, debuggerUser,
			reply.RepairCode, provider, logger)},
		Analyzer: &FileAnalyzer{NewRole[analyzer.Request](RoleAnalyzer, analyzerSystem, analyzerUser,
			reply.FileDescription, provider, logger)},
		Finalizer: &Finalizer{NewRole[FinalizeInput](RoleFinalizer, finalizerSystem, finalizerUser,
			reply.Answer, provider, logger)},
	}
}
