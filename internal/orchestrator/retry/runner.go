// Package retry implements the debug-retry loop of one iteration.
//
// A Runner executes the session's current program and, while attempts
// remain, asks a repair capability to fix each failure. Exhausted attempts
// are not an error: the last failing result is returned as the iteration's
// outcome. The attempt history is kept for logging and events.
package retry

import (
	"context"
	"slices"

	"github.com/Iron-Ham/dsstar/internal/logging"
	"github.com/Iron-Ham/dsstar/internal/session"
)

// NoCodeTraceback is the traceback of the result returned when an iteration
// produced no program.
const NoCodeTraceback = "No code to execute"

// Executor runs one program.
type Executor interface {
	Execute(ctx context.Context, block *session.CodeBlock) session.ExecutionResult
}

// Repairer returns a fixed version of a failing program.
type Repairer interface {
	Repair(ctx context.Context, code, traceback, files string) (string, error)
}

// Attempt records one executor invocation
type Attempt struct {
	Number int                     `json:"number"`
	Code   string                  `json:"code"`
	Result session.ExecutionResult `json:"result"`
}

// Outcome is the settled result of the loop plus its history
type Outcome struct {
	Result   session.ExecutionResult
	Attempts []Attempt
}

// Repaired reports whether the program was replaced at least once.
func (o Outcome) Repaired() bool {
	return len(o.Attempts) > 1
}

// Runner drives execute-then-repair
type Runner struct {
	executor    Executor
	repairer    Repairer
	maxAttempts int
	logger      *logging.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner allowing at most maxAttempts executions per
// Run. Values below 1 are treated as 1.
func NewRunner(executor Executor, repairer Repairer, maxAttempts int, opts ...Option) *Runner {
	r := &Runner{
		executor:    executor,
		repairer:    repairer,
		maxAttempts: max(maxAttempts, 1),
		logger:      logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxAttempts returns the executor invocation budget per Run.
func (r *Runner) MaxAttempts() int {
	return r.maxAttempts
}

// Run executes s.CurrentCode until it succeeds or the budget is spent,
// replacing s.CurrentCode with each repaired program. It returns an error
// only when the repair capability fails or ctx is done.
func (r *Runner) Run(ctx context.Context, s *session.State) (Outcome, error) {
	var out Outcome
	if s.CurrentCode.IsEmpty() {
		out.Result = session.ExecutionResult{Success: false, ErrorTraceback: NoCodeTraceback}
		return out, nil
	}

	for attempt := range r.maxAttempts {
		out.Result = r.executor.Execute(ctx, s.CurrentCode)
		out.Attempts = append(out.Attempts, Attempt{
			Number: attempt + 1,
			Code:   s.CurrentCode.Code,
			Result: out.Result,
		})

		if out.Result.Success {
			r.logger.Debug("execution succeeded", "attempt", attempt+1)
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		r.logger.Info("execution failed", "attempt", attempt+1, "max_attempts", r.maxAttempts)
		if attempt == r.maxAttempts-1 {
			break
		}

		fixed, err := r.repairer.Repair(ctx, s.CurrentCode.Code, traceback(out.Result), s.FileDescriptionsText())
		if err != nil {
			return out, err
		}
		s.CurrentCode = &session.CodeBlock{
			Code:        fixed,
			StepIndices: slices.Clone(s.CurrentCode.StepIndices),
		}
	}

	r.logger.Warn("debug attempts exhausted", "attempts", len(out.Attempts))
	return out, nil
}

// traceback picks the most useful error text from a failed result.
func traceback(r session.ExecutionResult) string {
	if r.ErrorTraceback != "" {
		return r.ErrorTraceback
	}
	return r.Stderr
}
