// Package orchestrator runs DS-STAR sessions.
//
// A Session expands the data paths, describes every data file, then iterates:
// plan the next step, generate a program for the whole active plan, execute it
// with debug retries, verify the output and, when it is not yet sufficient,
// route to either a new step or a backtrack. The loop ends on a sufficient
// verdict or when the iteration budget runs out; both paths finalize an
// answer.
//
// The session state is owned by the running loop. Progress callbacks receive
// a clone taken after each routed iteration.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/dsstar/internal/agent"
	"github.com/Iron-Ham/dsstar/internal/analyzer"
	"github.com/Iron-Ham/dsstar/internal/errors"
	"github.com/Iron-Ham/dsstar/internal/event"
	"github.com/Iron-Ham/dsstar/internal/logging"
	"github.com/Iron-Ham/dsstar/internal/orchestrator/retry"
	"github.com/Iron-Ham/dsstar/internal/plan"
	"github.com/Iron-Ham/dsstar/internal/reply"
	"github.com/Iron-Ham/dsstar/internal/session"
)

// Planner proposes the next step of the plan.
type Planner interface {
	NextStep(ctx context.Context, s *session.State) (string, error)
}

// Coder writes a program implementing every active step.
type Coder interface {
	GenerateCode(ctx context.Context, s *session.State) (string, error)
}

// Verifier judges whether the latest execution answers the query.
type Verifier interface {
	Verify(ctx context.Context, s *session.State) (session.Verification, error)
}

// Router chooses between extending and backtracking the plan.
type Router interface {
	Route(ctx context.Context, s *session.State) (plan.Route, error)
}

// Finalizer formats an answer when none can be read from the output.
type Finalizer interface {
	Finalize(ctx context.Context, s *session.State, outputFormat string) (string, error)
}

// Capabilities are the external reasoning capabilities a session drives
type Capabilities struct {
	Analyzer  analyzer.Describer
	Planner   Planner
	Coder     Coder
	Debugger  retry.Repairer
	Verifier  Verifier
	Router    Router
	Finalizer Finalizer
}

// FromSuite adapts an agent suite.
func FromSuite(s *agent.Suite) Capabilities {
	return Capabilities{
		Analyzer:  s.Analyzer,
		Planner:   s.Planner,
		Coder:     s.Coder,
		Debugger:  s.Debugger,
		Verifier:  s.Verifier,
		Router:    s.Router,
		Finalizer: s.Finalizer,
	}
}

// StepFunc observes the session state after a routed iteration. It runs
// synchronously on the loop, so a slow observer slows the session.
type StepFunc func(s *session.State)

// Session runs the iteration loop
type Session struct {
	id          string
	caps        Capabilities
	executor    retry.Executor
	cfg         Config
	analyzerCfg analyzer.Config
	logger      *logging.Logger
	bus         *event.Bus
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventBus publishes session lifecycle events on bus.
func WithEventBus(bus *event.Bus) Option {
	return func(s *Session) {
		s.bus = bus
	}
}

// WithAnalyzerConfig sets the file analysis fan-out and preview limits.
func WithAnalyzerConfig(cfg analyzer.Config) Option {
	return func(s *Session) {
		s.analyzerCfg = cfg
	}
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// New creates a Session.
func New(caps Capabilities, executor retry.Executor, cfg Config, opts ...Option) *Session {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	if cfg.MaxDebugAttempts < 1 {
		cfg.MaxDebugAttempts = 1
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = agent.DefaultOutputFormat
	}

	s := &Session{
		id:          uuid.NewString(),
		caps:        caps,
		executor:    executor,
		cfg:         cfg,
		analyzerCfg: analyzer.DefaultConfig(),
		logger:      logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithSession(s.id)
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Config returns the loop configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Run runs a session and returns its final answer.
func (s *Session) Run(ctx context.Context, query string, dataPaths []string) (string, error) {
	state, err := s.RunWithState(ctx, query, dataPaths, nil)
	if err != nil {
		return "", err
	}
	return state.FinalAnswer, nil
}

// RunWithState runs a session and returns its complete state. onStep may be
// nil. On error the returned state holds whatever was recorded before the
// failure; it is nil only when the arguments were rejected.
func (s *Session) RunWithState(ctx context.Context, query string, dataPaths []string, onStep StepFunc) (*session.State, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.ErrEmptyQuery
	}
	if len(dataPaths) == 0 {
		return nil, errors.ErrNoDataFiles
	}

	start := time.Now()
	files, missing := ExpandPaths(dataPaths, s.cfg.AllowedExtensions)
	for _, p := range missing {
		s.logger.Warn("data path not found", "path", p)
	}

	state := session.NewState(query, files)
	s.logger.Info("session started", "query", query, "data_files", len(files))
	s.bus.Publish(event.NewSessionStartedEvent(s.id, query, len(files)))

	err := s.run(ctx, state, onStep)

	outcome := event.OutcomeExhausted
	switch {
	case err != nil && errors.IsCancelled(err):
		outcome = event.OutcomeCancelled
	case err != nil:
		outcome = event.OutcomeFailed
	case state.IsComplete:
		outcome = event.OutcomeVerified
	}
	elapsed := time.Since(start)
	s.bus.Publish(event.NewSessionCompletedEvent(s.id, outcome, len(state.ExecutionResults), elapsed))

	if err != nil {
		s.logger.Error("session failed", "outcome", outcome, "error", err)
		return state, err
	}
	s.logger.Info("session completed",
		"outcome", outcome,
		"iterations", len(state.ExecutionResults),
		"duration_ms", elapsed.Milliseconds(),
	)
	return state, nil
}

func (s *Session) run(ctx context.Context, state *session.State, onStep StepFunc) error {
	if err := s.analyze(ctx, state); err != nil {
		return err
	}
	if err := s.iterate(ctx, state, onStep); err != nil {
		return err
	}
	return s.finalize(ctx, state)
}

func (s *Session) analyze(ctx context.Context, state *session.State) error {
	if err := cancelled(ctx); err != nil {
		return err
	}
	log := s.logger.WithPhase("analyze")
	a := analyzer.New(s.caps.Analyzer, s.analyzerCfg, analyzer.WithLogger(log))
	state.FileDescriptions = a.AnalyzeAll(ctx, state.DataFiles)

	log.Info("files analyzed", "requested", len(state.DataFiles), "described", len(state.FileDescriptions))
	s.bus.Publish(event.NewFilesAnalyzedEvent(s.id, len(state.DataFiles), len(state.FileDescriptions)))
	return cancelled(ctx)
}

func (s *Session) iterate(ctx context.Context, state *session.State, onStep StepFunc) error {
	runner := retry.NewRunner(s.executor, s.caps.Debugger, s.cfg.MaxDebugAttempts,
		retry.WithLogger(s.logger.WithPhase("execute")))

	for i := range s.cfg.MaxIterations {
		state.Iteration = i
		log := s.logger.With("iteration", i)

		if err := cancelled(ctx); err != nil {
			return err
		}
		desc, err := s.caps.Planner.NextStep(ctx, state)
		if err != nil {
			return failure(ctx, err)
		}
		step := state.Plan.Append(desc)
		log.Info("step added", "index", step.Index, "description", step.Description)
		s.bus.Publish(event.NewStepAddedEvent(s.id, i, step.Index, step.Description))

		if err := cancelled(ctx); err != nil {
			return err
		}
		code, err := s.caps.Coder.GenerateCode(ctx, state)
		if err != nil {
			return failure(ctx, err)
		}
		state.CurrentCode = &session.CodeBlock{Code: code, StepIndices: state.Plan.ActiveIndices()}

		outcome, err := runner.Run(ctx, state)
		if err != nil {
			return failure(ctx, err)
		}
		result := outcome.Result
		state.ExecutionResults = append(state.ExecutionResults, result)

		// Only the newest step is attributed, even though the program covers
		// the whole active plan.
		status := plan.StatusFailed
		if result.Success {
			status = plan.StatusCompleted
		}
		if err := state.Plan.SetStatus(step.Index, status); err != nil {
			return err
		}
		log.Info("execution settled", "success", result.Success, "attempts", len(outcome.Attempts))
		s.bus.Publish(event.NewExecutionFinishedEvent(s.id, i, result.Success, len(outcome.Attempts), result.ExecutionTime))

		if err := cancelled(ctx); err != nil {
			return err
		}
		verdict, err := s.caps.Verifier.Verify(ctx, state)
		if err != nil {
			return failure(ctx, err)
		}
		s.bus.Publish(event.NewVerificationCompletedEvent(s.id, i, verdict.Sufficient(), verdict.Reasoning))
		if verdict.Sufficient() {
			state.IsComplete = true
			log.Info("verification sufficient")
			s.bus.Publish(event.NewIterationCompletedEvent(s.id, i))
			return nil
		}

		if err := cancelled(ctx); err != nil {
			return err
		}
		route, err := s.caps.Router.Route(ctx, state)
		if err != nil {
			return failure(ctx, err)
		}
		tr := state.Plan.Apply(route)
		log.Info("routed", "decision", string(tr.Decision), "target", tr.Target, "discarded", tr.Discarded)
		if tr.Decision == plan.DecisionBacktrack {
			s.bus.Publish(event.NewPlanBacktrackedEvent(s.id, i, tr.Target, tr.Discarded))
		}
		s.bus.Publish(event.NewIterationCompletedEvent(s.id, i))

		if onStep != nil {
			onStep(state.Clone())
		}
	}

	s.logger.Warn("iteration budget exhausted", "max_iterations", s.cfg.MaxIterations)
	return nil
}

// finalize reads the answer from the last program output, falling back to
// the answer formatter when the output has nothing usable.
func (s *Session) finalize(ctx context.Context, state *session.State) error {
	if err := cancelled(ctx); err != nil {
		return err
	}
	log := s.logger.WithPhase("finalize")

	if last := state.LastResult(); last != nil {
		if answer, ok := reply.FinalResult(last.Stdout); ok {
			state.FinalAnswer = answer
			log.Debug("answer extracted from output")
			return nil
		}
	}

	answer, err := s.caps.Finalizer.Finalize(ctx, state, s.cfg.OutputFormat)
	if err != nil {
		return failure(ctx, err)
	}
	state.FinalAnswer = answer
	log.Debug("answer formatted by finalizer")
	return nil
}

// cancelled returns a session cancellation error once ctx is done.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrSessionCancelled, err)
	}
	return nil
}

// failure reports a capability error as a cancellation when ctx ended first.
func failure(ctx context.Context, err error) error {
	if cerr := cancelled(ctx); cerr != nil {
		return cerr
	}
	return err
}
