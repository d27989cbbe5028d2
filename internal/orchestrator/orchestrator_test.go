package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/dsstar/internal/agent"
	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/errors"
	"github.com/Iron-Ham/dsstar/internal/event"
	"github.com/Iron-Ham/dsstar/internal/logging"
	"github.com/Iron-Ham/dsstar/internal/plan"
	"github.com/Iron-Ham/dsstar/internal/session"
	"github.com/Iron-Ham/dsstar/internal/testutil"
)

const pythonReply = "```python\nimport pandas as pd\nprint(3)\n```"

// fakeExecutor returns canned results in order, repeating the last one.
type fakeExecutor struct {
	mu      sync.Mutex
	results []session.ExecutionResult
	codes   []string
}

func (f *fakeExecutor) Execute(ctx context.Context, block *session.CodeBlock) session.ExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.codes)
	f.codes = append(f.codes, block.Code)
	return f.results[min(n, len(f.results)-1)]
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.codes)
}

func success(stdout string) session.ExecutionResult {
	return session.ExecutionResult{Success: true, Stdout: stdout, ExecutionTime: 5 * time.Millisecond}
}

func failed(traceback string) session.ExecutionResult {
	return session.ExecutionResult{Success: false, Stderr: traceback, ErrorTraceback: traceback}
}

// scriptedSession builds a session whose capabilities all answer from p.
func scriptedSession(t *testing.T, p *testutil.ScriptedProvider, exec *fakeExecutor, cfg Config, opts ...Option) *Session {
	t.Helper()
	p.On(agent.RoleAnalyzer, `{"file_type": "csv", "description": "numbers"}`)
	suite := agent.NewSuite(p, logging.NopLogger())
	return New(FromSuite(suite), exec, cfg, opts...)
}

func dataFiles(t *testing.T) []string {
	t.Helper()
	_, paths := testutil.SetupDataDir(t, map[string]string{"data.csv": "a,b\n1,2\n3,4\n"})
	return paths
}

func TestRunWithState_VerifiedOnFirstIteration(t *testing.T) {
	p := testutil.NewScriptedProvider().
		On(agent.RolePlanner, "count rows").
		On(agent.RoleCoder, pythonReply).
		On(agent.RoleVerifier, "SUFFICIENT: the row count is printed")
	exec := &fakeExecutor{results: []session.ExecutionResult{success("3\n")}}

	var steps int
	s := scriptedSession(t, p, exec, DefaultConfig())
	state, err := s.RunWithState(context.Background(), "count rows", dataFiles(t), func(*session.State) { steps++ })
	if err != nil {
		t.Fatalf("RunWithState() error = %v", err)
	}

	if !state.IsComplete {
		t.Error("IsComplete = false, want true")
	}
	if state.Iteration != 0 {
		t.Errorf("Iteration = %d, want 0", state.Iteration)
	}
	if state.Plan.Len() != 1 || len(state.ExecutionResults) != 1 {
		t.Errorf("plan len = %d, results = %d, want 1 and 1", state.Plan.Len(), len(state.ExecutionResults))
	}
	if step, _ := state.Plan.Step(0); step.Status != plan.StatusCompleted {
		t.Errorf("step 0 status = %s, want COMPLETED", step.Status)
	}
	if state.FinalAnswer != "3" {
		t.Errorf("FinalAnswer = %q, want %q", state.FinalAnswer, "3")
	}
	if got := p.Calls(agent.RoleFinalizer); got != 0 {
		t.Errorf("finalizer calls = %d, want 0 when output holds the answer", got)
	}
	if got := p.Calls(agent.RoleRouter); got != 0 {
		t.Errorf("router calls = %d, want 0 after a sufficient verdict", got)
	}
	if steps != 0 {
		t.Errorf("onStep called %d times, want 0", steps)
	}
	if len(state.FileDescriptions) != 1 || state.FileDescriptions[0].FileType != "csv" {
		t.Errorf("FileDescriptions = %+v", state.FileDescriptions)
	}
	if !strings.Contains(state.CurrentCode.Code, "print(3)") {
		t.Errorf("CurrentCode = %q", state.CurrentCode.Code)
	}
}

func TestRunWithState_ExhaustsIterations(t *testing.T) {
	p := testutil.NewScriptedProvider().
		On(agent.RolePlanner, "step a", "step b", "step c").
		On(agent.RoleCoder, pythonReply).
		On(agent.RoleVerifier, "INSUFFICIENT").
		On(agent.RoleRouter, "ADD_STEP\nneed more").
		On(agent.RoleFinalizer, "Answer: 42")
	exec := &fakeExecutor{results: []session.ExecutionResult{success("")}}

	cfg := DefaultConfig()
	cfg.MaxIterations = 3

	var snapshots []*session.State
	s := scriptedSession(t, p, exec, cfg)
	state, err := s.RunWithState(context.Background(), "q", dataFiles(t), func(st *session.State) {
		snapshots = append(snapshots, st)
	})
	if err != nil {
		t.Fatalf("RunWithState() error = %v", err)
	}

	if state.IsComplete {
		t.Error("IsComplete = true, want false")
	}
	if state.Iteration != 2 {
		t.Errorf("Iteration = %d, want 2", state.Iteration)
	}
	if got := len(state.ExecutionResults); got != 3 {
		t.Errorf("len(ExecutionResults) = %d, want 3", got)
	}
	if got := state.Plan.Len(); got != 3 {
		t.Errorf("plan len = %d, want 3", got)
	}
	if state.FinalAnswer != "42" {
		t.Errorf("FinalAnswer = %q, want %q", state.FinalAnswer, "42")
	}
	if len(snapshots) != 3 {
		t.Fatalf("onStep called %d times, want 3", len(snapshots))
	}
	for i, snap := range snapshots {
		if snap.Iteration != i || snap.Plan.Len() != i+1 {
			t.Errorf("snapshot %d: iteration = %d, plan len = %d", i, snap.Iteration, snap.Plan.Len())
		}
	}
	snapshots[0].Plan.Append("mutated")
	if state.Plan.Len() != 3 {
		t.Error("onStep snapshot shares the plan with the session")
	}
}

func TestRunWithState_Backtrack(t *testing.T) {
	p := testutil.NewScriptedProvider().
		On(agent.RolePlanner, "wrong step", "right step").
		On(agent.RoleCoder, pythonReply).
		On(agent.RoleVerifier, "INSUFFICIENT", "SUFFICIENT").
		On(agent.RoleRouter, "BACKTRACK: 0\nstep 0 used the wrong column")
	exec := &fakeExecutor{results: []session.ExecutionResult{success("0\n"), success("3\n")}}

	bus := event.NewBus()
	var backtracks []event.PlanBacktrackedEvent
	bus.Subscribe(event.TypePlanBacktracked, func(e event.Event) {
		backtracks = append(backtracks, e.(event.PlanBacktrackedEvent))
	})

	s := scriptedSession(t, p, exec, DefaultConfig(), WithEventBus(bus))
	state, err := s.RunWithState(context.Background(), "q", dataFiles(t), nil)
	if err != nil {
		t.Fatalf("RunWithState() error = %v", err)
	}

	steps := state.Plan.Steps()
	if len(steps) != 2 {
		t.Fatalf("plan len = %d, want 2", len(steps))
	}
	if steps[0].Status != plan.StatusBacktracked {
		t.Errorf("step 0 status = %s, want BACKTRACKED", steps[0].Status)
	}
	if steps[1].Status != plan.StatusCompleted || steps[1].Index != 1 {
		t.Errorf("step 1 = %+v", steps[1])
	}
	if !slices.Equal(state.CurrentCode.StepIndices, []int{1}) {
		t.Errorf("StepIndices = %v, want [1]", state.CurrentCode.StepIndices)
	}
	if len(backtracks) != 1 || backtracks[0].Target != 0 || backtracks[0].Discarded != 1 {
		t.Errorf("backtrack events = %+v", backtracks)
	}
	if len(state.ExecutionResults) != 2 {
		t.Errorf("backtracking must not drop execution results, got %d", len(state.ExecutionResults))
	}
}

func TestRunWithState_DebugRetry(t *testing.T) {
	p := testutil.NewScriptedProvider().
		On(agent.RolePlanner, "count rows").
		On(agent.RoleCoder, "```python\nprint(undefined)\n```").
		On(agent.RoleDebugger, "```python\nprint(3)\n```").
		On(agent.RoleVerifier, "SUFFICIENT")
	exec := &fakeExecutor{results: []session.ExecutionResult{failed("NameError: undefined"), success("3\n")}}

	s := scriptedSession(t, p, exec, DefaultConfig())
	state, err := s.RunWithState(context.Background(), "q", dataFiles(t), nil)
	if err != nil {
		t.Fatalf("RunWithState() error = %v", err)
	}

	if got := exec.calls(); got != 2 {
		t.Errorf("executor calls = %d, want 2", got)
	}
	if got := p.Calls(agent.RoleDebugger); got != 1 {
		t.Errorf("debugger calls = %d, want 1", got)
	}
	if len(state.ExecutionResults) != 1 || !state.ExecutionResults[0].Success {
		t.Errorf("ExecutionResults = %+v, want one success", state.ExecutionResults)
	}
	if state.CurrentCode.Code != "print(3)" {
		t.Errorf("CurrentCode = %q, want repaired program", state.CurrentCode.Code)
	}
}

func TestRunWithState_FailedExecutionMarksStepFailed(t *testing.T) {
	p := testutil.NewScriptedProvider().
		On(agent.RolePlanner, "load").
		On(agent.RoleCoder, pythonReply).
		On(agent.RoleDebugger, pythonReply).
		On(agent.RoleVerifier, "INSUFFICIENT").
		On(agent.RoleRouter, "ADD_STEP").
		On(agent.RoleFinalizer, "could not compute")
	exec := &fakeExecutor{results: []session.ExecutionResult{failed("boom")}}

	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	cfg.MaxDebugAttempts = 2

	s := scriptedSession(t, p, exec, cfg)
	state, err := s.RunWithState(context.Background(), "q", dataFiles(t), nil)
	if err != nil {
		t.Fatalf("RunWithState() error = %v", err)
	}
	if got := exec.calls(); got != 2 {
		t.Errorf("executor calls = %d, want 2", got)
	}
	if step, _ := state.Plan.Step(0); step.Status != plan.StatusFailed {
		t.Errorf("step status = %s, want FAILED", step.Status)
	}
	if state.FinalAnswer != "could not compute" {
		t.Errorf("FinalAnswer = %q", state.FinalAnswer)
	}
}

func TestRunWithState_CapabilityFailure(t *testing.T) {
	p := testutil.NewScriptedProvider().
		Fail(agent.RolePlanner, fmt.Errorf("rate limited"))
	exec := &fakeExecutor{results: []session.ExecutionResult{success("3")}}

	bus := event.NewBus()
	var outcome string
	bus.Subscribe(event.TypeSessionCompleted, func(e event.Event) {
		outcome = e.(event.SessionCompletedEvent).Outcome
	})

	s := scriptedSession(t, p, exec, DefaultConfig(), WithEventBus(bus))
	state, err := s.RunWithState(context.Background(), "q", dataFiles(t), nil)
	if err == nil {
		t.Fatal("RunWithState() should fail when the planner fails")
	}
	if !errors.IsCapabilityFailure(err) {
		t.Errorf("error %v should be a capability failure", err)
	}
	if state == nil || len(state.FileDescriptions) != 1 {
		t.Errorf("state should hold the analysis done before the failure, got %+v", state)
	}
	if exec.calls() != 0 {
		t.Error("executor should not run after a planning failure")
	}
	if outcome != event.OutcomeFailed {
		t.Errorf("outcome = %q, want %q", outcome, event.OutcomeFailed)
	}
}

func TestRunWithState_Cancelled(t *testing.T) {
	p := testutil.NewScriptedProvider().
		On(agent.RolePlanner, "step").
		On(agent.RoleCoder, pythonReply).
		On(agent.RoleVerifier, "INSUFFICIENT").
		On(agent.RoleRouter, "ADD_STEP")
	exec := &fakeExecutor{results: []session.ExecutionResult{success("")}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := scriptedSession(t, p, exec, DefaultConfig())
	state, err := s.RunWithState(ctx, "q", dataFiles(t), func(*session.State) { cancel() })
	if !errors.Is(err, errors.ErrSessionCancelled) {
		t.Fatalf("error = %v, want ErrSessionCancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v should wrap context.Canceled", err)
	}
	if got := len(state.ExecutionResults); got != 1 {
		t.Errorf("len(ExecutionResults) = %d, want 1", got)
	}
	if got := p.Calls(agent.RolePlanner); got != 1 {
		t.Errorf("planner calls = %d, want 1", got)
	}
	if state.FinalAnswer != "" {
		t.Errorf("cancelled session should not finalize, got %q", state.FinalAnswer)
	}
}

func TestRunWithState_RejectsArguments(t *testing.T) {
	s := New(Capabilities{}, &fakeExecutor{}, DefaultConfig())

	tests := []struct {
		name  string
		query string
		paths []string
		want  error
	}{
		{"empty query", "  ", []string{"a.csv"}, errors.ErrEmptyQuery},
		{"no paths", "q", nil, errors.ErrNoDataFiles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := s.RunWithState(context.Background(), tt.query, tt.paths, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if state != nil {
				t.Error("state should be nil for rejected arguments")
			}
		})
	}
}

func TestRunWithState_NoMatchingFiles(t *testing.T) {
	p := testutil.NewScriptedProvider().
		On(agent.RolePlanner, "step").
		On(agent.RoleCoder, pythonReply).
		On(agent.RoleVerifier, "SUFFICIENT")
	exec := &fakeExecutor{results: []session.ExecutionResult{success("done\n")}}

	s := scriptedSession(t, p, exec, DefaultConfig())
	state, err := s.RunWithState(context.Background(), "q", []string{"/does/not/exist.csv"}, nil)
	if err != nil {
		t.Fatalf("RunWithState() error = %v", err)
	}
	if len(state.DataFiles) != 0 || len(state.FileDescriptions) != 0 {
		t.Errorf("DataFiles = %v, FileDescriptions = %v", state.DataFiles, state.FileDescriptions)
	}
	if p.Calls(agent.RoleAnalyzer) != 0 {
		t.Error("analyzer should not be called without files")
	}
	if state.FinalAnswer != "done" {
		t.Errorf("FinalAnswer = %q", state.FinalAnswer)
	}
}

func TestRunWithState_EventOrder(t *testing.T) {
	p := testutil.NewScriptedProvider().
		On(agent.RolePlanner, "a", "b").
		On(agent.RoleCoder, pythonReply).
		On(agent.RoleVerifier, "INSUFFICIENT", "SUFFICIENT").
		On(agent.RoleRouter, "ADD_STEP")
	exec := &fakeExecutor{results: []session.ExecutionResult{success("1\n")}}

	bus := event.NewBus()
	var types []string
	bus.SubscribeAll(func(e event.Event) { types = append(types, e.EventType()) })

	s := scriptedSession(t, p, exec, DefaultConfig(), WithEventBus(bus), WithSessionID("fixed"))
	if _, err := s.RunWithState(context.Background(), "q", dataFiles(t), nil); err != nil {
		t.Fatalf("RunWithState() error = %v", err)
	}

	want := []string{
		event.TypeSessionStarted,
		event.TypeFilesAnalyzed,
		event.TypeStepAdded,
		event.TypeExecutionFinished,
		event.TypeVerificationCompleted,
		event.TypeIterationCompleted,
		event.TypeStepAdded,
		event.TypeExecutionFinished,
		event.TypeVerificationCompleted,
		event.TypeIterationCompleted,
		event.TypeSessionCompleted,
	}
	if !slices.Equal(types, want) {
		t.Errorf("events =\n%v\nwant\n%v", types, want)
	}
	if s.ID() != "fixed" {
		t.Errorf("ID() = %q, want fixed", s.ID())
	}
}

func TestRun_ReturnsAnswer(t *testing.T) {
	p := testutil.NewScriptedProvider().
		On(agent.RolePlanner, "count").
		On(agent.RoleCoder, pythonReply).
		On(agent.RoleVerifier, "SUFFICIENT")
	exec := &fakeExecutor{results: []session.ExecutionResult{
		success("loading\nFINAL RESULT:\n" + strings.Repeat("=", 50) + "\nrows: 2\n\ntrailing\n"),
	}}

	s := scriptedSession(t, p, exec, DefaultConfig())
	answer, err := s.Run(context.Background(), "q", dataFiles(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if answer != "rows: 2" {
		t.Errorf("Run() = %q, want %q", answer, "rows: 2")
	}
}

func TestNew_ClampsBudgets(t *testing.T) {
	s := New(Capabilities{}, &fakeExecutor{}, Config{})
	cfg := s.Config()
	if cfg.MaxIterations != 1 || cfg.MaxDebugAttempts != 1 {
		t.Errorf("Config() = %+v, want budgets clamped to 1", cfg)
	}
	if cfg.OutputFormat != agent.DefaultOutputFormat {
		t.Errorf("OutputFormat = %q", cfg.OutputFormat)
	}
	if s.ID() == "" {
		t.Error("ID() should be generated")
	}
}

func TestFromConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg := config.Default()
	if _, err := FromConfig(cfg, nil); !errors.Is(err, errors.ErrMissingAPIKey) {
		t.Errorf("FromConfig() without a key error = %v, want ErrMissingAPIKey", err)
	}

	cfg.LLM.APIKey = "sk-test"
	cfg.Session.MaxIterations = 4
	s, err := FromConfig(cfg, nil, WithSessionID("abc"))
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if s.ID() != "abc" || s.Config().MaxIterations != 4 {
		t.Errorf("session id = %q, config = %+v", s.ID(), s.Config())
	}
}
