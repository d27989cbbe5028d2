package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier.
	EventType() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event types published by a session, in the order they occur.
const (
	TypeSessionStarted        = "session.started"
	TypeFilesAnalyzed         = "files.analyzed"
	TypeStepAdded             = "step.added"
	TypeExecutionFinished     = "execution.finished"
	TypeVerificationCompleted = "verification.completed"
	TypePlanBacktracked       = "plan.backtracked"
	TypeIterationCompleted    = "iteration.completed"
	TypeSessionCompleted      = "session.completed"
)

// Session outcomes reported by SessionCompletedEvent.
const (
	OutcomeVerified  = "verified"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
	sessionID string
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// SessionID returns the session that published the event.
func (e baseEvent) SessionID() string { return e.sessionID }

func newBaseEvent(eventType, sessionID string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now(), sessionID: sessionID}
}

// SessionStartedEvent is emitted once data paths have been expanded.
type SessionStartedEvent struct {
	baseEvent
	Query     string
	DataFiles int
}

// NewSessionStartedEvent creates a SessionStartedEvent.
func NewSessionStartedEvent(sessionID, query string, dataFiles int) SessionStartedEvent {
	return SessionStartedEvent{
		baseEvent: newBaseEvent(TypeSessionStarted, sessionID),
		Query:     query,
		DataFiles: dataFiles,
	}
}

// FilesAnalyzedEvent is emitted after the analysis fan-out settles.
type FilesAnalyzedEvent struct {
	baseEvent
	Requested int
	Described int
}

// NewFilesAnalyzedEvent creates a FilesAnalyzedEvent.
func NewFilesAnalyzedEvent(sessionID string, requested, described int) FilesAnalyzedEvent {
	return FilesAnalyzedEvent{
		baseEvent: newBaseEvent(TypeFilesAnalyzed, sessionID),
		Requested: requested,
		Described: described,
	}
}

// StepAddedEvent is emitted when the planner's step is appended.
type StepAddedEvent struct {
	baseEvent
	Iteration   int
	Index       int
	Description string
}

// NewStepAddedEvent creates a StepAddedEvent.
func NewStepAddedEvent(sessionID string, iteration, index int, description string) StepAddedEvent {
	return StepAddedEvent{
		baseEvent:   newBaseEvent(TypeStepAdded, sessionID),
		Iteration:   iteration,
		Index:       index,
		Description: description,
	}
}

// ExecutionFinishedEvent is emitted when the debug-retry loop settles.
type ExecutionFinishedEvent struct {
	baseEvent
	Iteration int
	Success   bool
	Attempts  int
	Duration  time.Duration // of the settled attempt
}

// NewExecutionFinishedEvent creates an ExecutionFinishedEvent.
func NewExecutionFinishedEvent(sessionID string, iteration int, success bool, attempts int, duration time.Duration) ExecutionFinishedEvent {
	return ExecutionFinishedEvent{
		baseEvent: newBaseEvent(TypeExecutionFinished, sessionID),
		Iteration: iteration,
		Success:   success,
		Attempts:  attempts,
		Duration:  duration,
	}
}

// VerificationCompletedEvent is emitted with every verdict.
type VerificationCompletedEvent struct {
	baseEvent
	Iteration  int
	Sufficient bool
	Reasoning  string
}

// NewVerificationCompletedEvent creates a VerificationCompletedEvent.
func NewVerificationCompletedEvent(sessionID string, iteration int, sufficient bool, reasoning string) VerificationCompletedEvent {
	return VerificationCompletedEvent{
		baseEvent:  newBaseEvent(TypeVerificationCompleted, sessionID),
		Iteration:  iteration,
		Sufficient: sufficient,
		Reasoning:  reasoning,
	}
}

// PlanBacktrackedEvent is emitted when a BACKTRACK route is applied.
type PlanBacktrackedEvent struct {
	baseEvent
	Iteration int
	Target    int
	Discarded int
}

// NewPlanBacktrackedEvent creates a PlanBacktrackedEvent.
func NewPlanBacktrackedEvent(sessionID string, iteration, target, discarded int) PlanBacktrackedEvent {
	return PlanBacktrackedEvent{
		baseEvent: newBaseEvent(TypePlanBacktracked, sessionID),
		Iteration: iteration,
		Target:    target,
		Discarded: discarded,
	}
}

// IterationCompletedEvent is emitted at the end of every iteration.
type IterationCompletedEvent struct {
	baseEvent
	Iteration int
}

// NewIterationCompletedEvent creates an IterationCompletedEvent.
func NewIterationCompletedEvent(sessionID string, iteration int) IterationCompletedEvent {
	return IterationCompletedEvent{
		baseEvent: newBaseEvent(TypeIterationCompleted, sessionID),
		Iteration: iteration,
	}
}

// SessionCompletedEvent is emitted exactly once per session.
type SessionCompletedEvent struct {
	baseEvent
	Outcome    string
	Iterations int
	Duration   time.Duration
}

// NewSessionCompletedEvent creates a SessionCompletedEvent.
func NewSessionCompletedEvent(sessionID, outcome string, iterations int, duration time.Duration) SessionCompletedEvent {
	return SessionCompletedEvent{
		baseEvent:  newBaseEvent(TypeSessionCompleted, sessionID),
		Outcome:    outcome,
		Iterations: iterations,
		Duration:   duration,
	}
}
