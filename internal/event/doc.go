// Package event provides a synchronous pub-sub bus for session lifecycle
// events.
//
// The orchestrator publishes; the metrics collector and the CLI progress
// renderer subscribe. The server shares one bus across all of its sessions.
// Handlers run on the publishing goroutine and a panicking handler is
// recovered and logged.
//
// # Event Types
//
//   - [SessionStartedEvent]: paths expanded, loop about to start
//   - [FilesAnalyzedEvent]: analysis fan-out settled
//   - [StepAddedEvent]: planner step appended
//   - [ExecutionFinishedEvent]: debug-retry settled
//   - [VerificationCompletedEvent]: verdict received
//   - [PlanBacktrackedEvent]: suffix of the plan discarded
//   - [IterationCompletedEvent]: iteration finished
//   - [SessionCompletedEvent]: session ended (verified, exhausted, failed or cancelled)
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeStepAdded, func(e event.Event) {
//	    step := e.(event.StepAddedEvent)
//	    fmt.Println(step.Index, step.Description)
//	})
package event
