// Package errors provides centralized error definitions for dsstar.
//
// It defines the sentinel errors returned by sessions, the error types that
// wrap failures of external capabilities and sandboxed executions, and small
// classification helpers used by the CLI and the server to decide how a
// failure is reported.
//
// # Usage
//
//	// Wrap a capability failure
//	err := errors.NewCapabilityError("verifier", "complete", cause)
//
//	// Check for sentinels
//	if errors.Is(err, errors.ErrSessionCancelled) { ... }
//
//	// Check for types
//	var capErr *errors.CapabilityError
//	if errors.As(err, &capErr) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Session sentinel errors
var (
	// ErrEmptyQuery indicates that a session was started without a query.
	ErrEmptyQuery = New("query is required")
	// ErrNoDataFiles indicates that a session was started without any data paths.
	ErrNoDataFiles = New("at least one data file is required")
	// ErrSessionCancelled indicates that the session context was cancelled.
	ErrSessionCancelled = New("session cancelled")
)

// Execution sentinel errors
var (
	// ErrNoCode indicates that there was no program to execute.
	ErrNoCode = New("no code to execute")
	// ErrInterpreterNotFound indicates that no usable interpreter was found.
	ErrInterpreterNotFound = New("interpreter not found")
)

// Reasoning service sentinel errors
var (
	// ErrEmptyReply indicates that the reasoning service returned no choices.
	ErrEmptyReply = New("reasoning service returned no reply")
	// ErrMissingAPIKey indicates that no API key was configured.
	ErrMissingAPIKey = New("API key is not configured")
)

// -----------------------------------------------------------------------------
// Capability Errors
// -----------------------------------------------------------------------------

// CapabilityError wraps the failure of an external capability (planner,
// coder, verifier, router, debugger, analyzer, finalizer). These failures are
// not recovered locally and end the session.
type CapabilityError struct {
	// Role is the capability that failed (e.g., "planner").
	Role string
	// Op is the operation within the role (e.g., "complete", "prompt").
	Op  string
	Err error
}

// NewCapabilityError creates a new CapabilityError.
func NewCapabilityError(role, op string, err error) *CapabilityError {
	return &CapabilityError{Role: role, Op: op, Err: err}
}

func (e *CapabilityError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s failed: %v", e.Role, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Role, e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Execution Errors
// -----------------------------------------------------------------------------

// ExecutionKind classifies why a sandboxed execution did not succeed.
type ExecutionKind string

const (
	// KindValidation is a blocked pattern or syntax error found before spawn.
	KindValidation ExecutionKind = "validation"
	// KindRuntime is a non-zero exit of the child process.
	KindRuntime ExecutionKind = "runtime"
	// KindTimeout is a child killed after exceeding the configured timeout.
	KindTimeout ExecutionKind = "timeout"
	// KindCancelled is a child killed because the caller cancelled.
	KindCancelled ExecutionKind = "cancelled"
	// KindSpawn is a failure to prepare or start the child process.
	KindSpawn ExecutionKind = "spawn"
)

// ExecutionError describes an execution failure. The executor renders it
// into the traceback of a failed result; it is never returned to callers.
type ExecutionError struct {
	Kind   ExecutionKind
	Detail string
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(kind ExecutionKind, format string, args ...any) *ExecutionError {
	return &ExecutionError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *ExecutionError) Error() string {
	switch e.Kind {
	case KindValidation:
		return "Code validation failed: " + e.Detail
	case KindTimeout, KindCancelled, KindRuntime:
		return e.Detail
	default:
		return "Execution error: " + e.Detail
	}
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsCancelled reports whether err is the result of a cancelled session or
// context.
func IsCancelled(err error) bool {
	return Is(err, ErrSessionCancelled) || Is(err, context.Canceled)
}

// IsCapabilityFailure reports whether err wraps a CapabilityError.
func IsCapabilityFailure(err error) bool {
	var capErr *CapabilityError
	return As(err, &capErr)
}

// UserMessage returns a short message suitable for display to a user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var capErr *CapabilityError
	if As(err, &capErr) {
		return fmt.Sprintf("%s failed: %v", capErr.Role, capErr.Err)
	}
	return err.Error()
}
