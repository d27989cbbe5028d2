// Package plan holds the ordered list of analysis steps built up during a
// session.
//
// A Plan is an arena: steps are appended with a positional index and are
// never reordered or removed. Backtracking marks a suffix of the plan as
// BACKTRACKED instead of deleting it, so "step N" keeps referring to the same
// step for the lifetime of the session. Every view that feeds code generation
// or prompt text filters out backtracked steps.
//
// Plan is not safe for concurrent mutation; it is owned by the orchestrator.
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/dsstar/internal/errors"
)

// Status is the lifecycle status of a step
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusBacktracked Status = "BACKTRACKED"
)

// IsActive reports whether a step with this status is still part of the plan.
func (s Status) IsActive() bool {
	return s != StatusBacktracked
}

// ErrStepBacktracked is returned when changing the status of a backtracked step.
var ErrStepBacktracked = errors.New("step has been backtracked")

// Step is one discrete unit of analysis work
type Step struct {
	Index       int       `json:"index"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Plan is the append-only sequence of steps for a session
type Plan struct {
	steps []Step
	now   func() time.Time
}

// New creates an empty plan.
func New() *Plan {
	return &Plan{now: time.Now}
}

// Append adds a PENDING step at index Len() and returns a copy of it.
func (p *Plan) Append(description string) Step {
	step := Step{
		Index:       len(p.steps),
		Description: description,
		Status:      StatusPending,
		CreatedAt:   p.now(),
	}
	p.steps = append(p.steps, step)
	return step
}

// Len returns the number of steps ever appended, including backtracked ones.
func (p *Plan) Len() int {
	return len(p.steps)
}

// Step returns the step at index.
func (p *Plan) Step(index int) (Step, bool) {
	if index < 0 || index >= len(p.steps) {
		return Step{}, false
	}
	return p.steps[index], true
}

// Latest returns the most recently appended step.
func (p *Plan) Latest() (Step, bool) {
	return p.Step(len(p.steps) - 1)
}

// Steps returns a copy of every step in append order.
func (p *Plan) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Active returns the steps that have not been backtracked, in index order.
func (p *Plan) Active() []Step {
	var out []Step
	for _, s := range p.steps {
		if s.Status.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// ActiveIndices returns the indices of the active steps.
func (p *Plan) ActiveIndices() []int {
	var out []int
	for _, s := range p.steps {
		if s.Status.IsActive() {
			out = append(out, s.Index)
		}
	}
	return out
}

// SetStatus changes the status of the step at index. Backtracked steps are
// frozen; a new step must be appended instead.
func (p *Plan) SetStatus(index int, status Status) error {
	if index < 0 || index >= len(p.steps) {
		return fmt.Errorf("step %d out of range [0, %d)", index, len(p.steps))
	}
	if p.steps[index].Status == StatusBacktracked && status != StatusBacktracked {
		return fmt.Errorf("step %d: %w", index, ErrStepBacktracked)
	}
	p.steps[index].Status = status
	return nil
}

// Backtrack marks every step with index >= to as BACKTRACKED. The target is
// clamped to [0, Len()]. It returns the clamped target and the number of
// steps that changed status.
func (p *Plan) Backtrack(to int) (target int, changed int) {
	target = max(0, min(to, len(p.steps)))
	for i := target; i < len(p.steps); i++ {
		if p.steps[i].Status != StatusBacktracked {
			p.steps[i].Status = StatusBacktracked
			changed++
		}
	}
	return target, changed
}

// Text renders the active steps as "i. description [STATUS]" lines.
func (p *Plan) Text() string {
	active := p.Active()
	if len(active) == 0 {
		return "No steps yet."
	}
	var sb strings.Builder
	for i, s := range active {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d. %s [%s]", s.Index, s.Description, s.Status)
	}
	return sb.String()
}

// Clone returns an independent copy of the plan.
func (p *Plan) Clone() *Plan {
	return &Plan{steps: p.Steps(), now: p.now}
}
