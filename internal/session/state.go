package session

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/Iron-Ham/dsstar/internal/plan"
)

// State is the record of one run. It is owned by the orchestrator; progress
// observers receive a Clone.
type State struct {
	Query            string
	DataFiles        []string
	FileDescriptions []FileDescription
	Plan             *plan.Plan
	CurrentCode      *CodeBlock
	ExecutionResults []ExecutionResult
	Iteration        int
	IsComplete       bool
	FinalAnswer      string
}

// NewState creates a state for query over the expanded data files.
func NewState(query string, dataFiles []string) *State {
	return &State{
		Query:     query,
		DataFiles: slices.Clone(dataFiles),
		Plan:      plan.New(),
	}
}

// LastResult returns the most recent settled execution result, or nil.
func (s *State) LastResult() *ExecutionResult {
	if len(s.ExecutionResults) == 0 {
		return nil
	}
	return &s.ExecutionResults[len(s.ExecutionResults)-1]
}

// Code returns the current program text, or "" if none was generated.
func (s *State) Code() string {
	if s.CurrentCode == nil {
		return ""
	}
	return s.CurrentCode.Code
}

// StepsText renders the active plan steps.
func (s *State) StepsText() string {
	return s.Plan.Text()
}

// ExecutionSummary renders the last execution result for prompts.
func (s *State) ExecutionSummary() string {
	r := s.LastResult()
	if r == nil {
		return "No execution yet."
	}
	return r.Summary()
}

// Summary renders the result as Status, Output and (on failure) Error blocks.
func (r *ExecutionResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Status: SUCCESS\n")
	} else {
		sb.WriteString("Status: FAILED\n")
	}

	sb.WriteString("Output:\n")
	if out := strings.TrimSpace(r.Stdout); out != "" {
		sb.WriteString(out)
	} else {
		sb.WriteString("(no output)")
	}

	if !r.Success {
		sb.WriteString("\nError:\n")
		switch {
		case strings.TrimSpace(r.ErrorTraceback) != "":
			sb.WriteString(strings.TrimSpace(r.ErrorTraceback))
		case strings.TrimSpace(r.Stderr) != "":
			sb.WriteString(strings.TrimSpace(r.Stderr))
		default:
			sb.WriteString("(no error output)")
		}
	}
	return sb.String()
}

// FileDescriptionsText renders every file description for prompts.
func (s *State) FileDescriptionsText() string {
	if len(s.FileDescriptions) == 0 {
		return "No data files analyzed."
	}
	parts := make([]string, 0, len(s.FileDescriptions))
	for _, fd := range s.FileDescriptions {
		parts = append(parts, fd.Text())
	}
	return strings.Join(parts, "\n\n")
}

// Text renders one description with its schema, row count and sample data.
func (fd FileDescription) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s\n", fd.Path)
	fmt.Fprintf(&sb, "Type: %s\n", fd.FileType)
	fmt.Fprintf(&sb, "Description: %s", fd.Description)

	if len(fd.Schema) > 0 {
		sb.WriteString("\nSchema:")
		keys := slices.Collect(maps.Keys(fd.Schema))
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n  - %s: %s", k, fd.Schema[k])
		}
	}
	if fd.RowCount != nil {
		fmt.Fprintf(&sb, "\nRows: %d", *fd.RowCount)
	}
	if fd.SizeBytes != nil {
		fmt.Fprintf(&sb, "\nSize: %d bytes", *fd.SizeBytes)
	}
	if sample := strings.TrimSpace(fd.SampleData); sample != "" {
		fmt.Fprintf(&sb, "\nSample:\n%s", sample)
	}
	return sb.String()
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *State) Clone() *State {
	c := &State{
		Query:            s.Query,
		DataFiles:        slices.Clone(s.DataFiles),
		FileDescriptions: make([]FileDescription, len(s.FileDescriptions)),
		ExecutionResults: slices.Clone(s.ExecutionResults),
		Iteration:        s.Iteration,
		IsComplete:       s.IsComplete,
		FinalAnswer:      s.FinalAnswer,
	}
	for i, fd := range s.FileDescriptions {
		fd.Schema = maps.Clone(fd.Schema)
		c.FileDescriptions[i] = fd
	}
	if s.Plan != nil {
		c.Plan = s.Plan.Clone()
	}
	if s.CurrentCode != nil {
		code := *s.CurrentCode
		code.StepIndices = slices.Clone(code.StepIndices)
		c.CurrentCode = &code
	}
	return c
}
