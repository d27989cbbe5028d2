// Package session defines the mutable record of one dsstar run: the query,
// the analyzed data files, the plan, the latest program and every settled
// execution result.
package session

import (
	"strings"
	"time"
)

// FileDescription is the analysis of one data file
type FileDescription struct {
	Path        string            `json:"path" yaml:"path"`
	FileType    string            `json:"file_type" yaml:"file_type"`
	Description string            `json:"description" yaml:"description"`
	Schema      map[string]string `json:"schema" yaml:"schema,omitempty"`
	SampleData  string            `json:"sample_data" yaml:"sample_data,omitempty"`
	RowCount    *int              `json:"row_count" yaml:"row_count,omitempty"`
	SizeBytes   *int64            `json:"size_bytes" yaml:"size_bytes,omitempty"`
}

// CodeBlock is a generated program and the plan steps it implements
type CodeBlock struct {
	Code        string `json:"code" yaml:"code"`
	StepIndices []int  `json:"step_indices" yaml:"step_indices"`
}

// IsEmpty reports whether there is no program text to run.
func (c *CodeBlock) IsEmpty() bool {
	return c == nil || strings.TrimSpace(c.Code) == ""
}

// ExecutionResult is the outcome of running one program
type ExecutionResult struct {
	Success        bool          `json:"success"`
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	ErrorTraceback string        `json:"error_traceback,omitempty"`
	ExecutionTime  time.Duration `json:"-"`
}

// ExecutionTimeMs returns the wall-clock execution time in milliseconds.
func (r ExecutionResult) ExecutionTimeMs() float64 {
	return float64(r.ExecutionTime) / float64(time.Millisecond)
}

// Verdict is the verification judgment over the latest execution
type Verdict string

const (
	VerdictSufficient   Verdict = "SUFFICIENT"
	VerdictInsufficient Verdict = "INSUFFICIENT"
)

// Verification is a verdict with the reasoning that accompanied it
type Verification struct {
	Verdict   Verdict `json:"verdict"`
	Reasoning string  `json:"reasoning"`
}

// Sufficient reports whether the verdict ends the loop.
func (v Verification) Sufficient() bool {
	return v.Verdict == VerdictSufficient
}
