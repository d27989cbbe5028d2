package session

import (
	"encoding/json"
	"time"
)

// Export is the serializable view of a State used by the server and by
// `dsstar run --output json|yaml`.
type Export struct {
	Query            string            `json:"query" yaml:"query"`
	DataFiles        []string          `json:"data_files" yaml:"data_files"`
	FileDescriptions []FileDescription `json:"file_descriptions" yaml:"file_descriptions"`
	Steps            []ExportStep      `json:"steps" yaml:"steps"`
	CurrentCode      *string           `json:"current_code" yaml:"current_code"`
	ExecutionResults []ExportResult    `json:"execution_results" yaml:"execution_results"`
	Iteration        int               `json:"iteration" yaml:"iteration"`
	IsComplete       bool              `json:"is_complete" yaml:"is_complete"`
	FinalAnswer      *string           `json:"final_answer" yaml:"final_answer"`
}

// ExportStep is the serialized form of a plan step
type ExportStep struct {
	Index       int    `json:"index" yaml:"index"`
	Description string `json:"description" yaml:"description"`
	Status      string `json:"status" yaml:"status"`
	CreatedAt   string `json:"created_at" yaml:"created_at"`
}

// ExportResult is the serialized form of an execution result
type ExportResult struct {
	Success         bool    `json:"success" yaml:"success"`
	Stdout          string  `json:"stdout" yaml:"stdout"`
	Stderr          string  `json:"stderr" yaml:"stderr"`
	ErrorTraceback  *string `json:"error_traceback" yaml:"error_traceback"`
	ExecutionTimeMs float64 `json:"execution_time_ms" yaml:"execution_time_ms"`
}

// Export builds the serializable view of s.
func (s *State) Export() Export {
	e := Export{
		Query:            s.Query,
		DataFiles:        nonNil(s.DataFiles),
		FileDescriptions: nonNil(s.FileDescriptions),
		Steps:            []ExportStep{},
		ExecutionResults: make([]ExportResult, 0, len(s.ExecutionResults)),
		Iteration:        s.Iteration,
		IsComplete:       s.IsComplete,
	}

	if s.Plan != nil {
		for _, step := range s.Plan.Steps() {
			e.Steps = append(e.Steps, ExportStep{
				Index:       step.Index,
				Description: step.Description,
				Status:      string(step.Status),
				CreatedAt:   step.CreatedAt.Format(time.RFC3339Nano),
			})
		}
	}

	if s.CurrentCode != nil {
		code := s.CurrentCode.Code
		e.CurrentCode = &code
	}

	for _, r := range s.ExecutionResults {
		er := ExportResult{
			Success:         r.Success,
			Stdout:          r.Stdout,
			Stderr:          r.Stderr,
			ExecutionTimeMs: r.ExecutionTimeMs(),
		}
		if r.ErrorTraceback != "" {
			tb := r.ErrorTraceback
			er.ErrorTraceback = &tb
		}
		e.ExecutionResults = append(e.ExecutionResults, er)
	}

	if s.FinalAnswer != "" {
		answer := s.FinalAnswer
		e.FinalAnswer = &answer
	}
	return e
}

// MarshalJSON implements json.Marshaler using the Export shape.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Export())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
