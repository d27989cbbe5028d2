package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/Iron-Ham/dsstar/internal/analyzer"
	"github.com/Iron-Ham/dsstar/internal/errors"
	"github.com/Iron-Ham/dsstar/internal/llm"
	"github.com/Iron-Ham/dsstar/internal/plan"
	"github.com/Iron-Ham/dsstar/internal/session"
	"github.com/Iron-Ham/dsstar/internal/testutil"
)

func testState() *session.State {
	s := session.NewState("How many rows are in sales.csv?", []string{"sales.csv"})
	s.FileDescriptions = []session.FileDescription{{Path: "sales.csv", FileType: "csv", Description: "sales"}}
	s.Plan.Append("Load sales.csv")
	s.CurrentCode = &session.CodeBlock{Code: "print(3)", StepIndices: []int{0}}
	s.ExecutionResults = []session.ExecutionResult{{Success: true, Stdout: "3\n"}}
	return s
}

func TestSuite_Roles(t *testing.T) {
	provider := testutil.NewScriptedProvider().
		On(RolePlanner, "Step 2: Count the rows").
		On(RoleCoder, "```python\nprint(len([1, 2, 3]))\n```").
		On(RoleVerifier, "SUFFICIENT: three rows").
		On(RoleRouter, "BACKTRACK:0\nwrong file").
		On(RoleDebugger, "import math\nprint(math.pi)").
		On(RoleAnalyzer, `{"file_type":"csv","description":"sales","row_count":3}`).
		On(RoleFinalizer, "The answer is: 3")

	suite := NewSuite(provider, nil)
	ctx := context.Background()
	s := testState()

	step, err := suite.Planner.NextStep(ctx, s)
	if err != nil || step != "Count the rows" {
		t.Errorf("NextStep() = %q, %v", step, err)
	}

	code, err := suite.Coder.GenerateCode(ctx, s)
	if err != nil || code != "print(len([1, 2, 3]))" {
		t.Errorf("GenerateCode() = %q, %v", code, err)
	}

	v, err := suite.Verifier.Verify(ctx, s)
	if err != nil || !v.Sufficient() || v.Reasoning != "three rows" {
		t.Errorf("Verify() = %+v, %v", v, err)
	}

	route, err := suite.Router.Route(ctx, s)
	if err != nil || route.Decision != plan.DecisionBacktrack || *route.BacktrackTo != 0 {
		t.Errorf("Route() = %+v, %v", route, err)
	}

	fixed, err := suite.Debugger.Repair(ctx, "print(x)", "NameError: x", s.FileDescriptionsText())
	if err != nil || fixed != "import math\nprint(math.pi)" {
		t.Errorf("Repair() = %q, %v", fixed, err)
	}

	fd, err := suite.Analyzer.Describe(ctx, analyzer.Request{Path: "sales.csv", Extension: ".csv", Preview: "a\n1"})
	if err != nil || fd.FileType != "csv" || fd.RowCount == nil || *fd.RowCount != 3 {
		t.Errorf("Describe() = %+v, %v", fd, err)
	}

	answer, err := suite.Finalizer.Finalize(ctx, s, "")
	if err != nil || answer != "3" {
		t.Errorf("Finalize() = %q, %v", answer, err)
	}

	for _, req := range provider.Requests() {
		if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem || req.Messages[1].Role != llm.RoleUser {
			t.Errorf("%s sent messages %+v", req.Agent, req.Messages)
		}
	}
}

func TestPrompts_IncludeState(t *testing.T) {
	provider := testutil.NewScriptedProvider()
	suite := NewSuite(provider, nil)
	s := testState()

	tests := []struct {
		name     string
		messages func() ([]llm.Message, error)
		want     []string
	}{
		{
			name:     "planner",
			messages: func() ([]llm.Message, error) { return suite.Planner.role.Prompt(s) },
			want:     []string{s.Query, "0. Load sales.csv [PENDING]", "Status: SUCCESS", "File: sales.csv"},
		},
		{
			name:     "coder",
			messages: func() ([]llm.Message, error) { return suite.Coder.role.Prompt(s) },
			want:     []string{"```python\nprint(3)\n```", "0. Load sales.csv"},
		},
		{
			name: "debugger",
			messages: func() ([]llm.Message, error) {
				return suite.Debugger.role.Prompt(RepairInput{Code: "x", Traceback: "KeyError: 'amount'", Files: "File: a.csv"})
			},
			want: []string{"KeyError: 'amount'", "File: a.csv"},
		},
		{
			name: "analyzer",
			messages: func() ([]llm.Message, error) {
				return suite.Analyzer.role.Prompt(analyzer.Request{
					Path: "a.csv", Extension: ".csv", SizeBytes: 12, Preview: "x,y", PreviewLines: 50, PreviewBytes: 5000,
				})
			},
			want: []string{"File path: a.csv", "File size: 12 bytes", "first 50 lines or 5000 bytes", "x,y"},
		},
		{
			name: "finalizer default format",
			messages: func() ([]llm.Message, error) {
				return suite.Finalizer.role.Prompt(FinalizeInput{Query: "q", Execution: "e", OutputFormat: DefaultOutputFormat})
			},
			want: []string{"Output format: Return the answer as-is"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := tt.messages()
			if err != nil {
				t.Fatalf("Prompt() error = %v", err)
			}
			user := msgs[1].Content
			for _, w := range tt.want {
				if !strings.Contains(user, w) {
					t.Errorf("user prompt missing %q:\n%s", w, user)
				}
			}
		})
	}
}

func TestRole_WrapsProviderFailure(t *testing.T) {
	cause := errors.New("rate limited")
	provider := testutil.NewScriptedProvider().Fail(RoleVerifier, cause)
	suite := NewSuite(provider, nil)

	_, err := suite.Verifier.Verify(context.Background(), testState())
	if !errors.Is(err, cause) {
		t.Fatalf("Verify() error = %v, want wrapped cause", err)
	}
	var capErr *errors.CapabilityError
	if !errors.As(err, &capErr) || capErr.Role != RoleVerifier || capErr.Op != "complete" {
		t.Errorf("error = %#v, want CapabilityError for verifier", err)
	}
}

func TestRole_ParsesAmbiguousReplies(t *testing.T) {
	provider := testutil.NewScriptedProvider().
		On(RoleVerifier, "hard to say").
		On(RoleRouter, "maybe?")
	suite := NewSuite(provider, nil)
	ctx := context.Background()

	v, err := suite.Verifier.Verify(ctx, testState())
	if err != nil || v.Sufficient() {
		t.Errorf("Verify() = %+v, %v; want INSUFFICIENT", v, err)
	}
	r, err := suite.Router.Route(ctx, testState())
	if err != nil || r.Decision != plan.DecisionAddStep {
		t.Errorf("Route() = %+v, %v; want ADD_STEP", r, err)
	}
}
