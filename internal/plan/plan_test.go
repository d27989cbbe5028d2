package plan

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func newFixedPlan(descriptions ...string) *Plan {
	p := New()
	p.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	for _, d := range descriptions {
		p.Append(d)
	}
	return p
}

func assertIndicesContiguous(t *testing.T, p *Plan) {
	t.Helper()
	for i, s := range p.Steps() {
		if s.Index != i {
			t.Fatalf("plan[%d].Index = %d", i, s.Index)
		}
	}
}

func TestAppend(t *testing.T) {
	p := newFixedPlan()

	first := p.Append("load data")
	second := p.Append("count rows")

	if first.Index != 0 || second.Index != 1 {
		t.Errorf("indices = %d, %d, want 0, 1", first.Index, second.Index)
	}
	if first.Status != StatusPending {
		t.Errorf("Status = %s, want %s", first.Status, StatusPending)
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
	latest, ok := p.Latest()
	if !ok || latest.Description != "count rows" {
		t.Errorf("Latest() = %+v, %v", latest, ok)
	}
	assertIndicesContiguous(t, p)
}

func TestLatest_Empty(t *testing.T) {
	if _, ok := New().Latest(); ok {
		t.Error("Latest() on empty plan should report false")
	}
}

func TestSetStatus(t *testing.T) {
	p := newFixedPlan("a", "b")

	if err := p.SetStatus(1, StatusCompleted); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if s, _ := p.Step(1); s.Status != StatusCompleted {
		t.Errorf("Status = %s, want %s", s.Status, StatusCompleted)
	}

	if err := p.SetStatus(5, StatusFailed); err == nil {
		t.Error("SetStatus() out of range should fail")
	}

	p.Backtrack(0)
	err := p.SetStatus(0, StatusCompleted)
	if !errors.Is(err, ErrStepBacktracked) {
		t.Errorf("SetStatus() on backtracked step error = %v, want ErrStepBacktracked", err)
	}
}

func TestBacktrack(t *testing.T) {
	tests := []struct {
		name          string
		steps         int
		to            int
		wantTarget    int
		wantDiscarded int
	}{
		{"middle", 4, 2, 2, 2},
		{"zero discards all", 3, 0, 0, 3},
		{"negative clamps to zero", 3, -4, 0, 3},
		{"at length discards none", 3, 3, 3, 0},
		{"beyond length clamps", 3, 9, 3, 0},
		{"empty plan", 0, 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFixedPlan()
			for i := 0; i < tt.steps; i++ {
				p.Append(fmt.Sprintf("step %d", i))
			}
			// Give steps below the target distinct statuses to detect mutation.
			for i := 0; i < tt.steps; i++ {
				if i%2 == 0 {
					_ = p.SetStatus(i, StatusCompleted)
				} else {
					_ = p.SetStatus(i, StatusFailed)
				}
			}
			before := p.Steps()

			target, discarded := p.Backtrack(tt.to)
			if target != tt.wantTarget || discarded != tt.wantDiscarded {
				t.Errorf("Backtrack(%d) = (%d, %d), want (%d, %d)",
					tt.to, target, discarded, tt.wantTarget, tt.wantDiscarded)
			}

			for i, s := range p.Steps() {
				if i >= target {
					if s.Status != StatusBacktracked {
						t.Errorf("step %d status = %s, want BACKTRACKED", i, s.Status)
					}
				} else if s.Status != before[i].Status {
					t.Errorf("step %d status changed from %s to %s", i, before[i].Status, s.Status)
				}
			}
			assertIndicesContiguous(t, p)
		})
	}
}

func TestBacktrack_Idempotent(t *testing.T) {
	p := newFixedPlan("a", "b", "c")
	p.Backtrack(1)

	_, discarded := p.Backtrack(1)
	if discarded != 0 {
		t.Errorf("second Backtrack discarded %d, want 0", discarded)
	}
}

func TestBacktrack_NewStepGetsNewIndex(t *testing.T) {
	p := newFixedPlan("a", "b", "c")
	p.Backtrack(1)

	s := p.Append("b again")
	if s.Index != 3 {
		t.Errorf("Index = %d, want 3", s.Index)
	}

	got := p.ActiveIndices()
	want := []int{0, 3}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ActiveIndices() = %v, want %v", got, want)
	}
	if len(p.Active()) != 2 {
		t.Errorf("Active() has %d steps, want 2", len(p.Active()))
	}
}

func TestText(t *testing.T) {
	p := newFixedPlan()
	if got := p.Text(); got != "No steps yet." {
		t.Errorf("Text() = %q", got)
	}

	p.Append("load data")
	p.Append("filter rows")
	p.Append("count rows")
	_ = p.SetStatus(0, StatusCompleted)
	p.Backtrack(1)
	p.Append("group rows")

	want := "0. load data [COMPLETED]\n3. group rows [PENDING]"
	if got := p.Text(); got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestClone(t *testing.T) {
	p := newFixedPlan("a")
	c := p.Clone()
	c.Append("b")
	_ = c.SetStatus(0, StatusFailed)

	if p.Len() != 1 {
		t.Errorf("original Len() = %d, want 1", p.Len())
	}
	if s, _ := p.Step(0); s.Status != StatusPending {
		t.Errorf("original status = %s, want PENDING", s.Status)
	}
}

func TestApply(t *testing.T) {
	t.Run("add step leaves plan unchanged", func(t *testing.T) {
		p := newFixedPlan("a", "b")
		tr := p.Apply(AddStep("keep going"))
		if tr.Decision != DecisionAddStep || tr.Discarded != 0 {
			t.Errorf("Apply() = %+v", tr)
		}
		if len(p.Active()) != 2 {
			t.Errorf("Active() = %d steps, want 2", len(p.Active()))
		}
	})

	t.Run("backtrack to step", func(t *testing.T) {
		p := newFixedPlan("a", "b", "c")
		tr := p.Apply(BacktrackTo(1, "step 1 used the wrong column"))
		if tr.Decision != DecisionBacktrack || tr.Target != 1 || tr.Discarded != 2 {
			t.Errorf("Apply() = %+v", tr)
		}
	})

	t.Run("backtrack without target discards everything", func(t *testing.T) {
		p := newFixedPlan("a", "b")
		tr := p.Apply(Route{Decision: DecisionBacktrack})
		if tr.Target != 0 || tr.Discarded != 2 {
			t.Errorf("Apply() = %+v", tr)
		}
		if len(p.Active()) != 0 {
			t.Errorf("Active() = %d steps, want 0", len(p.Active()))
		}
	})

	t.Run("unknown decision is treated as add step", func(t *testing.T) {
		p := newFixedPlan("a")
		tr := p.Apply(Route{Decision: "MAYBE"})
		if tr.Decision != DecisionAddStep {
			t.Errorf("Decision = %s, want ADD_STEP", tr.Decision)
		}
	})
}
