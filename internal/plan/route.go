package plan

// Decision is the routing choice made after an insufficient verdict
type Decision string

const (
	// DecisionAddStep extends the plan on the next iteration.
	DecisionAddStep Decision = "ADD_STEP"
	// DecisionBacktrack discards a faulty suffix of the plan.
	DecisionBacktrack Decision = "BACKTRACK"
)

// Route is the parsed output of the routing capability
type Route struct {
	Decision Decision `json:"decision"`
	// BacktrackTo is the first step to discard. Only meaningful for
	// DecisionBacktrack; nil discards the entire plan.
	BacktrackTo *int   `json:"backtrack_to_step"`
	Reasoning   string `json:"reasoning"`
}

// AddStep returns an ADD_STEP route.
func AddStep(reasoning string) Route {
	return Route{Decision: DecisionAddStep, Reasoning: reasoning}
}

// BacktrackTo returns a BACKTRACK route targeting step n.
func BacktrackTo(n int, reasoning string) Route {
	return Route{Decision: DecisionBacktrack, BacktrackTo: &n, Reasoning: reasoning}
}

// Transition describes what applying a route did to the plan
type Transition struct {
	Decision Decision
	// Target is the clamped backtrack index. Zero for ADD_STEP.
	Target int
	// Discarded is the number of steps newly marked BACKTRACKED.
	Discarded int
}

// Apply applies a routing decision. ADD_STEP leaves the plan unchanged; the
// next iteration appends. BACKTRACK discards steps from the target onward.
func (p *Plan) Apply(r Route) Transition {
	if r.Decision != DecisionBacktrack {
		return Transition{Decision: DecisionAddStep}
	}
	to := 0
	if r.BacktrackTo != nil {
		to = *r.BacktrackTo
	}
	target, discarded := p.Backtrack(to)
	return Transition{Decision: DecisionBacktrack, Target: target, Discarded: discarded}
}
