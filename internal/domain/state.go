package domain

// State is a conversation state in the orchestrator state machine. Exactly
// one state is active per session.
type State string

const (
	// StateInitial is the state of a freshly created session.
	StateInitial State = "initial"
	// StateClarifying indicates the requirement lacks detail and the
	// orchestrator is asking clarifying questions.
	StateClarifying State = "clarifying"
	// StateRequirementsValidated indicates clarification is complete; the
	// session immediately moves on to processing.
	StateRequirementsValidated State = "requirements_validated"
	// StateProcessing indicates specialist analysis is running. This is the
	// only suspension point in the machine.
	StateProcessing State = "processing"
	// StatePlanReview indicates a normalized plan has been presented and the
	// orchestrator is waiting for the user's verdict.
	StatePlanReview State = "plan_review"
	// StatePlanRefinement indicates the user requested changes and the
	// orchestrator is waiting for refinement input.
	StatePlanRefinement State = "plan_refinement"
	// StateCompleted indicates the plan was accepted.
	StateCompleted State = "completed"
)

// transitions enumerates the legal state machine edges. A plan can only come
// into existence through Processing; no edge skips it.
var transitions = map[State][]State{
	StateInitial:               {StateClarifying},
	StateClarifying:            {StateClarifying, StateRequirementsValidated},
	StateRequirementsValidated: {StateProcessing},
	StateProcessing:            {StatePlanReview, StateClarifying},
	StatePlanReview:            {StatePlanReview, StateCompleted, StatePlanRefinement},
	StatePlanRefinement:        {StateRequirementsValidated},
	StateCompleted:             {StateInitial},
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
