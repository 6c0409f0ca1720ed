package workflow

// State is the lifecycle status of an approval request
type State string

const (
	StateDraft           State = "draft"
	StateSubmitted       State = "submitted"
	StatePendingApproval State = "pending_approval"
	StateEscalated       State = "escalated"
	StateApproved        State = "approved"
	StateRejected        State = "rejected"
	StateCompleted       State = "completed"
)

// IsTerminal returns true if no approve/reject/escalate may act on the state.
// An approved request can still be closed out to completed, which is not a
// step operation.
func (s State) IsTerminal() bool {
	switch s {
	case StateApproved, StateRejected, StateCompleted:
		return true
	default:
		return false
	}
}

// IsAwaitingDecision returns true while an approver has to act
func (s State) IsAwaitingDecision() bool {
	return s == StatePendingApproval || s == StateEscalated
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known request status
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateSubmitted, StatePendingApproval, StateEscalated,
		StateApproved, StateRejected, StateCompleted:
		return true
	default:
		return false
	}
}
