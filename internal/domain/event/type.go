package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestCreated   Type = "request.created"
	TypeRequestSubmitted Type = "request.submitted"
	TypeStepApproved     Type = "step.approved"
	TypeRequestApproved  Type = "request.approved"
	TypeRequestRejected  Type = "request.rejected"
	TypeRequestEscalated Type = "request.escalated"
	TypeRequestCompleted Type = "request.completed"
	TypeCommentAdded     Type = "comment.added"
)

// AllTypes lists every event type the engine publishes
var AllTypes = []Type{
	TypeRequestCreated,
	TypeRequestSubmitted,
	TypeStepApproved,
	TypeRequestApproved,
	TypeRequestRejected,
	TypeRequestEscalated,
	TypeRequestCompleted,
	TypeCommentAdded,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}
