package workflow

// Trigger represents an engine operation that moves a request between states
type Trigger string

const (
	TriggerSubmit       Trigger = "SUBMIT"
	TriggerRoute        Trigger = "ROUTE"
	TriggerAutoComplete Trigger = "AUTO_COMPLETE"
	TriggerAdvance      Trigger = "ADVANCE"
	TriggerApprove      Trigger = "APPROVE"
	TriggerReject       Trigger = "REJECT"
	TriggerEscalate     Trigger = "ESCALATE"
	TriggerComplete     Trigger = "COMPLETE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
