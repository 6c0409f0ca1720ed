package approval

import "errors"

// Error kinds returned by engine operations. They are wrapped with context,
// so compare with errors.Is.
var (
	// ErrNotFound is returned for unknown requests and users
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when the request status does not allow the operation
	ErrInvalidState = errors.New("invalid request state")

	// ErrUnauthorized is returned when the caller is not the current step's approver
	ErrUnauthorized = errors.New("not the designated approver")

	// ErrAlreadyProcessed is returned when the caller's step has already been decided
	ErrAlreadyProcessed = errors.New("step already processed")

	// ErrEscalationNotAllowed is returned when the current step cannot escalate
	ErrEscalationNotAllowed = errors.New("escalation not allowed")

	// ErrNoHigherAuthority is returned when the hierarchy walk finds no supervisor
	ErrNoHigherAuthority = errors.New("no higher authority")

	// ErrInvalidInput is returned for malformed arguments such as a blank
	// rejection reason
	ErrInvalidInput = errors.New("invalid input")
)
