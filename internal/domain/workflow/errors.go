package workflow

import "errors"

// Lifecycle errors. Callers match them with errors.Is; Fire wraps them with
// the offending trigger and state.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrGuardFailed       = errors.New("guard condition failed")
)
