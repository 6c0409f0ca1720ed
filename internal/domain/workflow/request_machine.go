package workflow

import (
	"context"
	"fmt"
	"sync"
)

var (
	lifecycleOnce    sync.Once
	requestLifecycle StateMachineBuilder
)

func lifecycle() StateMachineBuilder {
	lifecycleOnce.Do(func() {
		requestLifecycle = buildRequestLifecycle()
	})
	return requestLifecycle
}

// buildRequestLifecycle wires the approval request lifecycle:
//
//	draft -> submitted -> {pending_approval <-> escalated} -> {approved | rejected}
//	submitted -> completed (empty chain)
//	approved -> completed
func buildRequestLifecycle() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerSubmit, StateSubmitted)

	b.Configure(StateSubmitted).
		Permit(TriggerRoute, StatePendingApproval).
		Permit(TriggerAutoComplete, StateCompleted)

	for _, s := range []State{StatePendingApproval, StateEscalated} {
		b.Configure(s).
			Permit(TriggerAdvance, StatePendingApproval).
			Permit(TriggerApprove, StateApproved).
			Permit(TriggerReject, StateRejected).
			Permit(TriggerEscalate, StateEscalated)
	}

	b.Configure(StateApproved).
		Permit(TriggerComplete, StateCompleted)

	return b
}

// NewRequestMachine returns a lifecycle machine positioned at current
func NewRequestMachine(current State) StateMachine {
	return lifecycle().Build(current)
}

// Transition fires a single trigger from current and returns the new state
func Transition(ctx context.Context, current State, trigger Trigger) (State, error) {
	if !current.IsValid() {
		return current, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, current)
	}
	m := NewRequestMachine(current)
	if err := m.Fire(ctx, trigger); err != nil {
		return current, err
	}
	return m.State(), nil
}
