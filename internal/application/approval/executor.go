package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/event"
	"github.com/garyjia/site-approval/internal/domain/workflow"
)

// stepOutcome is the decision taken on the current step. The three variants
// are the only ways a pending step can be left.
type stepOutcome interface {
	// validate runs outcome specific checks before anything is changed
	validate(ctx context.Context, e *Engine, req *entity.ApprovalRequest, step *entity.ApprovalStep) error
	// apply mutates the request and returns the events to publish
	apply(ctx context.Context, e *Engine, req *entity.ApprovalRequest, step *entity.ApprovalStep) ([]*event.Event, error)
}

type approveOutcome struct {
	comment string
}

type rejectOutcome struct {
	reason string
}

// escalateOutcome redirects the decision to the approver's supervisor; the
// target is resolved during validate.
type escalateOutcome struct {
	reason string
	target *entity.User
}

// ApproveStep records approverID's approval of the current step
func (e *Engine) ApproveStep(ctx context.Context, requestID, approverID, comment string) (*entity.ApprovalRequest, error) {
	return e.resolveStep(ctx, requestID, approverID, &approveOutcome{comment: comment})
}

// RejectStep rejects the current step, which ends the whole workflow
func (e *Engine) RejectStep(ctx context.Context, requestID, approverID, reason string) (*entity.ApprovalRequest, error) {
	return e.resolveStep(ctx, requestID, approverID, &rejectOutcome{reason: reason})
}

// EscalateRequest hands the current step to the approver's supervisor
func (e *Engine) EscalateRequest(ctx context.Context, requestID, approverID, reason string) (*entity.ApprovalRequest, error) {
	return e.resolveStep(ctx, requestID, approverID, &escalateOutcome{reason: reason})
}

func (e *Engine) resolveStep(ctx context.Context, requestID, approverID string, outcome stepOutcome) (*entity.ApprovalRequest, error) {
	return e.mutate(ctx, requestID, func(ctx context.Context, req *entity.ApprovalRequest) ([]*event.Event, error) {
		step, err := e.authorizeStep(req, approverID)
		if err != nil {
			return nil, err
		}
		if err := outcome.validate(ctx, e, req, step); err != nil {
			return nil, err
		}
		return outcome.apply(ctx, e, req, step)
	})
}

// authorizeStep returns the current step when approverID may act on it
func (e *Engine) authorizeStep(req *entity.ApprovalRequest, approverID string) (*entity.ApprovalStep, error) {
	if !req.Status.IsAwaitingDecision() {
		return nil, fmt.Errorf("%w: request %s is %s", ErrInvalidState, req.ID, req.Status)
	}

	step := req.CurrentStep()
	if step == nil || step.ApproverID != approverID {
		if decidedBy(req, approverID) {
			return nil, fmt.Errorf("%w: user %s already acted on request %s", ErrAlreadyProcessed, approverID, req.ID)
		}
		return nil, fmt.Errorf("%w: user %s is not the current approver of request %s", ErrUnauthorized, approverID, req.ID)
	}
	if step.Status != entity.StepStatusPending {
		return nil, fmt.Errorf("%w: step %d is %s", ErrAlreadyProcessed, step.StepNumber, step.Status)
	}
	return step, nil
}

// decidedBy reports whether approverID already took a decision on the
// request. Steps bypassed by an escalation leave no decision behind.
func decidedBy(req *entity.ApprovalRequest, approverID string) bool {
	for _, c := range req.Comments {
		if c.AuthorID != approverID {
			continue
		}
		switch c.Type {
		case entity.CommentTypeApproval, entity.CommentTypeRejection, entity.CommentTypeEscalation:
			return true
		}
	}
	return false
}

func (o *approveOutcome) validate(context.Context, *Engine, *entity.ApprovalRequest, *entity.ApprovalStep) error {
	return nil
}

func (o *approveOutcome) apply(ctx context.Context, e *Engine, req *entity.ApprovalRequest, step *entity.ApprovalStep) ([]*event.Event, error) {
	trigger := workflow.TriggerAdvance
	if req.CurrentApproverIndex+1 == len(req.ApprovalChain) {
		trigger = workflow.TriggerApprove
	}
	status, err := e.fire(ctx, req.Status, trigger)
	if err != nil {
		return nil, err
	}

	now := e.now()
	step.Status = entity.StepStatusApproved
	step.ApprovedAt = &now
	step.Comments = o.comment

	text := o.comment
	if strings.TrimSpace(text) == "" {
		text = fmt.Sprintf("Approved step %d", step.StepNumber)
	}
	e.appendComment(req, step.ApproverID, step.ApproverName, step.ApproverRole, text, entity.CommentTypeApproval)

	req.CurrentApproverIndex++
	req.Status = status

	events := []*event.Event{
		event.NewEvent(event.TypeStepApproved, req.ID, step.ApproverID, now,
			map[string]interface{}{"step_number": step.StepNumber}),
	}
	if status == workflow.StateApproved {
		req.CompletedAt = &now
		events = append(events, event.NewEvent(event.TypeRequestApproved, req.ID, step.ApproverID, now, nil))
	} else {
		events[0] = events[0].WithPayload("next_approver_id", req.CurrentStep().ApproverID)
	}
	return events, nil
}

func (o *rejectOutcome) validate(context.Context, *Engine, *entity.ApprovalRequest, *entity.ApprovalStep) error {
	if strings.TrimSpace(o.reason) == "" {
		return fmt.Errorf("%w: rejection reason is required", ErrInvalidInput)
	}
	return nil
}

func (o *rejectOutcome) apply(ctx context.Context, e *Engine, req *entity.ApprovalRequest, step *entity.ApprovalStep) ([]*event.Event, error) {
	status, err := e.fire(ctx, req.Status, workflow.TriggerReject)
	if err != nil {
		return nil, err
	}

	now := e.now()
	step.Status = entity.StepStatusRejected
	step.RejectedAt = &now
	step.Comments = o.reason
	e.appendComment(req, step.ApproverID, step.ApproverName, step.ApproverRole, o.reason, entity.CommentTypeRejection)

	req.Status = status
	req.CompletedAt = &now

	return []*event.Event{
		event.NewEvent(event.TypeRequestRejected, req.ID, step.ApproverID, now,
			map[string]interface{}{"step_number": step.StepNumber, "reason": o.reason}),
	}, nil
}

func (o *escalateOutcome) validate(ctx context.Context, e *Engine, req *entity.ApprovalRequest, step *entity.ApprovalStep) error {
	if !step.CanEscalate {
		return fmt.Errorf("%w: step %d of request %s", ErrEscalationNotAllowed, step.StepNumber, req.ID)
	}

	approver := &entity.User{
		ID:        step.ApproverID,
		Name:      step.ApproverName,
		Role:      step.ApproverRole,
		OrgUnitID: step.ApproverOrgUnitID,
	}
	target, err := e.chain.Supervisor(ctx, approver)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("%w: no supervisor above %s (%s)", ErrNoHigherAuthority, approver.ID, approver.Role)
	}
	o.target = target
	return nil
}

func (o *escalateOutcome) apply(ctx context.Context, e *Engine, req *entity.ApprovalRequest, step *entity.ApprovalStep) ([]*event.Event, error) {
	status, err := e.fire(ctx, req.Status, workflow.TriggerEscalate)
	if err != nil {
		return nil, err
	}

	step.Status = entity.StepStatusSkipped
	step.Comments = o.reason
	from := *step

	// the pointer never moves back, so later steps are bypassed for good
	for i := req.CurrentApproverIndex + 1; i < len(req.ApprovalChain); i++ {
		if req.ApprovalChain[i].Status == entity.StepStatusPending {
			req.ApprovalChain[i].Status = entity.StepStatusSkipped
		}
	}

	// step points into the chain; do not use it after the append below
	next := e.chain.newStep(len(req.ApprovalChain)+1, o.target)
	req.ApprovalChain = append(req.ApprovalChain, next)
	req.CurrentApproverIndex = len(req.ApprovalChain) - 1
	req.Status = status

	text := o.reason
	if strings.TrimSpace(text) == "" {
		text = fmt.Sprintf("Escalated to %s", o.target.Name)
	}
	c := e.appendComment(req, from.ApproverID, from.ApproverName, from.ApproverRole, text, entity.CommentTypeEscalation)

	return []*event.Event{
		event.NewEvent(event.TypeRequestEscalated, req.ID, from.ApproverID, c.Timestamp,
			map[string]interface{}{
				"from_step":        from.StepNumber,
				"to_step":          next.StepNumber,
				"next_approver_id": next.ApproverID,
			}),
	}, nil
}
