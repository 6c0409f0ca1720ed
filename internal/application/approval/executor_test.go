package approval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/event"
	"github.com/garyjia/site-approval/internal/domain/workflow"
)

func TestApproveStep_AdvancesThroughChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, entity.RequestTypeEquipmentPurchase, "pm-1", amount(600_000))

	req, err := f.engine.ApproveStep(ctx, req.ID, "am-1", "Within area budget")
	require.NoError(t, err)
	requireIndexInvariant(t, req)
	assert.Equal(t, workflow.StatePendingApproval, req.Status)
	assert.Equal(t, 1, req.CurrentApproverIndex)
	assert.Equal(t, entity.StepStatusApproved, req.ApprovalChain[0].Status)
	assert.NotNil(t, req.ApprovalChain[0].ApprovedAt)
	assert.Equal(t, "Within area budget", req.ApprovalChain[0].Comments)
	assert.Nil(t, req.CompletedAt)
	assert.Equal(t, "md-1", f.events.last().GetPayloadString("next_approver_id"))

	req, err = f.engine.ApproveStep(ctx, req.ID, "md-1", "")
	require.NoError(t, err)
	requireIndexInvariant(t, req)
	assert.Equal(t, workflow.StateApproved, req.Status)
	assert.Equal(t, 2, req.CurrentApproverIndex)
	assert.NotNil(t, req.CompletedAt)
	assert.Nil(t, req.CurrentStep())

	require.Len(t, req.Comments, 2)
	assert.Equal(t, entity.CommentTypeApproval, req.Comments[0].Type)
	assert.Equal(t, "Approved step 2", req.Comments[1].Text)

	assert.Equal(t, []event.Type{
		event.TypeRequestCreated,
		event.TypeRequestSubmitted,
		event.TypeStepApproved,
		event.TypeStepApproved,
		event.TypeRequestApproved,
	}, f.events.types())
}

func TestApproveStep_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, entity.RequestTypeExpense, "se-1", amount(30_000))
	require.Equal(t, []string{"zm-1", "pm-1"}, approverIDs(req))

	t.Run("not in chain", func(t *testing.T) {
		_, err := f.engine.ApproveStep(ctx, req.ID, "se-2", "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("later step acts too early", func(t *testing.T) {
		_, err := f.engine.ApproveStep(ctx, req.ID, "pm-1", "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := f.engine.ApproveStep(ctx, "missing", "zm-1", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("double approval", func(t *testing.T) {
		_, err := f.engine.ApproveStep(ctx, req.ID, "zm-1", "")
		require.NoError(t, err)

		before, err := f.engine.GetRequest(ctx, req.ID)
		require.NoError(t, err)

		_, err = f.engine.ApproveStep(ctx, req.ID, "zm-1", "")
		assert.ErrorIs(t, err, ErrAlreadyProcessed)

		after, err := f.engine.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestApproveStep_DraftRequest(t *testing.T) {
	f := newFixture(t)

	req, err := f.engine.CreateRequest(context.Background(), entity.RequestTypeExpense, "se-1", RequestInput{Title: "Draft"})
	require.NoError(t, err)

	_, err = f.engine.ApproveStep(context.Background(), req.ID, "zm-1", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestApproveStep_RepeatOnSingleStepChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, entity.RequestTypeExpense, "se-1", amount(8_000))
	require.Equal(t, []string{"zm-1"}, approverIDs(req))

	req, err := f.engine.ApproveStep(ctx, req.ID, "zm-1", "")
	require.NoError(t, err)
	require.Equal(t, workflow.StateApproved, req.Status)

	// the request left the awaiting states, which is reported before the
	// approver's earlier decision
	_, err = f.engine.ApproveStep(ctx, req.ID, "zm-1", "")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.False(t, errors.Is(err, ErrAlreadyProcessed))

	after, err := f.engine.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req, after)
}

func TestRejectStep_EndsWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, entity.RequestTypeEquipmentPurchase, "pm-1", amount(600_000))

	_, err := f.engine.RejectStep(ctx, req.ID, "am-1", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	req, err = f.engine.RejectStep(ctx, req.ID, "am-1", "Hire instead of buying")
	require.NoError(t, err)
	requireIndexInvariant(t, req)
	assert.Equal(t, workflow.StateRejected, req.Status)
	assert.Equal(t, entity.StepStatusRejected, req.ApprovalChain[0].Status)
	assert.NotNil(t, req.ApprovalChain[0].RejectedAt)
	assert.Equal(t, entity.StepStatusPending, req.ApprovalChain[1].Status)
	assert.NotNil(t, req.CompletedAt)
	require.Len(t, req.Comments, 1)
	assert.Equal(t, entity.CommentTypeRejection, req.Comments[0].Type)
	assert.Equal(t, "Hire instead of buying", req.Comments[0].Text)

	rejected := f.events.last()
	assert.Equal(t, event.TypeRequestRejected, rejected.Type)
	assert.Equal(t, "Hire instead of buying", rejected.GetPayloadString("reason"))

	_, err = f.engine.ApproveStep(ctx, req.ID, "md-1", "")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.engine.EscalateRequest(ctx, req.ID, "md-1", "")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.engine.RejectStep(ctx, req.ID, "am-1", "again")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEscalateRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, entity.RequestTypeExpense, "se-1", amount(8_000))

	req, err := f.engine.EscalateRequest(ctx, req.ID, "zm-1", "")
	require.NoError(t, err)
	requireIndexInvariant(t, req)

	assert.Equal(t, workflow.StateEscalated, req.Status)
	assert.Equal(t, []string{"zm-1", "pm-1"}, approverIDs(req))
	assert.Equal(t, entity.StepStatusSkipped, req.ApprovalChain[0].Status)
	assert.Equal(t, 1, req.CurrentApproverIndex)
	assert.Equal(t, 100_000.0, req.ApprovalChain[1].FinancialThreshold)

	require.Len(t, req.Comments, 1)
	assert.Equal(t, entity.CommentTypeEscalation, req.Comments[0].Type)
	assert.Equal(t, "Escalated to Ari Novak", req.Comments[0].Text)

	escalated := f.events.last()
	assert.Equal(t, event.TypeRequestEscalated, escalated.Type)
	assert.Equal(t, "pm-1", escalated.GetPayloadString("next_approver_id"))

	pending, err := f.engine.GetPendingForUser(ctx, "pm-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	_, err = f.engine.ApproveStep(ctx, req.ID, "zm-1", "")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	req, err = f.engine.ApproveStep(ctx, req.ID, "pm-1", "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, req.Status)
	requireIndexInvariant(t, req)
}

func TestEscalateRequest_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, entity.RequestTypeExpense, "se-1", amount(8_000))
	req, err := f.engine.EscalateRequest(ctx, req.ID, "zm-1", "Outside my remit")
	require.NoError(t, err)
	req, err = f.engine.EscalateRequest(ctx, req.ID, "pm-1", "")
	require.NoError(t, err)

	requireIndexInvariant(t, req)
	assert.Equal(t, []string{"zm-1", "pm-1", "am-1"}, approverIDs(req))
	assert.Equal(t, 2, req.CurrentApproverIndex)
	assert.Equal(t, workflow.StateEscalated, req.Status)
	assert.Equal(t, "Outside my remit", req.ApprovalChain[0].Comments)
}

func TestEscalateRequest_BypassedStepsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, entity.RequestTypeSafeAccess, "se-1", nil)
	require.Equal(t, []string{"zm-1", "md-1"}, approverIDs(req))

	req, err := f.engine.EscalateRequest(ctx, req.ID, "zm-1", "")
	require.NoError(t, err)
	requireIndexInvariant(t, req)
	assert.Equal(t, []string{"zm-1", "md-1", "pm-1"}, approverIDs(req))
	assert.Equal(t, 2, req.CurrentApproverIndex)
	assert.Equal(t, entity.StepStatusSkipped, req.ApprovalChain[1].Status)
	assert.Empty(t, req.ApprovalChain[1].Comments)

	pending, err := f.engine.GetPendingForUser(ctx, "md-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// a bypassed approver never decided anything
	_, err = f.engine.ApproveStep(ctx, req.ID, "md-1", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	req, err = f.engine.ApproveStep(ctx, req.ID, "pm-1", "")
	require.NoError(t, err)
	requireIndexInvariant(t, req)
	assert.Equal(t, workflow.StateApproved, req.Status)
	for _, s := range req.ApprovalChain {
		assert.NotEqual(t, entity.StepStatusPending, s.Status, "step %d", s.StepNumber)
	}
}

func TestEscalateRequest_NotAllowedForTopRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, entity.RequestTypeSafeAccess, "se-1", nil)
	req, err := f.engine.ApproveStep(ctx, req.ID, "zm-1", "")
	require.NoError(t, err)

	_, err = f.engine.EscalateRequest(ctx, req.ID, "md-1", "")
	assert.ErrorIs(t, err, ErrEscalationNotAllowed)

	after, err := f.engine.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req, after)
}

func TestEscalateRequest_NoHigherAuthority(t *testing.T) {
	f := newFixture(t, siteEngineer, zoneManager, projectManager, areaManager)
	ctx := context.Background()

	req := f.submit(t, entity.RequestTypeEquipmentPurchase, "pm-1", amount(600_000))
	require.Equal(t, []string{"am-1"}, approverIDs(req))
	require.True(t, req.ApprovalChain[0].CanEscalate)

	_, err := f.engine.EscalateRequest(ctx, req.ID, "am-1", "")
	assert.ErrorIs(t, err, ErrNoHigherAuthority)

	after, err := f.engine.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req, after)
}

func TestApproveStep_ConcurrentCallsSerialised(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, entity.RequestTypeExpense, "se-1", amount(30_000))

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		processed int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.ApproveStep(ctx, req.ID, "zm-1", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrAlreadyProcessed):
				processed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, processed)

	got, err := f.engine.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentApproverIndex)
	assert.Len(t, got.Comments, 1)
	requireIndexInvariant(t, got)
}

func TestKeyedMutex_ReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Len(t, k.locks, 2)

	unlock()
	unlockB()
	assert.Empty(t, k.locks)
}
