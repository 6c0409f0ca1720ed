package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-approval/internal/application/port"
	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/workflow"
)

func newRequest(id string, created time.Time) *entity.ApprovalRequest {
	return &entity.ApprovalRequest{
		ID:        id,
		Type:      entity.RequestTypeExpense,
		Requestor: entity.Requestor{ID: "se-1", OrgUnitID: "site-a"},
		Status:    workflow.StateDraft,
		CreatedAt: created,
		ApprovalChain: []entity.ApprovalStep{
			{StepNumber: 1, ApproverID: "zm-1", Status: entity.StepStatusPending},
		},
	}
}

func TestRequestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewRequestStore()
	req := newRequest("req-1", time.Now())

	require.NoError(t, store.Create(ctx, req))
	assert.ErrorIs(t, store.Create(ctx, req), port.ErrRequestExists)

	got, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, req, got)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, port.ErrRequestNotFound)
}

func TestRequestStore_DoesNotAliasCallers(t *testing.T) {
	ctx := context.Background()
	store := NewRequestStore()
	req := newRequest("req-1", time.Now())
	require.NoError(t, store.Create(ctx, req))

	req.ApprovalChain[0].Status = entity.StepStatusApproved
	got, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StepStatusPending, got.ApprovalChain[0].Status)

	got.ApprovalChain[0].Status = entity.StepStatusRejected
	again, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StepStatusPending, again.ApprovalChain[0].Status)
}

func TestRequestStore_Save(t *testing.T) {
	ctx := context.Background()
	store := NewRequestStore()

	assert.ErrorIs(t, store.Save(ctx, newRequest("req-1", time.Now())), port.ErrRequestNotFound)

	req := newRequest("req-1", time.Now())
	require.NoError(t, store.Create(ctx, req))
	req.Status = workflow.StatePendingApproval
	require.NoError(t, store.Save(ctx, req))

	got, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingApproval, got.Status)
}

func TestRequestStore_ListFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store := NewRequestStore()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	older := newRequest("req-old", base)
	newer := newRequest("req-new", base.Add(time.Hour))
	other := newRequest("req-other", base.Add(2*time.Hour))
	other.Type = entity.RequestTypeSafeAccess
	other.Requestor.OrgUnitID = "site-b"

	for _, r := range []*entity.ApprovalRequest{older, newer, other} {
		require.NoError(t, store.Create(ctx, r))
	}

	all, err := store.List(ctx, port.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"req-other", "req-new", "req-old"}, []string{all[0].ID, all[1].ID, all[2].ID})

	bySite, err := store.List(ctx, port.RequestFilter{OrgUnitID: "site-a"})
	require.NoError(t, err)
	assert.Len(t, bySite, 2)

	byType, err := store.List(ctx, port.RequestFilter{Type: entity.RequestTypeSafeAccess})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "req-other", byType[0].ID)

	after := base.Add(30 * time.Minute)
	before := base.Add(90 * time.Minute)
	ranged, err := store.List(ctx, port.RequestFilter{CreatedAfter: &after, CreatedBefore: &before})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "req-new", ranged[0].ID)
}
