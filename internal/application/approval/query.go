package approval

import (
	"context"
	"fmt"
	"sort"

	"github.com/garyjia/site-approval/internal/application/port"
	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/workflow"
)

// Statistics aggregates a set of requests
type Statistics struct {
	Total                 int                        `json:"total"`
	Pending               int                        `json:"pending"`
	Approved              int                        `json:"approved"`
	Rejected              int                        `json:"rejected"`
	ByType                map[entity.RequestType]int `json:"by_type"`
	ByPriority            map[entity.Priority]int    `json:"by_priority"`
	AverageApprovalTimeMs int64                      `json:"average_approval_time_ms"`
}

// ListRequests returns requests matching filter, newest first
func (e *Engine) ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	requests, err := e.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	sortNewestFirst(requests)
	return requests, nil
}

// GetPendingForUser returns the requests whose current step waits on userID
func (e *Engine) GetPendingForUser(ctx context.Context, userID string) ([]*entity.ApprovalRequest, error) {
	var pending []*entity.ApprovalRequest
	for _, status := range []workflow.State{workflow.StatePendingApproval, workflow.StateEscalated} {
		requests, err := e.store.List(ctx, port.RequestFilter{Status: status})
		if err != nil {
			return nil, fmt.Errorf("list %s requests: %w", status, err)
		}
		for _, req := range requests {
			if step := req.CurrentStep(); step != nil &&
				step.ApproverID == userID &&
				step.Status == entity.StepStatusPending {
				pending = append(pending, req)
			}
		}
	}
	sortNewestFirst(pending)
	return pending, nil
}

// GetStatistics aggregates the requests userID raised or approves on, within
// orgUnitID. Empty arguments widen the scope to every request.
func (e *Engine) GetStatistics(ctx context.Context, userID, orgUnitID string) (*Statistics, error) {
	requests, err := e.ScopedRequests(ctx, userID, orgUnitID)
	if err != nil {
		return nil, err
	}
	return ComputeStatistics(requests), nil
}

// ScopedRequests returns the requests GetStatistics aggregates, newest first
func (e *Engine) ScopedRequests(ctx context.Context, userID, orgUnitID string) ([]*entity.ApprovalRequest, error) {
	requests, err := e.ListRequests(ctx, port.RequestFilter{OrgUnitID: orgUnitID})
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return requests, nil
	}

	scoped := requests[:0]
	for _, req := range requests {
		if req.Requestor.ID == userID || req.HasApprover(userID) {
			scoped = append(scoped, req)
		}
	}
	return scoped, nil
}

// ComputeStatistics aggregates requests. Approval latency is averaged over
// every request that has both a submission and a completion time.
func ComputeStatistics(requests []*entity.ApprovalRequest) *Statistics {
	stats := &Statistics{
		ByType:     make(map[entity.RequestType]int),
		ByPriority: make(map[entity.Priority]int),
	}

	var (
		totalMs int64
		timed   int64
	)
	for _, req := range requests {
		stats.Total++
		stats.ByType[req.Type]++
		stats.ByPriority[req.Priority]++

		switch req.Status {
		case workflow.StatePendingApproval, workflow.StateEscalated:
			stats.Pending++
		case workflow.StateApproved, workflow.StateCompleted:
			stats.Approved++
		case workflow.StateRejected:
			stats.Rejected++
		}

		if req.SubmittedAt != nil && req.CompletedAt != nil {
			totalMs += req.CompletedAt.Sub(*req.SubmittedAt).Milliseconds()
			timed++
		}
	}
	if timed > 0 {
		stats.AverageApprovalTimeMs = totalMs / timed
	}
	return stats
}

func sortNewestFirst(requests []*entity.ApprovalRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID > requests[j].ID
		}
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
}
