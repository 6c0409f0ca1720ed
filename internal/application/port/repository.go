package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/workflow"
)

// ErrRequestNotFound is returned by a RequestStore for unknown request IDs
var ErrRequestNotFound = errors.New("approval request not found")

// ErrRequestExists is returned by Create when the ID is already taken
var ErrRequestExists = errors.New("approval request already exists")

// RequestFilter narrows a listing. Zero values match everything.
type RequestFilter struct {
	Type          entity.RequestType
	Status        workflow.State
	OrgUnitID     string
	RequestorID   string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// Matches reports whether req satisfies every set field of the filter
func (f RequestFilter) Matches(req *entity.ApprovalRequest) bool {
	if f.Type != "" && req.Type != f.Type {
		return false
	}
	if f.Status != "" && req.Status != f.Status {
		return false
	}
	if f.OrgUnitID != "" && req.Requestor.OrgUnitID != f.OrgUnitID {
		return false
	}
	if f.RequestorID != "" && req.Requestor.ID != f.RequestorID {
		return false
	}
	if f.CreatedAfter != nil && req.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && req.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	return true
}

// RequestStore owns every ApprovalRequest. Implementations return copies and
// store copies; callers never share chain state with the store.
type RequestStore interface {
	// Create stores a new request
	Create(ctx context.Context, req *entity.ApprovalRequest) error

	// Get returns the request or ErrRequestNotFound
	Get(ctx context.Context, id string) (*entity.ApprovalRequest, error)

	// Save replaces an existing request
	Save(ctx context.Context, req *entity.ApprovalRequest) error

	// List returns the requests matching filter, newest first by CreatedAt
	List(ctx context.Context, filter RequestFilter) ([]*entity.ApprovalRequest, error)
}

// TransactionManager handles store transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoopTransactionManager runs fn directly; used with stores that apply each
// write atomically on their own.
type NoopTransactionManager struct{}

// WithTransaction implements TransactionManager
func (NoopTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
