package port

import (
	"context"
	"errors"

	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/event"
)

// ErrUserNotFound is returned by a Directory for unknown user IDs
var ErrUserNotFound = errors.New("user not found")

// Directory is the identity / org-unit service the engine routes against
type Directory interface {
	// GetUser returns the user or ErrUserNotFound
	GetUser(ctx context.Context, userID string) (*entity.User, error)

	// ParentOrgUnit returns the parent of orgUnitID; ok is false at the root
	// or for unknown units
	ParentOrgUnit(ctx context.Context, orgUnitID string) (parentID string, ok bool, err error)

	// UsersWithRole returns every user holding role
	UsersWithRole(ctx context.Context, role string) ([]*entity.User, error)
}

// EventPublisher receives engine events for audit and notification delivery
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event)
}

// NoopPublisher drops every event
type NoopPublisher struct{}

// Publish implements EventPublisher
func (NoopPublisher) Publish(context.Context, *event.Event) {}
