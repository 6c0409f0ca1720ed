// Package memory provides an in-process RequestStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/site-approval/internal/application/port"
	"github.com/garyjia/site-approval/internal/domain/entity"
)

// RequestStore keeps requests in a map. Every read and write copies, so no
// caller ever aliases stored chain state.
type RequestStore struct {
	mu       sync.RWMutex
	requests map[string]*entity.ApprovalRequest
}

// NewRequestStore creates an empty store
func NewRequestStore() *RequestStore {
	return &RequestStore{requests: make(map[string]*entity.ApprovalRequest)}
}

// Create implements port.RequestStore
func (s *RequestStore) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("%w: %s", port.ErrRequestExists, req.ID)
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

// Get implements port.RequestStore
func (s *RequestStore) Get(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", port.ErrRequestNotFound, id)
	}
	return req.Clone(), nil
}

// Save implements port.RequestStore
func (s *RequestStore) Save(ctx context.Context, req *entity.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; !ok {
		return fmt.Errorf("%w: %s", port.ErrRequestNotFound, req.ID)
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

// List implements port.RequestStore
func (s *RequestStore) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	s.mu.RLock()
	result := make([]*entity.ApprovalRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if filter.Matches(req) {
			result = append(result, req.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

var _ port.RequestStore = (*RequestStore)(nil)
