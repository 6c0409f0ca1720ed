// Package approval implements the approval workflow engine: chain building,
// step execution and the read-only query facade over the request store.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/site-approval/internal/application/port"
	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/event"
	"github.com/garyjia/site-approval/internal/domain/policy"
	"github.com/garyjia/site-approval/internal/domain/workflow"
)

// Config carries the engine's collaborators. Store, Directory and Policy are
// required; everything else has a default.
type Config struct {
	Store     port.RequestStore
	Directory port.Directory
	Policy    *policy.Policy
	TxManager port.TransactionManager
	Publisher port.EventPublisher
	Logger    *zap.Logger

	// Now and NewID are overridable for tests
	Now   func() time.Time
	NewID func() string
}

// RequestInput is the business payload of a new request
type RequestInput struct {
	Title       string
	Description string
	Amount      *float64
	Priority    entity.Priority
	Metadata    map[string]interface{}
	Attachments []string
}

// Engine is the approval workflow engine. It is safe for concurrent use:
// mutations of one request are serialised, different requests proceed in
// parallel.
type Engine struct {
	store     port.RequestStore
	directory port.Directory
	policy    *policy.Policy
	chain     *ChainBuilder
	tx        port.TransactionManager
	publisher port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string

	locks *keyedMutex
}

// NewEngine validates cfg and creates an engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		store:     cfg.Store,
		directory: cfg.Directory,
		policy:    cfg.Policy,
		chain:     NewChainBuilder(cfg.Directory, cfg.Policy),
		tx:        cfg.TxManager,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       cfg.Now,
		newID:     cfg.NewID,
		locks:     newKeyedMutex(),
	}
	if e.tx == nil {
		e.tx = port.NoopTransactionManager{}
	}
	if e.publisher == nil {
		e.publisher = port.NoopPublisher{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e, nil
}

// Policy returns the routing policy the engine was built with
func (e *Engine) Policy() *policy.Policy {
	return e.policy
}

// CreateRequest stores a new draft request raised by requestorID
func (e *Engine) CreateRequest(ctx context.Context, reqType entity.RequestType, requestorID string, in RequestInput) (*entity.ApprovalRequest, error) {
	if !reqType.IsValid() {
		return nil, fmt.Errorf("%w: unknown request type %q", ErrInvalidInput, reqType)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Amount != nil && *in.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	priority := in.Priority
	if priority == "" {
		priority = entity.PriorityMedium
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, priority)
	}

	requestor, err := e.chain.lookupUser(ctx, requestorID)
	if err != nil {
		return nil, err
	}

	req := &entity.ApprovalRequest{
		ID:            e.newID(),
		Type:          reqType,
		Requestor:     requestor.AsRequestor(),
		Title:         in.Title,
		Description:   in.Description,
		Amount:        in.Amount,
		Priority:      priority,
		Metadata:      in.Metadata,
		Attachments:   in.Attachments,
		Status:        workflow.StateDraft,
		CreatedAt:     e.now(),
		ApprovalChain: []entity.ApprovalStep{},
		Comments:      []entity.ApprovalComment{},
	}
	req = req.Clone()

	if err := e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		return e.store.Create(txCtx, req)
	}); err != nil {
		e.logger.Error("Failed to create request", zap.String("requestor_id", requestorID), zap.Error(err))
		return nil, fmt.Errorf("create request: %w", err)
	}

	e.logger.Info("Request created",
		zap.String("request_id", req.ID),
		zap.String("type", string(req.Type)),
		zap.String("requestor_id", requestorID))
	e.publisher.Publish(ctx, event.NewEvent(event.TypeRequestCreated, req.ID, requestorID, req.CreatedAt,
		map[string]interface{}{"type": string(req.Type)}))

	return req.Clone(), nil
}

// SubmitRequest freezes the approval chain of a draft request. A request
// whose requestor has no supervisor completes immediately.
func (e *Engine) SubmitRequest(ctx context.Context, requestID string) (*entity.ApprovalRequest, error) {
	return e.mutate(ctx, requestID, func(ctx context.Context, req *entity.ApprovalRequest) ([]*event.Event, error) {
		if req.Status != workflow.StateDraft {
			return nil, fmt.Errorf("%w: request %s is %s, only draft requests can be submitted", ErrInvalidState, req.ID, req.Status)
		}

		requestor, err := e.chain.lookupUser(ctx, req.Requestor.ID)
		if err != nil {
			return nil, err
		}
		req.Requestor = requestor.AsRequestor()

		chain, err := e.chain.Build(ctx, req)
		if err != nil {
			return nil, err
		}

		status, err := e.fire(ctx, req.Status, workflow.TriggerSubmit)
		if err != nil {
			return nil, err
		}
		next := workflow.TriggerRoute
		if len(chain) == 0 {
			next = workflow.TriggerAutoComplete
		}
		if status, err = e.fire(ctx, status, next); err != nil {
			return nil, err
		}

		now := e.now()
		req.ApprovalChain = chain
		req.CurrentApproverIndex = 0
		req.SubmittedAt = &now
		req.Status = status
		if status == workflow.StateCompleted {
			req.CompletedAt = &now
		}

		events := []*event.Event{
			event.NewEvent(event.TypeRequestSubmitted, req.ID, req.Requestor.ID, now,
				map[string]interface{}{"steps": len(chain), "amount": req.AmountValue()}),
		}
		if status == workflow.StateCompleted {
			events = append(events, event.NewEvent(event.TypeRequestCompleted, req.ID, req.Requestor.ID, now,
				map[string]interface{}{"reason": "no approval required"}))
		} else {
			events[0] = events[0].WithPayload("next_approver_id", chain[0].ApproverID)
		}
		return events, nil
	})
}

// AddComment appends a free-text comment to the request log
func (e *Engine) AddComment(ctx context.Context, requestID, userID, text string) (*entity.ApprovalRequest, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: comment text is required", ErrInvalidInput)
	}
	author, err := e.chain.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return e.mutate(ctx, requestID, func(ctx context.Context, req *entity.ApprovalRequest) ([]*event.Event, error) {
		c := e.appendComment(req, author.ID, author.Name, author.Role, text, entity.CommentTypeComment)
		return []*event.Event{
			event.NewEvent(event.TypeCommentAdded, req.ID, userID, c.Timestamp,
				map[string]interface{}{"comment_id": c.ID}),
		}, nil
	})
}

// CompleteRequest closes out an approved request. Only the requestor or the
// final approver may do so.
func (e *Engine) CompleteRequest(ctx context.Context, requestID, userID string) (*entity.ApprovalRequest, error) {
	return e.mutate(ctx, requestID, func(ctx context.Context, req *entity.ApprovalRequest) ([]*event.Event, error) {
		if req.Status != workflow.StateApproved {
			return nil, fmt.Errorf("%w: request %s is %s, only approved requests can be completed", ErrInvalidState, req.ID, req.Status)
		}
		if userID != req.Requestor.ID && !isFinalApprover(req, userID) {
			return nil, fmt.Errorf("%w: user %s cannot complete request %s", ErrUnauthorized, userID, req.ID)
		}

		status, err := e.fire(ctx, req.Status, workflow.TriggerComplete)
		if err != nil {
			return nil, err
		}
		req.Status = status
		return []*event.Event{
			event.NewEvent(event.TypeRequestCompleted, req.ID, userID, e.now(), nil),
		}, nil
	})
}

// GetRequest returns a copy of the request
func (e *Engine) GetRequest(ctx context.Context, requestID string) (*entity.ApprovalRequest, error) {
	return e.load(ctx, requestID)
}

type mutation func(ctx context.Context, req *entity.ApprovalRequest) ([]*event.Event, error)

// mutate applies fn to one request as a single atomic unit: lock the
// request, read, validate and change it, save it, then publish. A failing fn
// leaves the stored request untouched.
func (e *Engine) mutate(ctx context.Context, requestID string, fn mutation) (*entity.ApprovalRequest, error) {
	unlock := e.locks.Lock(requestID)
	defer unlock()

	var (
		updated *entity.ApprovalRequest
		events  []*event.Event
	)
	err := e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.load(txCtx, requestID)
		if err != nil {
			return err
		}
		if events, err = fn(txCtx, req); err != nil {
			return err
		}
		if err := e.store.Save(txCtx, req); err != nil {
			return fmt.Errorf("save request %s: %w", requestID, err)
		}
		updated = req
		return nil
	})
	if err != nil {
		e.logger.Debug("Request operation refused", zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}

	for _, evt := range events {
		e.logger.Info("Request updated",
			zap.String("request_id", requestID),
			zap.String("event", evt.Type.String()),
			zap.String("status", updated.Status.String()))
		e.publisher.Publish(ctx, evt)
	}
	return updated.Clone(), nil
}

func (e *Engine) load(ctx context.Context, requestID string) (*entity.ApprovalRequest, error) {
	req, err := e.store.Get(ctx, requestID)
	if errors.Is(err, port.ErrRequestNotFound) || (err == nil && req == nil) {
		return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", requestID, err)
	}
	return req, nil
}

// fire maps lifecycle violations onto ErrInvalidState
func (e *Engine) fire(ctx context.Context, current workflow.State, trigger workflow.Trigger) (workflow.State, error) {
	next, err := workflow.Transition(ctx, current, trigger)
	if err != nil {
		return current, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return next, nil
}

func (e *Engine) appendComment(req *entity.ApprovalRequest, authorID, authorName, authorRole, text string, kind entity.CommentType) entity.ApprovalComment {
	c := entity.ApprovalComment{
		ID:         e.newID(),
		AuthorID:   authorID,
		AuthorName: authorName,
		AuthorRole: authorRole,
		Text:       text,
		Timestamp:  e.now(),
		Type:       kind,
	}
	req.Comments = append(req.Comments, c)
	return c
}

func isFinalApprover(req *entity.ApprovalRequest, userID string) bool {
	n := len(req.ApprovalChain)
	return n > 0 && req.ApprovalChain[n-1].ApproverID == userID
}

// keyedMutex hands out one mutex per request ID and forgets it once no
// goroutine holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
