package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/site-approval/internal/application/port"
	"github.com/garyjia/site-approval/internal/domain/entity"
)

// RequestStore implements port.RequestStore on SQLite. The full request,
// chain and comments included, is stored as one JSON document; the columns
// beside it only serve filtering and ordering.
type RequestStore struct {
	db     *DB
	logger *zap.Logger
}

// NewRequestStore creates a new request store
func NewRequestStore(db *DB, logger *zap.Logger) *RequestStore {
	return &RequestStore{
		db:     db,
		logger: logger,
	}
}

// Create implements port.RequestStore
func (s *RequestStore) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request %s: %w", req.ID, err)
	}

	query := `
		INSERT INTO approval_requests (
			id, type, status, requestor_id, org_unit_id,
			created_at, submitted_at, completed_at, document
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.conn(ctx).ExecContext(ctx, query,
		req.ID,
		string(req.Type),
		req.Status.String(),
		req.Requestor.ID,
		req.Requestor.OrgUnitID,
		req.CreatedAt.UnixNano(),
		unixNano(req.SubmittedAt),
		unixNano(req.CompletedAt),
		string(doc),
	)
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("%w: %s", port.ErrRequestExists, req.ID)
	}
	if err != nil {
		s.logger.Error("Failed to create request", zap.String("request_id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// Get implements port.RequestStore
func (s *RequestStore) Get(ctx context.Context, id string) (*entity.ApprovalRequest, error) {
	var doc string
	err := s.db.conn(ctx).QueryRowContext(ctx,
		"SELECT document FROM approval_requests WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", port.ErrRequestNotFound, id)
	}
	if err != nil {
		s.logger.Error("Failed to get request", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return decode(doc)
}

// Save implements port.RequestStore
func (s *RequestStore) Save(ctx context.Context, req *entity.ApprovalRequest) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request %s: %w", req.ID, err)
	}

	query := `
		UPDATE approval_requests
		SET type = ?, status = ?, requestor_id = ?, org_unit_id = ?,
			submitted_at = ?, completed_at = ?, document = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := s.db.conn(ctx).ExecContext(ctx, query,
		string(req.Type),
		req.Status.String(),
		req.Requestor.ID,
		req.Requestor.OrgUnitID,
		unixNano(req.SubmittedAt),
		unixNano(req.CompletedAt),
		string(doc),
		req.ID,
	)
	if err != nil {
		s.logger.Error("Failed to save request", zap.String("request_id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to save request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", port.ErrRequestNotFound, req.ID)
	}
	return nil
}

// List implements port.RequestStore
func (s *RequestStore) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status.String())
	}
	if filter.OrgUnitID != "" {
		where = append(where, "org_unit_id = ?")
		args = append(args, filter.OrgUnitID)
	}
	if filter.RequestorID != "" {
		where = append(where, "requestor_id = ?")
		args = append(args, filter.RequestorID)
	}
	if filter.CreatedAfter != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedAfter.UnixNano())
	}
	if filter.CreatedBefore != nil {
		where = append(where, "created_at <= ?")
		args = append(args, filter.CreatedBefore.UnixNano())
	}

	query := "SELECT document FROM approval_requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := make([]*entity.ApprovalRequest, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		req, err := decode(doc)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func decode(doc string) (*entity.ApprovalRequest, error) {
	var req entity.ApprovalRequest
	if err := json.Unmarshal([]byte(doc), &req); err != nil {
		return nil, fmt.Errorf("failed to decode request document: %w", err)
	}
	return &req, nil
}

func unixNano(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

var _ port.RequestStore = (*RequestStore)(nil)
