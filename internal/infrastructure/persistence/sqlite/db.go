package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/site-approval/internal/application/port"
)

type txContextKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB is the request store's transaction manager. The open transaction
// travels in the context, so stores called from inside WithTransaction
// share it without extra parameters.
type DB struct {
	sqlDB  *sql.DB
	logger *zap.Logger
}

var _ port.TransactionManager = (*DB)(nil)

// NewDB wraps an open connection pool
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{sqlDB: sqlDB, logger: logger}
}

// WithTransaction runs fn in a transaction carried by the context passed to
// it. A call made while a transaction is already open joins it; only the
// outermost call commits or rolls back.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	start := time.Now()
	tx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			db.rollback(tx)
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		db.rollback(tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.logger.Debug("Transaction committed", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (db *DB) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		db.logger.Error("Failed to rollback transaction", zap.Error(err))
	}
}

// conn returns the transaction in ctx, or the pool outside a transaction
func (db *DB) conn(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db.sqlDB
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx
}
