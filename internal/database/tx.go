package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type TxOptions struct {
	IsolationLevel sql.IsolationLevel
	ReadOnly       bool
	MaxRetries     int
}

func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		ReadOnly:       false,
		MaxRetries:     3,
	}
}

// SnapshotTxOptions gives a read-only transaction in which every statement
// sees the same snapshot.
func SnapshotTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelRepeatableRead,
		ReadOnly:       true,
	}
}

func WithTransaction(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	commitFailed, err := runTx(ctx, db, opts, fn)
	if commitFailed {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return err
}

// WithRetry runs fn in a transaction, retrying deadlocks, serialization
// failures and lock timeouts with jittered exponential backoff. Any other
// error is returned after a single rollback.
func WithRetry(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	var lastErr error
	backoff := 50 * time.Millisecond

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		commitFailed, err := runTx(ctx, db, opts, fn)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			if commitFailed {
				return fmt.Errorf("commit transaction: %w", err)
			}
			return err
		}

		if attempt == opts.MaxRetries {
			if ClassifyError(err) == ErrorClassTransient {
				return fmt.Errorf("%w after %d retries: %v", ErrLockTimeout, opts.MaxRetries, err)
			}
			return fmt.Errorf("max retries (%d) exceeded: %w", opts.MaxRetries, err)
		}
		lastErr = err

		jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	return lastErr
}

func runTx(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) (commitFailed bool, err error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{
		Isolation: opts.IsolationLevel,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return false, fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return true, err
	}
	return false, nil
}
