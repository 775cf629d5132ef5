package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so repo
// methods can run either standalone or inside a unit-of-work.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const txAttempts = 3

// WithTx runs fn inside a transaction: all writes commit together or roll
// back together. Serialization/deadlock failures (SQLSTATE 40001, 40P01) are
// retried with exponential backoff; everything else propagates immediately.
func WithTx(ctx context.Context, db *pgxpool.Pool, fn func(q Querier) error) error {
	backoff := 20 * time.Millisecond
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		err = runTx(ctx, db, fn)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func runTx(ctx context.Context, db *pgxpool.Pool, fn func(q Querier) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// Runner lets services take the unit-of-work as a dependency.
type Runner struct{ DB *pgxpool.Pool }

func (r Runner) WithTx(ctx context.Context, fn func(q Querier) error) error {
	return WithTx(ctx, r.DB, fn)
}
