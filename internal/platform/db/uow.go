package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx. Repositories
// accept a Querier so the same code runs inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UnitOfWork executes a function against the store under whatever atomicity
// the deployment provides. Call sites never branch on transaction support;
// they pick a runner once at startup.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(context.Context, Querier) error) error
}

// TxRunner runs each unit inside a RepeatableRead transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner constructs the transactional runner.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// Run executes fn inside a transaction, rolling back on error.
func (r *TxRunner) Run(ctx context.Context, fn func(context.Context, Querier) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// BestEffortRunner executes the unit directly against the pool. A failure
// partway through leaves partially applied state; deployments choose this
// runner only when the store cannot provide multi-statement transactions.
type BestEffortRunner struct {
	pool *pgxpool.Pool
}

// NewBestEffortRunner constructs the non-transactional runner and records the
// degraded atomicity in the log so operators can see it.
func NewBestEffortRunner(pool *pgxpool.Pool, logger *slog.Logger) *BestEffortRunner {
	if logger != nil {
		logger.Warn("unit of work running without transactions; partial postings possible on failure")
	}
	return &BestEffortRunner{pool: pool}
}

// Run executes fn without a surrounding transaction.
func (r *BestEffortRunner) Run(ctx context.Context, fn func(context.Context, Querier) error) error {
	return fn(ctx, r.pool)
}
