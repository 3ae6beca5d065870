package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"velvet-metal/internal/domain/ports/repository"
	"velvet-metal/internal/infra/metrics"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager runs a unit of repository work inside one pgx transaction. The
// pgx.Tx is handed to fn as the repository.Tx argument.
type TxManager struct {
	pool    *pgxpool.Pool
	retries int
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool, retries: 2}
}

// WithTx commits when fn returns nil and rolls back otherwise. Serialization
// failures and deadlocks rerun fn from the start, so fn must only touch the
// database through tx.
func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := m.run(ctx, txOpt, fn)
		switch {
		case err == nil:
			metrics.IncTransaction("commit")
			return nil
		case attempt < m.retries && isRetryable(err) && ctx.Err() == nil:
			metrics.IncTransaction("retry")
		default:
			metrics.IncTransaction("rollback")
			return err
		}
	}
}

func (m *TxManager) run(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, txOpt)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapPgError(err))
	}
	return nil
}
