package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ConnectionRepository = (*PostgresConnectionRepo)(nil)

// TokenSealer encrypts provider tokens at rest.
type TokenSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type PostgresConnectionRepo struct {
	pool   *pgxpool.Pool
	sealer TokenSealer
}

func NewConnectionRepo(pool *pgxpool.Pool, sealer TokenSealer) *PostgresConnectionRepo {
	return &PostgresConnectionRepo{pool: pool, sealer: sealer}
}

const selectConnectionColumns = `
SELECT user_id, service, access_token, refresh_token, token_expiry, connected_at, last_library_sync
  FROM service_connections`

func (r *PostgresConnectionRepo) Upsert(ctx context.Context, tx repository.Tx, c *model.ServiceConnection) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	access, err := r.sealer.Seal(c.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.sealer.Seal(c.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	var expiry *time.Time
	if !c.TokenExpiry.IsZero() {
		expiry = &c.TokenExpiry
	}
	const q = `
INSERT INTO service_connections
  (user_id, service, access_token, refresh_token, token_expiry, connected_at, last_library_sync)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, service) DO UPDATE SET
  access_token      = EXCLUDED.access_token,
  refresh_token     = EXCLUDED.refresh_token,
  token_expiry      = EXCLUDED.token_expiry,
  connected_at      = EXCLUDED.connected_at,
  last_library_sync = EXCLUDED.last_library_sync;
`
	_, err = exec.Exec(ctx, q, c.UserID, string(c.Service), access, refresh, expiry, c.ConnectedAt, c.LastLibrarySync)
	if err != nil {
		return fmt.Errorf("upsert connection: %w", mapPgError(err))
	}
	return nil
}

func (r *PostgresConnectionRepo) Find(ctx context.Context, tx repository.Tx, userID string, svc model.Service) (*model.ServiceConnection, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	c, err := r.scan(exec.QueryRow(ctx, selectConnectionColumns+` WHERE user_id = $1 AND service = $2`, userID, string(svc)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	return c, nil
}

func (r *PostgresConnectionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.ServiceConnection, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, selectConnectionColumns+` WHERE user_id = $1 ORDER BY connected_at, service`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return r.collect(rows)
}

func (r *PostgresConnectionRepo) MarkSynced(ctx context.Context, tx repository.Tx, userID string, svc model.Service, at time.Time) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	ct, err := exec.Exec(ctx, `UPDATE service_connections SET last_library_sync = $3 WHERE user_id = $1 AND service = $2`,
		userID, string(svc), at.UTC())
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresConnectionRepo) ListStale(ctx context.Context, tx repository.Tx, connectedBefore time.Time, limit int) ([]*model.ServiceConnection, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, selectConnectionColumns+`
 WHERE last_library_sync IS NULL AND connected_at < $1
 ORDER BY connected_at
 LIMIT $2`, connectedBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale connections: %w", err)
	}
	return r.collect(rows)
}

func (r *PostgresConnectionRepo) Delete(ctx context.Context, tx repository.Tx, userID string, svc model.Service) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	if _, err := exec.Exec(ctx, `DELETE FROM service_connections WHERE user_id = $1 AND service = $2`, userID, string(svc)); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

func (r *PostgresConnectionRepo) collect(rows pgx.Rows) ([]*model.ServiceConnection, error) {
	defer rows.Close()
	var out []*model.ServiceConnection
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresConnectionRepo) scan(row pgx.Row) (*model.ServiceConnection, error) {
	var (
		c       model.ServiceConnection
		svc     string
		access  string
		refresh string
		expiry  *time.Time
	)
	if err := row.Scan(&c.UserID, &svc, &access, &refresh, &expiry, &c.ConnectedAt, &c.LastLibrarySync); err != nil {
		return nil, err
	}
	c.Service = model.Service(svc)
	var err error
	if c.AccessToken, err = r.sealer.Open(access); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if c.RefreshToken, err = r.sealer.Open(refresh); err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	if expiry != nil {
		c.TokenExpiry = *expiry
	}
	return &c, nil
}
