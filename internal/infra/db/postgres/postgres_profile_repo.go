package postgres

import (
	"context"
	"errors"
	"fmt"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ProfileRepository = (*PostgresProfileRepo)(nil)

type PostgresProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *PostgresProfileRepo {
	return &PostgresProfileRepo{pool: pool}
}

func (r *PostgresProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.Profile) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO profiles (user_id, email, display_name, avatar_url, tier_id, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
ON CONFLICT (user_id) DO UPDATE SET
  email        = EXCLUDED.email,
  display_name = EXCLUDED.display_name,
  avatar_url   = EXCLUDED.avatar_url,
  tier_id      = EXCLUDED.tier_id,
  updated_at   = EXCLUDED.updated_at;
`
	if _, err := exec.Exec(ctx, q, p.UserID, p.Email, p.DisplayName, p.AvatarURL, p.TierID, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("save profile: %w", mapPgError(err))
	}
	return nil
}

func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT user_id, email, display_name, COALESCE(avatar_url, ''), COALESCE(tier_id, ''), created_at, updated_at
  FROM profiles WHERE user_id = $1;
`
	var p model.Profile
	err = exec.QueryRow(ctx, q, userID).Scan(&p.UserID, &p.Email, &p.DisplayName, &p.AvatarURL, &p.TierID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &p, nil
}

func (r *PostgresProfileRepo) UpdateAvatarURL(ctx context.Context, tx repository.Tx, userID, avatarURL string) error {
	return r.updateColumn(ctx, tx, `UPDATE profiles SET avatar_url = NULLIF($2, ''), updated_at = now() WHERE user_id = $1`, userID, avatarURL)
}

func (r *PostgresProfileRepo) UpdateTier(ctx context.Context, tx repository.Tx, userID, tierID string) error {
	return r.updateColumn(ctx, tx, `UPDATE profiles SET tier_id = NULLIF($2, ''), updated_at = now() WHERE user_id = $1`, userID, tierID)
}

func (r *PostgresProfileRepo) updateColumn(ctx context.Context, tx repository.Tx, q, userID, value string) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	ct, err := exec.Exec(ctx, q, userID, value)
	if err != nil {
		return fmt.Errorf("update profile: %w", mapPgError(err))
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresProfileRepo) CountProfiles(ctx context.Context, tx repository.Tx) (int, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := exec.QueryRow(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}
