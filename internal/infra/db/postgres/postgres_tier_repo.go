package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
)

var _ repository.TierRepository = (*PostgresTierRepo)(nil)

type PostgresTierRepo struct {
	pool *pgxpool.Pool
}

func NewTierRepo(pool *pgxpool.Pool) *PostgresTierRepo {
	return &PostgresTierRepo{pool: pool}
}

func (r *PostgresTierRepo) Save(ctx context.Context, tx repository.Tx, t *model.SubscriptionTier) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	features, err := json.Marshal(t.Features)
	if err != nil {
		return fmt.Errorf("encode tier features: %w", err)
	}
	const sql = `
INSERT INTO subscription_tiers (id, name, tier, price, features)
VALUES ($1, $2, $3, $4::numeric, $5::jsonb)
ON CONFLICT (id) DO UPDATE
  SET name     = EXCLUDED.name,
      tier     = EXCLUDED.tier,
      price    = EXCLUDED.price,
      features = EXCLUDED.features;
`
	_, err = exec.Exec(ctx, sql, t.ID, t.Name, t.TierLabel, t.Price.StringFixed(2), string(features))
	if err != nil {
		return fmt.Errorf("save tier: %w", err)
	}
	return nil
}

const selectTierColumns = `SELECT id, name, tier, price::text, features FROM subscription_tiers`

func (r *PostgresTierRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionTier, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	t, err := scanTier(exec.QueryRow(ctx, selectTierColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find tier: %w", err)
	}
	return t, nil
}

func (r *PostgresTierRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionTier, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, selectTierColumns+` ORDER BY price ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var out []*model.SubscriptionTier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresTierRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	var cnt int
	if err := exec.QueryRow(ctx, `SELECT COUNT(1) FROM profiles WHERE tier_id = $1`, id).Scan(&cnt); err != nil {
		return fmt.Errorf("count tier profiles: %w", err)
	}
	if cnt > 0 {
		return fmt.Errorf("cannot delete tier %s: %d profiles use it: %w", id, cnt, domain.ErrAlreadyExists)
	}
	ct, err := exec.Exec(ctx, `DELETE FROM subscription_tiers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tier: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTier(row pgx.Row) (*model.SubscriptionTier, error) {
	var (
		t        model.SubscriptionTier
		price    string
		features []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.TierLabel, &price, &features); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("tier %s price %q: %w", t.ID, price, err)
	}
	t.Price = p
	t.Features = map[string]model.FeatureValue{}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &t.Features); err != nil {
			return nil, fmt.Errorf("tier %s features: %w", t.ID, err)
		}
	}
	return &t, nil
}
