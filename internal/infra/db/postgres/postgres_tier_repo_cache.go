package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/repository"
	"velvet-metal/internal/infra/metrics"
	red "velvet-metal/internal/infra/redis"

	"github.com/rs/zerolog"
)

var _ repository.TierRepository = (*tierRepoCacheDecorator)(nil)

const tierListKey = "tiers:all"

type tierRepoCacheDecorator struct {
	inner  repository.TierRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewTierRepoCacheDecorator(inner repository.TierRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.TierRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &tierRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func tierKey(id string) string { return fmt.Sprintf("tier:%s", id) }

func (d *tierRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionTier, error) {
	key := tierKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var t model.SubscriptionTier
		if json.Unmarshal([]byte(val), &t) == nil {
			metrics.IncCacheRequest(metrics.CacheTier, metrics.CacheHit)
			return &t, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.logger.Warn().Err(err).Str("key", key).Msg("tier cache read failed")
	}

	metrics.IncCacheRequest(metrics.CacheTier, metrics.CacheMiss)
	t, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(t); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return t, nil
}

func (d *tierRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionTier, error) {
	val, err := d.cache.Get(ctx, tierListKey)
	if err == nil {
		var tiers []*model.SubscriptionTier
		if json.Unmarshal([]byte(val), &tiers) == nil {
			metrics.IncCacheRequest(metrics.CacheTierList, metrics.CacheHit)
			return tiers, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.logger.Warn().Err(err).Msg("tier list cache read failed")
	}

	metrics.IncCacheRequest(metrics.CacheTierList, metrics.CacheMiss)
	tiers, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(tiers) > 0 {
		if b, err := json.Marshal(tiers); err == nil {
			_ = d.cache.Set(ctx, tierListKey, b, d.ttl)
		}
	}
	return tiers, nil
}

// Writes invalidate both the item and the list.
func (d *tierRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, t *model.SubscriptionTier) error {
	_ = d.cache.Del(ctx, tierKey(t.ID), tierListKey)
	return d.inner.Save(ctx, tx, t)
}

func (d *tierRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, id string) error {
	_ = d.cache.Del(ctx, tierKey(id), tierListKey)
	return d.inner.Delete(ctx, tx, id)
}
