package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/ports/repository"
	"velvet-metal/internal/infra/metrics"
	"velvet-metal/internal/wizard"
)

var _ repository.RegistrationStateRepository = (*RegistrationStateRepo)(nil)

// RegistrationStateRepo caches wizard sessions so a reload keeps the form
// and tier selection. The URL decides the step; this is only a cache.
type RegistrationStateRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewRegistrationStateRepo(client RedisClient, ttl time.Duration) *RegistrationStateRepo {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RegistrationStateRepo{client: client, ttl: ttl}
}

func (s *RegistrationStateRepo) stateKey(sessionID string) string {
	return fmt.Sprintf("wizard:step:%s", sessionID)
}

func (s *RegistrationStateRepo) SetState(ctx context.Context, sessionID string, state *wizard.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(sessionID), data, s.ttl)
}

// GetState returns domain.ErrNotFound when nothing is cached.
func (s *RegistrationStateRepo) GetState(ctx context.Context, sessionID string) (*wizard.State, error) {
	data, err := s.client.Get(ctx, s.stateKey(sessionID))
	if errors.Is(err, Nil) {
		metrics.IncCacheRequest(metrics.CacheStep, metrics.CacheMiss)
		return nil, domain.ErrNotFound
	}
	if err != nil {
		metrics.IncCacheRequest(metrics.CacheStep, metrics.CacheError)
		return nil, err
	}
	metrics.IncCacheRequest(metrics.CacheStep, metrics.CacheHit)

	var state wizard.State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RegistrationStateRepo) ClearState(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.stateKey(sessionID))
}
