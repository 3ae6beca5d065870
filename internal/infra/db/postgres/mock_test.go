//go:build !integration

package postgres

import (
	"context"
	"time"

	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/repository"
	red "velvet-metal/internal/infra/redis"
)

// mockInnerTierRepo mocks the database repository that the tier decorator wraps.
type mockInnerTierRepo struct {
	SaveFunc     func(ctx context.Context, tx repository.Tx, t *model.SubscriptionTier) error
	DeleteFunc   func(ctx context.Context, tx repository.Tx, id string) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionTier, error)
	ListAllFunc  func(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionTier, error)
}

func (m *mockInnerTierRepo) Save(ctx context.Context, tx repository.Tx, t *model.SubscriptionTier) error {
	return m.SaveFunc(ctx, tx, t)
}
func (m *mockInnerTierRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	return m.DeleteFunc(ctx, tx, id)
}
func (m *mockInnerTierRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionTier, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerTierRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionTier, error) {
	return m.ListAllFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper. Unset funcs behave like an
// empty cache.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) CompareAndDel(ctx context.Context, key, value string) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Ping(ctx context.Context) error                      { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 1, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
