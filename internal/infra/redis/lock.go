package redis

import (
	"context"
	"fmt"
	"time"

	"velvet-metal/internal/domain"

	"github.com/google/uuid"
)

// Locker hands out short exclusive leases on a key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RedisLocker keeps at most one library import per connection running
// across all server instances.
type RedisLocker struct {
	client RedisClient
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{client: c}
}

// TryLock takes the lease or returns domain.ErrImportInProgress if another
// holder has it.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl)
	if err != nil {
		return "", fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return "", domain.ErrImportInProgress
	}
	return token, nil
}

// Unlock releases the lease only if token still owns it.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.client.CompareAndDel(ctx, key, token)
	return err
}

func ImportLockKey(userID, service string) string {
	return fmt.Sprintf("import_lock:%s:%s", userID, service)
}
