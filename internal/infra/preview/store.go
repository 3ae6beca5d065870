// Package preview keeps pending avatar uploads in memory so the wizard can
// show them before the account exists. Every handle is released exactly once,
// either explicitly or by expiry.
package preview

import (
	"errors"
	"sync/atomic"
	"time"

	"velvet-metal/internal/infra/metrics"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

var ErrNotFound = errors.New("preview not found or released")

// Item is a pending file.
type Item struct {
	Data        []byte
	ContentType string
	FileName    string
}

// Store holds previews keyed by an opaque token.
type Store struct {
	cache *gocache.Cache
	live  atomic.Int64
}

func NewStore(ttl, cleanupInterval time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	s := &Store{cache: gocache.New(ttl, cleanupInterval)}
	// Explicit Delete also fires OnEvicted, so this is the single place the
	// live count goes down.
	s.cache.OnEvicted(func(string, interface{}) {
		metrics.SetAvatarPreviewsLive(s.live.Add(-1))
	})
	return s
}

// Put stores a file and returns its handle token.
func (s *Store) Put(it Item) string {
	token := uuid.NewString()
	s.cache.SetDefault(token, &it)
	metrics.SetAvatarPreviewsLive(s.live.Add(1))
	return token
}

// Get returns the stored file.
func (s *Store) Get(token string) (*Item, error) {
	v, ok := s.cache.Get(token)
	if !ok {
		return nil, ErrNotFound
	}
	it, ok := v.(*Item)
	if !ok {
		return nil, ErrNotFound
	}
	return it, nil
}

// Release frees a handle. Releasing an unknown or already released token is
// a no-op.
func (s *Store) Release(token string) {
	if token == "" {
		return
	}
	s.cache.Delete(token)
}

// Live is the number of handles not yet released.
func (s *Store) Live() int64 { return s.live.Load() }
