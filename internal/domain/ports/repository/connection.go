package repository

import (
	"context"
	"time"

	"velvet-metal/internal/domain/model"
)

// ConnectionRepository stores service connections keyed by (user_id, service).
type ConnectionRepository interface {
	// Upsert inserts or replaces the row. A reconnect resets last_library_sync
	// to the value carried by c.
	Upsert(ctx context.Context, tx Tx, c *model.ServiceConnection) error
	Find(ctx context.Context, tx Tx, userID string, svc model.Service) (*model.ServiceConnection, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.ServiceConnection, error)
	MarkSynced(ctx context.Context, tx Tx, userID string, svc model.Service, at time.Time) error
	// ListStale returns connections whose import started before the cutoff
	// and never finished.
	ListStale(ctx context.Context, tx Tx, connectedBefore time.Time, limit int) ([]*model.ServiceConnection, error)
	Delete(ctx context.Context, tx Tx, userID string, svc model.Service) error
}
