package repository

import (
	"context"

	"velvet-metal/internal/domain/model"
)

// TierRepository is the port for subscription tier persistence.
type TierRepository interface {
	Save(ctx context.Context, tx Tx, tier *model.SubscriptionTier) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.SubscriptionTier, error)
	// ListAll returns every tier ordered by ascending price.
	ListAll(ctx context.Context, tx Tx) ([]*model.SubscriptionTier, error)
	Delete(ctx context.Context, tx Tx, id string) error
}
