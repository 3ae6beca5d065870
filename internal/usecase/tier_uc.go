package usecase

import (
	"context"

	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/repository"
	"velvet-metal/internal/infra/logging"

	"github.com/rs/zerolog"
)

var _ TierUseCase = (*tierUC)(nil)

// TierUseCase serves the subscription tier catalogue.
type TierUseCase interface {
	// List returns every tier by ascending price. On failure the slice is
	// empty and the error says why.
	List(ctx context.Context) ([]*model.SubscriptionTier, error)
	Get(ctx context.Context, id string) (*model.SubscriptionTier, error)
	Save(ctx context.Context, t *model.SubscriptionTier) error
}

type tierUC struct {
	tiers repository.TierRepository
	retry retryConfig
	log   *zerolog.Logger
}

func NewTierUseCase(tiers repository.TierRepository, logger *zerolog.Logger) *tierUC {
	return &tierUC{tiers: tiers, retry: fetchRetry, log: logger}
}

func (u *tierUC) List(ctx context.Context) ([]*model.SubscriptionTier, error) {
	defer logging.TraceDuration(u.log, "TierUC.List")()

	tiers, err := retryWithBackoff(ctx, u.retry, u.log, "list tiers", func(ctx context.Context) ([]*model.SubscriptionTier, error) {
		return u.tiers.ListAll(ctx, repository.NoTX)
	})
	if err != nil {
		return []*model.SubscriptionTier{}, err
	}
	out := make([]*model.SubscriptionTier, len(tiers))
	copy(out, tiers)
	model.SortTiersByPrice(out)
	return out, nil
}

func (u *tierUC) Get(ctx context.Context, id string) (*model.SubscriptionTier, error) {
	return u.tiers.FindByID(ctx, repository.NoTX, id)
}

func (u *tierUC) Save(ctx context.Context, t *model.SubscriptionTier) error {
	return u.tiers.Save(ctx, repository.NoTX, t)
}

// tierIDs lists the ids of tiers in order.
func tierIDs(tiers []*model.SubscriptionTier) []string {
	ids := make([]string, 0, len(tiers))
	for _, t := range tiers {
		ids = append(ids, t.ID)
	}
	return ids
}
