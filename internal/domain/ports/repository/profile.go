package repository

import (
	"context"

	"velvet-metal/internal/domain/model"
)

// ProfileRepository stores the per-user profile row keyed by the identity
// provider's user id.
type ProfileRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Profile) error
	FindByUserID(ctx context.Context, tx Tx, userID string) (*model.Profile, error)
	UpdateAvatarURL(ctx context.Context, tx Tx, userID, avatarURL string) error
	UpdateTier(ctx context.Context, tx Tx, userID, tierID string) error
	CountProfiles(ctx context.Context, tx Tx) (int, error)
}
