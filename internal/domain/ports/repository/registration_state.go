package repository

import (
	"context"

	"velvet-metal/internal/wizard"
)

// RegistrationStateRepository caches a wizard session between requests. It is
// a cache only: the step in the request URL always wins over the stored one.
type RegistrationStateRepository interface {
	SetState(ctx context.Context, sessionID string, state *wizard.State) error
	GetState(ctx context.Context, sessionID string) (*wizard.State, error)
	ClearState(ctx context.Context, sessionID string) error
}
