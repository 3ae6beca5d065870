package adapter

import "context"

// Identity is the identity provider's view of a user.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
	AccessToken string
}

// IdentityProvider is the hex port for the hosted authentication backend.
type IdentityProvider interface {
	// Register creates an account. Rejections (duplicate email, weak
	// password) wrap domain.ErrIdentityRejected.
	Register(ctx context.Context, email, password, displayName string) (*Identity, error)
	// CurrentUser resolves an access token to its user.
	CurrentUser(ctx context.Context, accessToken string) (*Identity, error)
}
