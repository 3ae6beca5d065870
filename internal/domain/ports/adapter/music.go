package adapter

import (
	"context"

	"velvet-metal/internal/domain/model"

	"golang.org/x/oauth2"
)

// ImportStats summarises one library import.
type ImportStats struct {
	Tracks    int
	Albums    int
	Playlists int
}

// MusicConnector is the hex port for one streaming provider.
type MusicConnector interface {
	Service() model.Service
	// AuthURL is the provider consent page; state round-trips to the callback.
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	// ImportLibrary walks the user's library once. It may refresh the token;
	// the returned token is the one to persist.
	ImportLibrary(ctx context.Context, tok *oauth2.Token) (ImportStats, *oauth2.Token, error)
}
