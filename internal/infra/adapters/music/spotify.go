package music

import (
	"context"
	"errors"
	"fmt"

	"velvet-metal/internal/config"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/adapter"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var _ adapter.MusicConnector = (*SpotifyConnector)(nil)

// SpotifyConnector links a Spotify account and pulls the saved library once.
type SpotifyConnector struct {
	oauth   *oauth2.Config
	baseURL string
	limiter *rate.Limiter
}

func NewSpotifyConnector(cfg config.OAuthClientConfig, redirectURL string, rps float64) *SpotifyConnector {
	authURL, tokenURL := spotifyauth.AuthURL, spotifyauth.TokenURL
	if cfg.AuthURL != "" {
		authURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		tokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{
			spotifyauth.ScopeUserLibraryRead,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopeUserReadEmail,
		}
	}
	return &SpotifyConnector{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		baseURL: cfg.APIBaseURL,
		limiter: newLimiter(rps),
	}
}

func (c *SpotifyConnector) Service() model.Service { return model.ServiceSpotify }

func (c *SpotifyConnector) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

func (c *SpotifyConnector) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("spotify token exchange: %w", err)
	}
	return tok, nil
}

// ImportLibrary walks saved tracks, saved albums and playlists.
func (c *SpotifyConnector) ImportLibrary(ctx context.Context, tok *oauth2.Token) (adapter.ImportStats, *oauth2.Token, error) {
	ts := c.oauth.TokenSource(ctx, tok)
	opts := []spotify.ClientOption{spotify.WithRetry(true)}
	if c.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(c.baseURL))
	}
	api := spotify.New(oauth2.NewClient(ctx, ts), opts...)

	var stats adapter.ImportStats

	if err := c.limiter.Wait(ctx); err != nil {
		return stats, tok, err
	}
	tracks, err := api.CurrentUsersTracks(ctx, spotify.Limit(50))
	if err != nil {
		return stats, tok, fmt.Errorf("fetching saved tracks: %w", err)
	}
	for {
		stats.Tracks += len(tracks.Tracks)
		if err := c.limiter.Wait(ctx); err != nil {
			return stats, tok, err
		}
		if done, err := pageDone(api.NextPage(ctx, tracks)); done {
			if err != nil {
				return stats, tok, err
			}
			break
		}
	}

	albums, err := api.CurrentUsersAlbums(ctx, spotify.Limit(50))
	if err != nil {
		return stats, tok, fmt.Errorf("fetching saved albums: %w", err)
	}
	for {
		stats.Albums += len(albums.Albums)
		if err := c.limiter.Wait(ctx); err != nil {
			return stats, tok, err
		}
		if done, err := pageDone(api.NextPage(ctx, albums)); done {
			if err != nil {
				return stats, tok, err
			}
			break
		}
	}

	playlists, err := api.CurrentUsersPlaylists(ctx, spotify.Limit(50))
	if err != nil {
		return stats, tok, fmt.Errorf("fetching playlists: %w", err)
	}
	for {
		stats.Playlists += len(playlists.Playlists)
		if err := c.limiter.Wait(ctx); err != nil {
			return stats, tok, err
		}
		if done, err := pageDone(api.NextPage(ctx, playlists)); done {
			if err != nil {
				return stats, tok, err
			}
			break
		}
	}

	fresh, err := ts.Token()
	if err != nil {
		return stats, tok, nil
	}
	return stats, fresh, nil
}

// pageDone maps the result of NextPage to (exhausted, error).
func pageDone(err error) (bool, error) {
	if errors.Is(err, spotify.ErrNoMorePages) {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("fetching next page: %w", err)
	}
	return false, nil
}
