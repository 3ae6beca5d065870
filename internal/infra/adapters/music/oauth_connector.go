package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"velvet-metal/internal/config"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/adapter"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var _ adapter.MusicConnector = (*OAuthConnector)(nil)

// libraryPaths lists the collection endpoints walked for each provider,
// relative to the API base URL.
type libraryPaths struct {
	Tracks, Albums, Playlists string
}

var defaultLibraryPaths = map[model.Service]libraryPaths{
	model.ServiceAppleMusic: {
		Tracks:    "/v1/me/library/songs",
		Albums:    "/v1/me/library/albums",
		Playlists: "/v1/me/library/playlists",
	},
	model.ServiceTidal: {
		Tracks:    "/v2/userCollections/me/relationships/tracks",
		Albums:    "/v2/userCollections/me/relationships/albums",
		Playlists: "/v2/userCollections/me/relationships/playlists",
	},
}

// OAuthConnector serves providers that speak plain OAuth2 and return
// paginated JSON collections with a "data" array.
type OAuthConnector struct {
	service model.Service
	oauth   *oauth2.Config
	baseURL string
	paths   libraryPaths
	limiter *rate.Limiter
}

func NewOAuthConnector(svc model.Service, cfg config.OAuthClientConfig, redirectURL string, rps float64) (*OAuthConnector, error) {
	paths, ok := defaultLibraryPaths[svc]
	if !ok {
		return nil, fmt.Errorf("no library layout for %s", svc)
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("%s: auth_url, token_url and api_base_url are required", svc)
	}
	return &OAuthConnector{
		service: svc,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
		},
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		paths:   paths,
		limiter: newLimiter(rps),
	}, nil
}

func (c *OAuthConnector) Service() model.Service { return c.service }

func (c *OAuthConnector) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

func (c *OAuthConnector) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", c.service, err)
	}
	return tok, nil
}

func (c *OAuthConnector) ImportLibrary(ctx context.Context, tok *oauth2.Token) (adapter.ImportStats, *oauth2.Token, error) {
	ts := c.oauth.TokenSource(ctx, tok)
	hc := oauth2.NewClient(ctx, ts)

	var (
		stats adapter.ImportStats
		err   error
	)
	if stats.Tracks, err = c.count(ctx, hc, c.paths.Tracks); err != nil {
		return stats, tok, err
	}
	if stats.Albums, err = c.count(ctx, hc, c.paths.Albums); err != nil {
		return stats, tok, err
	}
	if stats.Playlists, err = c.count(ctx, hc, c.paths.Playlists); err != nil {
		return stats, tok, err
	}

	fresh, err := ts.Token()
	if err != nil {
		return stats, tok, nil
	}
	return stats, fresh, nil
}

type collectionPage struct {
	Data  []json.RawMessage `json:"data"`
	Next  string            `json:"next"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

func (p collectionPage) nextURL() string {
	if p.Next != "" {
		return p.Next
	}
	return p.Links.Next
}

// count walks one collection and returns the number of items.
func (c *OAuthConnector) count(ctx context.Context, hc *http.Client, path string) (int, error) {
	total := 0
	next := c.baseURL + path
	for next != "" {
		if err := c.limiter.Wait(ctx); err != nil {
			return total, err
		}
		page, err := c.fetch(ctx, hc, next)
		if err != nil {
			return total, err
		}
		total += len(page.Data)
		next, err = c.resolve(page.nextURL())
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// resolve turns a relative next link into an absolute URL on the API host.
func (c *OAuthConnector) resolve(next string) (string, error) {
	if next == "" {
		return "", nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%s next link %q: %w", c.service, next, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *OAuthConnector) fetch(ctx context.Context, hc *http.Client, u string) (*collectionPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("%s %s: %s: %s", c.service, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
	}
	var page collectionPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%s decode page: %w", c.service, err)
	}
	return &page, nil
}

var errNoConnectors = errors.New("no music connectors configured")

// NewConnectors builds a connector for every provider with a client id.
// Callback URLs are {baseURL}/register/callback/{service}.
func NewConnectors(cfg config.ConnectorsConfig, baseURL string) (map[model.Service]adapter.MusicConnector, error) {
	redirect := func(svc model.Service) string {
		return strings.TrimRight(baseURL, "/") + "/register/callback/" + string(svc)
	}
	out := map[model.Service]adapter.MusicConnector{}
	if cfg.Spotify.Enabled() {
		out[model.ServiceSpotify] = NewSpotifyConnector(cfg.Spotify, redirect(model.ServiceSpotify), cfg.RequestsPerSecond)
	}
	for svc, oc := range map[model.Service]config.OAuthClientConfig{
		model.ServiceAppleMusic: cfg.AppleMusic,
		model.ServiceTidal:      cfg.Tidal,
	} {
		if !oc.Enabled() {
			continue
		}
		conn, err := NewOAuthConnector(svc, oc, redirect(svc), cfg.RequestsPerSecond)
		if err != nil {
			return nil, err
		}
		out[svc] = conn
	}
	if len(out) == 0 {
		return out, errNoConnectors
	}
	return out, nil
}

// IsNoConnectors reports whether NewConnectors found nothing to enable.
func IsNoConnectors(err error) bool { return errors.Is(err, errNoConnectors) }
