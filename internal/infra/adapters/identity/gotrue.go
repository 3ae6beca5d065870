package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/ports/adapter"
)

var _ adapter.IdentityProvider = (*GoTrueClient)(nil)

// GoTrueClient implements adapter.IdentityProvider against a GoTrue
// compatible /auth/v1 REST API.
type GoTrueClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGoTrueClient(baseURL, apiKey string) (*GoTrueClient, error) {
	if baseURL == "" {
		return nil, errors.New("identity url empty")
	}
	return &GoTrueClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u gotrueUser) identity(token string) *adapter.Identity {
	name, _ := u.UserMetadata["display_name"].(string)
	return &adapter.Identity{ID: u.ID, Email: u.Email, DisplayName: name, AccessToken: token}
}

// Register calls POST /auth/v1/signup. When email confirmation is on the
// response carries the bare user and no session.
func (g *GoTrueClient) Register(ctx context.Context, email, password, displayName string) (*adapter.Identity, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"display_name": displayName},
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/auth/v1/signup", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := g.do(req)
	if err != nil {
		return nil, err
	}

	var out struct {
		AccessToken string      `json:"access_token"`
		User        *gotrueUser `json:"user"`
		gotrueUser
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode signup response: %w", err)
	}
	if out.User != nil {
		return out.User.identity(out.AccessToken), nil
	}
	if out.ID == "" {
		return nil, fmt.Errorf("signup response without user: %w", domain.ErrIdentityRejected)
	}
	return out.gotrueUser.identity(""), nil
}

// CurrentUser calls GET /auth/v1/user with the caller's token.
func (g *GoTrueClient) CurrentUser(ctx context.Context, accessToken string) (*adapter.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	body, err := g.do(req)
	if err != nil {
		return nil, err
	}
	var u gotrueUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return u.identity(accessToken), nil
}

func (g *GoTrueClient) do(req *http.Request) ([]byte, error) {
	if g.apiKey != "" {
		req.Header.Set("apikey", g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.ErrUnauthorized
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%s: %w", errorMessage(body, resp.Status), domain.ErrIdentityRejected)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("identity provider: %s", resp.Status)
	}
	return body, nil
}

// errorMessage digs the human-readable reason out of the error body shapes
// GoTrue has used over time.
func errorMessage(body []byte, fallback string) string {
	var e struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &e) == nil {
		for _, m := range []string{e.Msg, e.Message, e.ErrorDescription} {
			if m != "" {
				return m
			}
		}
	}
	return fallback
}
