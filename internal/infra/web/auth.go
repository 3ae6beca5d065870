package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ===== Session/JWT primitives =====

const (
	wizardCookieName  = "vm_wizard"
	sessionCookieName = "vm_session"

	audWizard  = "wizard"
	audSession = "session"
	audState   = "oauth_state"

	wizardTTL = 2 * time.Hour
	stateTTL  = 10 * time.Minute
)

type AuthConfig struct {
	HMACSecret   []byte
	CookieDomain string
	SecureCookie bool
	TTL          time.Duration // user session lifetime
}

// AuthManager signs the cookies of the onboarding flow and the OAuth state
// parameter. Everything is an HS256 JWT told apart by its audience.
type AuthManager struct {
	cfg AuthConfig
	now func() time.Time
}

func NewAuthManager(secret string, secure bool, domain string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &AuthManager{
		cfg: AuthConfig{
			HMACSecret:   []byte(secret),
			CookieDomain: domain, // "" is fine if you want host-only cookie
			SecureCookie: secure, // true in prod (TLS)
			TTL:          ttl,
		},
		now: time.Now,
	}
}

type StateClaims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

func (a *AuthManager) sign(audience, subject string, ttl time.Duration, extra string) (string, error) {
	now := a.now()
	claims := StateClaims{
		Service: extra,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.HMACSecret)
}

func (a *AuthManager) parse(tok, audience string) (*StateClaims, error) {
	claims := &StateClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.cfg.HMACSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (a *AuthManager) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   a.cfg.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		// Lax so the cookie survives the redirect back from a provider.
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthManager) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   a.cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// WizardSession returns the wizard session id from the request, or "".
func (a *AuthManager) WizardSession(r *http.Request) string {
	c, err := r.Cookie(wizardCookieName)
	if err != nil {
		return ""
	}
	claims, err := a.parse(c.Value, audWizard)
	if err != nil {
		return ""
	}
	return claims.Subject
}

// EnsureWizardSession returns the current wizard session id, minting a new
// one when the request carries none. The cookie is refreshed either way.
func (a *AuthManager) EnsureWizardSession(w http.ResponseWriter, r *http.Request) (string, error) {
	id := a.WizardSession(r)
	if id == "" {
		id = uuid.NewString()
	}
	signed, err := a.sign(audWizard, id, wizardTTL, "")
	if err != nil {
		return "", err
	}
	a.setCookie(w, wizardCookieName, signed, wizardTTL)
	return id, nil
}

func (a *AuthManager) ClearWizard(w http.ResponseWriter) {
	a.clearCookie(w, wizardCookieName)
}

// MintSession issues the signed-in session for userID.
func (a *AuthManager) MintSession(w http.ResponseWriter, userID string) (string, error) {
	signed, err := a.sign(audSession, userID, a.cfg.TTL, "")
	if err != nil {
		return "", err
	}
	a.setCookie(w, sessionCookieName, signed, a.cfg.TTL)
	return signed, nil
}

func (a *AuthManager) Clear(w http.ResponseWriter) {
	a.clearCookie(w, sessionCookieName)
}

// SessionUser returns the signed-in user id from the bearer header or the
// session cookie.
func (a *AuthManager) SessionUser(r *http.Request) (string, error) {
	// Authorization: Bearer <jwt>
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			return a.subject(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return a.subject(c.Value)
	}
	return "", errors.New("missing token")
}

func (a *AuthManager) subject(tok string) (string, error) {
	claims, err := a.parse(tok, audSession)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// IssueState mints the OAuth state parameter for a connect flow.
func (a *AuthManager) IssueState(userID string, svc model.Service) (string, error) {
	return a.sign(audState, userID, stateTTL, svc.String())
}

func (a *AuthManager) ParseState(token string) (string, model.Service, error) {
	claims, err := a.parse(token, audState)
	if err != nil {
		return "", "", domain.ErrUnauthorized
	}
	svc, err := model.ParseService(claims.Service)
	if err != nil {
		return "", "", domain.ErrUnauthorized
	}
	return claims.Subject, svc, nil
}
