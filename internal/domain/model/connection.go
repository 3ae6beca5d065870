package model

import (
	"strings"
	"time"

	"velvet-metal/internal/domain"
)

// Service identifies an external music-streaming provider.
type Service string

const (
	ServiceSpotify    Service = "spotify"
	ServiceAppleMusic Service = "apple-music"
	ServiceTidal      Service = "tidal"
)

// Services lists the supported providers in display order.
var Services = []Service{ServiceSpotify, ServiceAppleMusic, ServiceTidal}

func (s Service) String() string { return string(s) }

// DisplayName is the provider's brand name.
func (s Service) DisplayName() string {
	switch s {
	case ServiceSpotify:
		return "Spotify"
	case ServiceAppleMusic:
		return "Apple Music"
	case ServiceTidal:
		return "Tidal"
	default:
		return string(s)
	}
}

// ParseService accepts the canonical names plus a couple of loose spellings
// seen in callback URLs.
func ParseService(s string) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spotify":
		return ServiceSpotify, nil
	case "apple-music", "apple_music", "applemusic":
		return ServiceAppleMusic, nil
	case "tidal":
		return ServiceTidal, nil
	}
	return "", domain.ErrUnknownService
}

// ServiceConnection is a user's link to one provider. A nil LastLibrarySync
// means the one-time library import has not finished yet.
type ServiceConnection struct {
	UserID          string     `json:"user_id"`
	Service         Service    `json:"service"`
	AccessToken     string     `json:"-"`
	RefreshToken    string     `json:"-"`
	TokenExpiry     time.Time  `json:"-"`
	ConnectedAt     time.Time  `json:"connected_at"`
	LastLibrarySync *time.Time `json:"last_library_sync"`
}

// Syncing reports whether the library import is still running.
func (c *ServiceConnection) Syncing() bool { return c.LastLibrarySync == nil }

// MarkSynced stamps the completion time of the import.
func (c *ServiceConnection) MarkSynced(at time.Time) {
	t := at.UTC()
	c.LastLibrarySync = &t
}

// NewServiceConnection builds a fresh connection with the import pending.
func NewServiceConnection(userID string, svc Service) (*ServiceConnection, error) {
	if userID == "" || svc == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &ServiceConnection{
		UserID:      userID,
		Service:     svc,
		ConnectedAt: time.Now().UTC(),
	}, nil
}
