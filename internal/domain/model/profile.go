package model

import (
	"strings"
	"time"

	"velvet-metal/internal/domain"
)

// Profile mirrors the identity provider's user in our own tables.
type Profile struct {
	UserID      string
	Email       string
	DisplayName string
	AvatarURL   string
	TierID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewProfile(userID, email, displayName string) (*Profile, error) {
	if userID == "" || strings.TrimSpace(email) == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Profile{
		UserID:      userID,
		Email:       strings.ToLower(strings.TrimSpace(email)),
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (p *Profile) IsZero() bool { return p == nil || p.UserID == "" }
func (p *Profile) Touch()       { p.UpdatedAt = time.Now().UTC() }
