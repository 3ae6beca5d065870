// Package wizard holds the registration wizard: its ordered steps, the form
// it collects, and the single transition function that moves between them.
//
// The package is pure. Network calls, storage and rendering live in the
// use-case and web layers, which feed events in and act on the returned state.
package wizard

import (
	"net/mail"
	"strings"
)

// MinPasswordLength mirrors the identity provider's own minimum so the user
// sees the error before a round trip.
const MinPasswordLength = 6

// AvatarRef points at a pending avatar preview held outside the state.
type AvatarRef struct {
	Token       string `json:"token"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Form holds the account step's fields. Passwords are never serialised.
type Form struct {
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	Password        string     `json:"-"`
	ConfirmPassword string     `json:"-"`
	Avatar          *AvatarRef `json:"avatar,omitempty"`
}

// State is everything the wizard knows about one session.
type State struct {
	Step           Step   `json:"step"`
	Form           Form   `json:"form"`
	SelectedTierID string `json:"selected_tier_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Completed      bool   `json:"completed,omitempty"`
}

// New returns the state of a fresh wizard entry.
func New() State { return State{Step: StepAccount} }

// Registered reports whether step 1 has committed.
func (s State) Registered() bool { return s.UserID != "" }

// Field names a text input on the account step.
type Field string

const (
	FieldEmail           Field = "email"
	FieldDisplayName     Field = "display_name"
	FieldPassword        Field = "password"
	FieldConfirmPassword Field = "confirm_password"
)

// ValidateAccount checks the account form before any identity call. The
// password comparison comes first so a mismatch is reported even when other
// fields are also wrong.
func ValidateAccount(f Form) error {
	if f.Password != f.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if strings.TrimSpace(f.Email) == "" || strings.TrimSpace(f.DisplayName) == "" || f.Password == "" {
		return ErrMissingField
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(f.Email)); err != nil {
		return ErrInvalidEmail
	}
	if len(f.Password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
