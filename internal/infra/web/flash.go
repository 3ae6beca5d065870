package web

import (
	"errors"
	"net/http"
	"strings"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/infra/i18n"
	"velvet-metal/internal/wizard"

	"github.com/dustin/go-humanize"
)

// errorFlash maps an error to the message and status of the re-rendered
// page. Unexpected errors get a generic message and 500.
func errorFlash(tr *i18n.Translator, err error, maxAvatar int64) (*FlashMessage, int) {
	msg := func(key string, args ...interface{}) *FlashMessage {
		return &FlashMessage{Type: "error", Message: tr.T(key, args...)}
	}
	switch {
	case errors.Is(err, wizard.ErrPasswordMismatch):
		return msg("err.password_mismatch"), http.StatusBadRequest
	case errors.Is(err, wizard.ErrMissingField):
		return msg("err.missing_field"), http.StatusBadRequest
	case errors.Is(err, wizard.ErrInvalidEmail):
		return msg("err.invalid_email"), http.StatusBadRequest
	case errors.Is(err, wizard.ErrPasswordTooShort):
		return msg("err.password_too_short", wizard.MinPasswordLength), http.StatusBadRequest
	case errors.Is(err, wizard.ErrAvatarTooLarge):
		return msg("err.avatar_too_large", humanize.IBytes(uint64(maxAvatar))), http.StatusRequestEntityTooLarge
	case errors.Is(err, wizard.ErrAvatarNotImage):
		return msg("err.avatar_not_image"), http.StatusUnsupportedMediaType
	case errors.Is(err, wizard.ErrAvatarEmpty):
		return msg("err.avatar_empty"), http.StatusBadRequest
	case errors.Is(err, wizard.ErrTierRequired):
		return msg("err.tier_required"), http.StatusBadRequest
	case errors.Is(err, wizard.ErrUnknownTier):
		return msg("err.unknown_tier"), http.StatusBadRequest
	case errors.Is(err, wizard.ErrNotRegistered):
		return msg("err.not_registered"), http.StatusConflict
	case errors.Is(err, wizard.ErrWrongStep):
		return msg("err.wrong_step"), http.StatusConflict
	case errors.Is(err, wizard.ErrCompletionBlocked):
		return msg("err.completion_blocked"), http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return msg("err.rate_limited"), http.StatusTooManyRequests
	case errors.Is(err, domain.ErrIdentityRejected):
		return msg("err.identity_rejected", providerReason(err)), http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConnectorDisabled):
		return msg("err.connector_disabled"), http.StatusNotFound
	default:
		return msg("err.unavailable"), http.StatusInternalServerError
	}
}

// providerReason strips the sentinel suffix from a wrapped identity error,
// leaving the provider's own message.
func providerReason(err error) string {
	s := err.Error()
	suffix := ": " + domain.ErrIdentityRejected.Error()
	if i := strings.LastIndex(s, suffix); i > 0 {
		return s[:i]
	}
	return domain.ErrIdentityRejected.Error()
}

// noticeFlash renders the ?notice= parameter of a redirect. Only known
// notice keys are shown.
func noticeFlash(tr *i18n.Translator, notice string, args ...interface{}) *FlashMessage {
	if notice == "" {
		return nil
	}
	key := "notice." + notice
	if !tr.Has(key) {
		return nil
	}
	return &FlashMessage{Type: "info", Message: tr.T(key, args...)}
}
