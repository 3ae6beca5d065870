package wizard

import "errors"

// Validation and gating errors. None of them is ever returned together with
// a modified state.
var (
	ErrMissingField      = errors.New("required field is empty")
	ErrInvalidEmail      = errors.New("email address is not valid")
	ErrPasswordMismatch  = errors.New("passwords do not match")
	ErrPasswordTooShort  = errors.New("password is too short")
	ErrAvatarTooLarge    = errors.New("avatar file is too large")
	ErrAvatarNotImage    = errors.New("avatar file is not an image")
	ErrAvatarEmpty       = errors.New("avatar file is empty")
	ErrTierRequired      = errors.New("select a subscription tier to continue")
	ErrUnknownTier       = errors.New("selected tier is not offered")
	ErrNotRegistered     = errors.New("account has not been created yet")
	ErrWrongStep         = errors.New("action is not available on this step")
	ErrCompletionBlocked = errors.New("finish is not available yet")
)
