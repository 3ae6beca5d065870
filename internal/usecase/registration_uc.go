package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/adapter"
	"velvet-metal/internal/domain/ports/repository"
	"velvet-metal/internal/infra/logging"
	"velvet-metal/internal/infra/metrics"
	"velvet-metal/internal/infra/preview"
	red "velvet-metal/internal/infra/redis"
	"velvet-metal/internal/wizard"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var _ RegistrationUseCase = (*registrationUC)(nil)

// AvatarPreviews holds avatar bytes between upload and registration.
type AvatarPreviews interface {
	Put(item preview.Item) string
	Get(token string) (*preview.Item, error)
	Release(token string)
}

// SignupLimiter counts attempts per key inside a window.
type SignupLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RegistrationOutcome reports the non-fatal parts of a registration.
type RegistrationOutcome struct {
	UserID    string
	AvatarURL string
	// AvatarErr is set when the account was created but the avatar could not
	// be stored. The wizard still advances.
	AvatarErr error
}

// RegistrationUseCase runs the account step's pipeline:
// validate, register, upload avatar, attach avatar.
type RegistrationUseCase interface {
	Submit(ctx context.Context, clientIP string, s wizard.State) (wizard.State, *RegistrationOutcome, error)
}

// RegistrationConfig carries the tunables of the pipeline.
type RegistrationConfig struct {
	AvatarBucket    string
	SignupRateLimit int
	SignupWindow    time.Duration
	Dev             bool
}

type registrationUC struct {
	identity adapter.IdentityProvider
	storage  adapter.BlobStorage
	profiles repository.ProfileRepository
	previews AvatarPreviews
	limiter  SignupLimiter
	cfg      RegistrationConfig
	log      *zerolog.Logger
}

func NewRegistrationUseCase(
	identity adapter.IdentityProvider,
	storage adapter.BlobStorage,
	profiles repository.ProfileRepository,
	previews AvatarPreviews,
	limiter SignupLimiter,
	cfg RegistrationConfig,
	logger *zerolog.Logger,
) *registrationUC {
	if cfg.AvatarBucket == "" {
		cfg.AvatarBucket = "avatars"
	}
	return &registrationUC{
		identity: identity,
		storage:  storage,
		profiles: profiles,
		previews: previews,
		limiter:  limiter,
		cfg:      cfg,
		log:      logger,
	}
}

// Submit returns s unchanged with an error when anything before the
// identity provider's acceptance fails. After acceptance it always returns
// the advanced state; avatar problems are reported in the outcome.
func (u *registrationUC) Submit(ctx context.Context, clientIP string, s wizard.State) (wizard.State, *RegistrationOutcome, error) {
	defer logging.TraceDuration(u.log, "RegistrationUC.Submit")()
	log := logging.With(ctx, u.log)

	if err := wizard.ValidateAccount(s.Form); err != nil {
		metrics.IncRegistration("invalid")
		return s, nil, err
	}

	if u.limiter != nil && u.cfg.SignupRateLimit > 0 {
		ok, err := u.limiter.Allow(ctx, red.SignupKey(clientIP), u.cfg.SignupRateLimit, u.cfg.SignupWindow)
		if err != nil {
			log.Warn().Err(err).Msg("signup rate limiter unavailable")
		} else if !ok {
			metrics.IncRegistration("rate_limited")
			return s, nil, domain.ErrRateLimited
		}
	}

	id, err := u.identity.Register(ctx, s.Form.Email, s.Form.Password, s.Form.DisplayName)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityRejected) {
			metrics.IncRegistration("rejected")
		} else {
			metrics.IncRegistration("error")
		}
		log.Warn().Err(err).Str("email", logging.Redact(s.Form.Email, u.cfg.Dev)).Msg("registration failed")
		return s, nil, err
	}

	avatar := s.Form.Avatar
	next, err := wizard.Reduce(s, wizard.AccountCreated{UserID: id.ID})
	if err != nil {
		// Validated above; only an empty id from the provider gets here.
		metrics.IncRegistration("error")
		return s, nil, fmt.Errorf("identity provider returned no user id: %w", err)
	}
	metrics.IncRegistration("ok")
	log.Info().Str("user_id", id.ID).Msg("account created")

	out := &RegistrationOutcome{UserID: id.ID}

	profile, err := model.NewProfile(id.ID, s.Form.Email, s.Form.DisplayName)
	if err == nil {
		err = u.profiles.Save(ctx, repository.NoTX, profile)
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", id.ID).Msg("profile upsert failed")
	}

	if avatar != nil {
		out.AvatarURL, out.AvatarErr = u.attachAvatar(ctx, id.ID, avatar)
		u.previews.Release(avatar.Token)
		if out.AvatarErr != nil {
			metrics.IncAvatarUpload("failed")
			log.Warn().Err(out.AvatarErr).Str("user_id", id.ID).Msg("avatar upload failed")
		} else {
			metrics.IncAvatarUpload("ok")
		}
	}
	return next, out, nil
}

// attachAvatar uploads the pending preview to {userId}/{ulid}.{ext} and
// records the public URL on the profile.
func (u *registrationUC) attachAvatar(ctx context.Context, userID string, ref *wizard.AvatarRef) (string, error) {
	item, err := u.previews.Get(ref.Token)
	if err != nil {
		return "", fmt.Errorf("avatar preview %s: %w", ref.Token, err)
	}
	path := AvatarPath(userID, item.ContentType, item.FileName)
	publicURL, err := u.storage.Upload(ctx, u.cfg.AvatarBucket, path, item.ContentType, item.Data)
	if err != nil {
		return "", err
	}
	if err := u.profiles.UpdateAvatarURL(ctx, repository.NoTX, userID, publicURL); err != nil {
		return publicURL, fmt.Errorf("attach avatar url: %w", err)
	}
	return publicURL, nil
}

// AvatarPath is the object key for a new avatar. The user id prefix is what
// the bucket's access policy matches on.
func AvatarPath(userID, contentType, fileName string) string {
	return fmt.Sprintf("%s/%s.%s", userID, ulid.Make().String(), wizard.AvatarExtension(contentType, fileName))
}
