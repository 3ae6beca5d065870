package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"net/url"
	"sync"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/ports/repository"
	"velvet-metal/internal/infra/logging"
	"velvet-metal/internal/infra/metrics"
	"velvet-metal/internal/infra/preview"
	"velvet-metal/internal/wizard"

	"github.com/rs/zerolog"
)

var _ WizardUseCase = (*wizardUC)(nil)

// AccountInput is the account step form as posted.
type AccountInput struct {
	Email           string
	DisplayName     string
	Password        string
	ConfirmPassword string
}

// AvatarUpload is one file from the avatar picker.
type AvatarUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// WizardUseCase owns a session's wizard state: it loads it from the URL and
// the step cache, applies events, and keeps side resources (avatar
// previews) in step with the state.
type WizardUseCase interface {
	// Load resolves the state for a request. Without a step in q it is a
	// fresh entry and the session is reset. A step past the account step
	// without a registered user yields the account state and
	// wizard.ErrNotRegistered; the services step without a tier yields the
	// subscription state and wizard.ErrTierRequired.
	Load(ctx context.Context, sessionID string, q url.Values) (wizard.State, error)
	// Current returns the cached state without any reconciliation.
	Current(ctx context.Context, sessionID string) (wizard.State, error)
	SubmitAccount(ctx context.Context, sessionID, clientIP string, in AccountInput) (wizard.State, *RegistrationOutcome, error)
	AttachAvatar(ctx context.Context, sessionID string, up AvatarUpload) (wizard.State, error)
	RemoveAvatar(ctx context.Context, sessionID string) (wizard.State, error)
	SelectTier(ctx context.Context, sessionID, tierID string) (wizard.State, error)
	Continue(ctx context.Context, sessionID string) (wizard.State, error)
	Back(ctx context.Context, sessionID string) (wizard.State, error)
	// Complete re-checks the completion gate against stored connections and
	// then runs commit. The session is cleared only when commit succeeds.
	Complete(ctx context.Context, sessionID string, commit func(wizard.State) error) (wizard.State, wizard.Gate, error)
}

// WizardConfig carries the tunables of the wizard session.
type WizardConfig struct {
	AvatarMaxBytes int64
}

type wizardUC struct {
	states   repository.RegistrationStateRepository
	profiles repository.ProfileRepository
	reg      RegistrationUseCase
	tiers    TierUseCase
	conns    ConnectionUseCase
	previews AvatarPreviews
	locks    sessionLocks
	cfg      WizardConfig
	log      *zerolog.Logger
}

func NewWizardUseCase(
	states repository.RegistrationStateRepository,
	profiles repository.ProfileRepository,
	reg RegistrationUseCase,
	tiers TierUseCase,
	conns ConnectionUseCase,
	previews AvatarPreviews,
	cfg WizardConfig,
	logger *zerolog.Logger,
) *wizardUC {
	return &wizardUC{
		states:   states,
		profiles: profiles,
		reg:      reg,
		tiers:    tiers,
		conns:    conns,
		previews: previews,
		cfg:      cfg,
		log:      logger,
	}
}

// sessionLocks serialises requests of one session over a fixed set of
// mutexes.
type sessionLocks struct {
	mu [64]sync.Mutex
}

func (l *sessionLocks) lock(sessionID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	m := &l.mu[h.Sum32()%uint32(len(l.mu))]
	m.Lock()
	return m.Unlock
}

// cached returns the stored state or a fresh one when nothing is cached.
func (u *wizardUC) cached(ctx context.Context, sessionID string) (wizard.State, error) {
	st, err := u.states.GetState(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return wizard.New(), nil
	}
	if err != nil {
		return wizard.New(), err
	}
	return *st, nil
}

func (u *wizardUC) Current(ctx context.Context, sessionID string) (wizard.State, error) {
	return u.cached(ctx, sessionID)
}

func (u *wizardUC) Load(ctx context.Context, sessionID string, q url.Values) (wizard.State, error) {
	defer u.locks.lock(sessionID)()
	log := logging.With(ctx, u.log)

	prev, err := u.cached(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Msg("step cache read failed")
	}

	step, ok := wizard.StepFromQuery(q)
	if !ok {
		// Fresh entry.
		if prev.Form.Avatar != nil {
			u.previews.Release(prev.Form.Avatar.Token)
		}
		if err := u.states.ClearState(ctx, sessionID); err != nil {
			log.Warn().Err(err).Msg("step cache clear failed")
		}
		return wizard.New(), nil
	}

	next, err := wizard.Reduce(prev, wizard.Restore{Step: step})
	if errors.Is(err, wizard.ErrTierRequired) {
		prev.Step = wizard.StepSubscription
		return prev, err
	}
	if err != nil {
		prev.Step = wizard.StepAccount
		return prev, err
	}
	if err := u.persist(ctx, sessionID, prev, next); err != nil {
		log.Warn().Err(err).Msg("step cache write failed")
	}
	return next, nil
}

// apply reduces ev against the cached state and persists the result.
func (u *wizardUC) apply(ctx context.Context, sessionID string, ev wizard.Event) (wizard.State, error) {
	prev, err := u.cached(ctx, sessionID)
	if err != nil {
		return prev, err
	}
	next, err := wizard.Reduce(prev, ev)
	if err != nil {
		return prev, err
	}
	return next, u.persist(ctx, sessionID, prev, next)
}

// persist writes next and frees any avatar preview that prev held and next
// dropped.
func (u *wizardUC) persist(ctx context.Context, sessionID string, prev, next wizard.State) error {
	if ref := wizard.ReleasedAvatar(prev, next); ref != nil {
		u.previews.Release(ref.Token)
	}
	if prev.Step != next.Step {
		metrics.IncWizardTransition(prev.Step.String(), next.Step.String())
	}
	return u.states.SetState(ctx, sessionID, &next)
}

func (u *wizardUC) SubmitAccount(ctx context.Context, sessionID, clientIP string, in AccountInput) (wizard.State, *RegistrationOutcome, error) {
	defer u.locks.lock(sessionID)()

	prev, err := u.cached(ctx, sessionID)
	if err != nil {
		return prev, nil, err
	}
	st := prev
	for _, ev := range []wizard.EditField{
		{Field: wizard.FieldEmail, Value: in.Email},
		{Field: wizard.FieldDisplayName, Value: in.DisplayName},
		{Field: wizard.FieldPassword, Value: in.Password},
		{Field: wizard.FieldConfirmPassword, Value: in.ConfirmPassword},
	} {
		if st, err = wizard.Reduce(st, ev); err != nil {
			return prev, nil, err
		}
	}

	next, outcome, err := u.reg.Submit(ctx, clientIP, st)
	if err != nil {
		// Keep what was typed, minus passwords, for the re-rendered form.
		_ = u.states.SetState(ctx, sessionID, &st)
		return st, nil, err
	}
	// The pipeline already released the uploaded preview.
	prev.Form.Avatar = nil
	return next, outcome, u.persist(ctx, sessionID, prev, next)
}

func (u *wizardUC) AttachAvatar(ctx context.Context, sessionID string, up AvatarUpload) (wizard.State, error) {
	defer u.locks.lock(sessionID)()

	contentType, err := wizard.ValidateAvatar(up.FileName, up.ContentType, up.Data, u.cfg.AvatarMaxBytes)
	if err != nil {
		st, _ := u.cached(ctx, sessionID)
		return st, err
	}
	token := u.previews.Put(preview.Item{Data: up.Data, ContentType: contentType, FileName: up.FileName})
	st, err := u.apply(ctx, sessionID, wizard.AttachAvatar{Ref: wizard.AvatarRef{
		Token:       token,
		FileName:    up.FileName,
		ContentType: contentType,
		Size:        int64(len(up.Data)),
	}})
	if err != nil {
		u.previews.Release(token)
	}
	return st, err
}

func (u *wizardUC) RemoveAvatar(ctx context.Context, sessionID string) (wizard.State, error) {
	defer u.locks.lock(sessionID)()
	return u.apply(ctx, sessionID, wizard.RemoveAvatar{})
}

func (u *wizardUC) SelectTier(ctx context.Context, sessionID, tierID string) (wizard.State, error) {
	defer u.locks.lock(sessionID)()

	tiers, err := u.tiers.List(ctx)
	if err != nil {
		logging.With(ctx, u.log).Error().Err(err).Msg("tier list unavailable")
	}
	return u.apply(ctx, sessionID, wizard.SelectTier{TierID: tierID, Offered: tierIDs(tiers)})
}

func (u *wizardUC) Continue(ctx context.Context, sessionID string) (wizard.State, error) {
	defer u.locks.lock(sessionID)()

	st, err := u.apply(ctx, sessionID, wizard.Continue{})
	if err != nil || st.Step != wizard.StepServices {
		return st, err
	}
	if err := u.profiles.UpdateTier(ctx, repository.NoTX, st.UserID, st.SelectedTierID); err != nil {
		logging.With(ctx, u.log).Error().Err(err).Str("user_id", st.UserID).Msg("tier not saved on profile")
	}
	return st, nil
}

func (u *wizardUC) Back(ctx context.Context, sessionID string) (wizard.State, error) {
	defer u.locks.lock(sessionID)()
	return u.apply(ctx, sessionID, wizard.Back{})
}

func (u *wizardUC) Complete(ctx context.Context, sessionID string, commit func(wizard.State) error) (wizard.State, wizard.Gate, error) {
	defer u.locks.lock(sessionID)()

	prev, err := u.cached(ctx, sessionID)
	if err != nil {
		return prev, wizard.Gate{}, err
	}
	conns, err := u.conns.Statuses(ctx, prev.UserID)
	if err != nil {
		logging.With(ctx, u.log).Error().Err(err).Msg("connection status unavailable")
	}
	gate := wizard.CompletionGate(conns)
	next, err := wizard.Reduce(prev, wizard.Complete{Gate: gate})
	if err != nil {
		return prev, gate, err
	}
	if commit != nil {
		if err := commit(next); err != nil {
			return prev, gate, err
		}
	}

	if ref := wizard.ReleasedAvatar(prev, wizard.New()); ref != nil {
		u.previews.Release(ref.Token)
	}
	if err := u.states.ClearState(ctx, sessionID); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("step cache clear failed")
	}
	return next, gate, nil
}
