//go:build !integration

package web

import (
	"context"
	"net/url"
	"sync"
	"time"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/infra/i18n"
	"velvet-metal/internal/infra/logging"
	"velvet-metal/internal/infra/preview"
	"velvet-metal/internal/usecase"
	"velvet-metal/internal/wizard"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// --- use case fakes ---

type fakeWizard struct {
	mu          sync.Mutex
	state       wizard.State
	loadErr     error
	submitFn    func(in usecase.AccountInput) (wizard.State, *usecase.RegistrationOutcome, error)
	attachErr   error
	completeErr error
	uploads     []usecase.AvatarUpload
	sessions    map[string]bool
}

func (f *fakeWizard) get(sess string) wizard.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions == nil {
		f.sessions = map[string]bool{}
	}
	f.sessions[sess] = true
	return f.state
}

func (f *fakeWizard) set(st wizard.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = st
}

func (f *fakeWizard) Load(ctx context.Context, sess string, q url.Values) (wizard.State, error) {
	st := f.get(sess)
	if f.loadErr != nil {
		return st, f.loadErr
	}
	if step, ok := wizard.StepFromQuery(q); ok {
		st.Step = step
	}
	return st, nil
}
func (f *fakeWizard) Current(ctx context.Context, sess string) (wizard.State, error) {
	return f.get(sess), nil
}
func (f *fakeWizard) SubmitAccount(ctx context.Context, sess, ip string, in usecase.AccountInput) (wizard.State, *usecase.RegistrationOutcome, error) {
	f.get(sess)
	return f.submitFn(in)
}
func (f *fakeWizard) AttachAvatar(ctx context.Context, sess string, up usecase.AvatarUpload) (wizard.State, error) {
	st := f.get(sess)
	f.mu.Lock()
	f.uploads = append(f.uploads, up)
	f.mu.Unlock()
	if f.attachErr != nil {
		return st, f.attachErr
	}
	return st, nil
}
func (f *fakeWizard) RemoveAvatar(ctx context.Context, sess string) (wizard.State, error) {
	return f.get(sess), nil
}
func (f *fakeWizard) SelectTier(ctx context.Context, sess, tierID string) (wizard.State, error) {
	st := f.get(sess)
	if tierID == "" {
		return st, wizard.ErrTierRequired
	}
	st.SelectedTierID = tierID
	f.set(st)
	return st, nil
}
func (f *fakeWizard) Continue(ctx context.Context, sess string) (wizard.State, error) {
	st := f.get(sess)
	if st.Step == wizard.StepAccount && st.Registered() {
		st.Step = wizard.StepSubscription
		f.set(st)
		return st, nil
	}
	if st.SelectedTierID == "" {
		return st, wizard.ErrTierRequired
	}
	st.Step = wizard.StepServices
	f.set(st)
	return st, nil
}
func (f *fakeWizard) Back(ctx context.Context, sess string) (wizard.State, error) {
	st := f.get(sess)
	st.Step, _ = st.Step.Prev()
	f.set(st)
	return st, nil
}
func (f *fakeWizard) Complete(ctx context.Context, sess string, commit func(wizard.State) error) (wizard.State, wizard.Gate, error) {
	st := f.get(sess)
	if f.completeErr != nil {
		return st, wizard.Gate{Blocker: wizard.BlockerNoServices}, f.completeErr
	}
	next := st
	next.Completed = true
	if commit != nil {
		if err := commit(next); err != nil {
			return st, wizard.Gate{}, err
		}
	}
	f.set(wizard.New())
	return next, wizard.Gate{}, nil
}

type fakeTiers struct{ tiers []*model.SubscriptionTier }

func (f *fakeTiers) List(ctx context.Context) ([]*model.SubscriptionTier, error) { return f.tiers, nil }
func (f *fakeTiers) Get(ctx context.Context, id string) (*model.SubscriptionTier, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeTiers) Save(ctx context.Context, t *model.SubscriptionTier) error { return nil }

type fakeConns struct {
	mu          sync.Mutex
	conns       []*model.ServiceConnection
	completes   int
	completeErr error
}

func (f *fakeConns) setConns(c ...*model.ServiceConnection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = c
}

func (f *fakeConns) Available() []model.Service { return []model.Service{model.ServiceSpotify} }
func (f *fakeConns) BeginConnect(ctx context.Context, userID string, svc model.Service) (string, error) {
	if svc != model.ServiceSpotify {
		return "", domain.ErrConnectorDisabled
	}
	return "https://accounts.spotify.test/authorize?state=s", nil
}
func (f *fakeConns) CompleteConnect(ctx context.Context, svc model.Service, state, code string) (*model.ServiceConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return model.NewServiceConnection("user-1", svc)
}
func (f *fakeConns) Statuses(ctx context.Context, userID string) ([]*model.ServiceConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.ServiceConnection, len(f.conns))
	for i, c := range f.conns {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}
func (f *fakeConns) RunImport(ctx context.Context, userID string, svc model.Service) error { return nil }
func (f *fakeConns) ResumeStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	return 0, nil
}

// --- fixture ---

type webFixture struct {
	h        *Handlers
	router   chi.Router
	wiz      *fakeWizard
	conns    *fakeConns
	previews *preview.Store
	auth     *AuthManager
}

func newWebFixture() *webFixture {
	tmpl, err := NewTemplates(nil)
	if err != nil {
		panic(err)
	}
	free, _ := model.NewSubscriptionTier("free", "Free", "free", decimal.Zero, nil)
	pro, _ := model.NewSubscriptionTier("pro", "Pro", "pro", decimal.RequireFromString("9.99"),
		map[string]model.FeatureValue{"hifi": model.BoolFeature(true)})

	f := &webFixture{
		wiz:      &fakeWizard{state: wizard.New()},
		conns:    &fakeConns{},
		previews: preview.NewStore(time.Minute, time.Minute),
		auth:     NewAuthManager(testSecret, false, "", time.Hour),
	}
	f.h = NewHandlers(f.wiz, &fakeTiers{tiers: []*model.SubscriptionTier{free, pro}}, f.conns, f.previews,
		f.auth, tmpl, i18n.MustDefault(),
		HandlersConfig{PollInterval: 10 * time.Millisecond, Heartbeat: time.Hour, AvatarMaxBytes: 1024},
		logging.Nop())
	f.router = chi.NewRouter()
	f.h.Routes(f.router, 5*time.Second)
	return f
}

func registeredAt(step wizard.Step) wizard.State {
	st := wizard.State{Step: step, UserID: "user-1", Form: wizard.Form{Email: "ada@example.com", DisplayName: "Ada"}}
	// Services is only reachable with a plan.
	if step == wizard.StepServices {
		st.SelectedTierID = "plus"
	}
	return st
}
