package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/domain/ports/adapter"
	"velvet-metal/internal/domain/ports/repository"
	"velvet-metal/internal/infra/worker"
	"velvet-metal/internal/wizard"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

var fastRetry = retryConfig{maxAttempts: 2, baseDelay: time.Millisecond, maxDelay: time.Millisecond}

// --- repositories ---

type memTierRepo struct {
	mu       sync.Mutex
	tiers    []*model.SubscriptionTier
	failures int // ListAll fails this many times before succeeding
	listCall int
}

func (m *memTierRepo) Save(ctx context.Context, tx repository.Tx, t *model.SubscriptionTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers = append(m.tiers, t)
	return nil
}
func (m *memTierRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := model.FindTier(m.tiers, id); t != nil {
		return t, nil
	}
	return nil, domain.ErrNotFound
}
func (m *memTierRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCall++
	if m.listCall <= m.failures {
		return nil, errors.New("connection refused")
	}
	out := make([]*model.SubscriptionTier, len(m.tiers))
	copy(out, m.tiers)
	return out, nil
}
func (m *memTierRepo) Delete(ctx context.Context, tx repository.Tx, id string) error { return nil }

type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: map[string]*model.Profile{}}
}

func (m *memProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}
func (m *memProfileRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
func (m *memProfileRepo) UpdateAvatarURL(ctx context.Context, tx repository.Tx, userID, avatarURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return domain.ErrNotFound
	}
	p.AvatarURL = avatarURL
	return nil
}
func (m *memProfileRepo) UpdateTier(ctx context.Context, tx repository.Tx, userID, tierID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return domain.ErrNotFound
	}
	p.TierID = tierID
	return nil
}
func (m *memProfileRepo) CountProfiles(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles), nil
}

type connKey struct {
	user string
	svc  model.Service
}

type memConnRepo struct {
	mu       sync.Mutex
	rows     map[connKey]*model.ServiceConnection
	failures int
	listCall int
	markErr  error
	txSeen   []repository.Tx // tx handles passed to writes
}

func newMemConnRepo() *memConnRepo {
	return &memConnRepo{rows: map[connKey]*model.ServiceConnection{}}
}

func (m *memConnRepo) Upsert(ctx context.Context, tx repository.Tx, c *model.ServiceConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txSeen = append(m.txSeen, tx)
	cp := *c
	m.rows[connKey{c.UserID, c.Service}] = &cp
	return nil
}
func (m *memConnRepo) Find(ctx context.Context, tx repository.Tx, userID string, svc model.Service) (*model.ServiceConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[connKey{userID, svc}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}
func (m *memConnRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.ServiceConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCall++
	if m.listCall <= m.failures {
		return nil, errors.New("connection refused")
	}
	var out []*model.ServiceConnection
	for _, svc := range model.Services {
		if c, ok := m.rows[connKey{userID, svc}]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (m *memConnRepo) MarkSynced(ctx context.Context, tx repository.Tx, userID string, svc model.Service, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txSeen = append(m.txSeen, tx)
	if m.markErr != nil {
		return m.markErr
	}
	c, ok := m.rows[connKey{userID, svc}]
	if !ok {
		return domain.ErrNotFound
	}
	c.MarkSynced(at)
	return nil
}
func (m *memConnRepo) ListStale(ctx context.Context, tx repository.Tx, connectedBefore time.Time, limit int) ([]*model.ServiceConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ServiceConnection
	for _, c := range m.rows {
		if c.Syncing() && c.ConnectedAt.Before(connectedBefore) && len(out) < limit {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (m *memConnRepo) Delete(ctx context.Context, tx repository.Tx, userID string, svc model.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, connKey{userID, svc})
	return nil
}

// snapshot and restore let memTxManager roll the rows back.
func (m *memConnRepo) snapshot() map[connKey]model.ServiceConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[connKey]model.ServiceConnection, len(m.rows))
	for k, c := range m.rows {
		out[k] = *c
	}
	return out
}

func (m *memConnRepo) restore(rows map[connKey]model.ServiceConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make(map[connKey]*model.ServiceConnection, len(rows))
	for k, c := range rows {
		cp := c
		m.rows[k] = &cp
	}
}

type memTx struct{ id int }

// memTxManager runs fn with a fresh memTx and undoes the connection rows
// written by fn when it fails.
type memTxManager struct {
	conns *memConnRepo
	calls int
}

func (m *memTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.calls++
	var before map[connKey]model.ServiceConnection
	if m.conns != nil {
		before = m.conns.snapshot()
	}
	if err := fn(ctx, &memTx{id: m.calls}); err != nil {
		if m.conns != nil {
			m.conns.restore(before)
		}
		return err
	}
	return nil
}

type memStateRepo struct {
	mu     sync.Mutex
	states map[string]wizard.State
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{states: map[string]wizard.State{}}
}

func (m *memStateRepo) SetState(ctx context.Context, sessionID string, s *wizard.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	// mirror the JSON cache: passwords never survive
	cp.Form.Password, cp.Form.ConfirmPassword = "", ""
	m.states[sessionID] = cp
	return nil
}
func (m *memStateRepo) GetState(ctx context.Context, sessionID string) (*wizard.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}
func (m *memStateRepo) ClearState(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
	return nil
}

// --- collaborators ---

type fakeIdentity struct {
	RegisterFunc func(ctx context.Context, email, password, displayName string) (*adapter.Identity, error)
	calls        int
}

func (f *fakeIdentity) Register(ctx context.Context, email, password, displayName string) (*adapter.Identity, error) {
	f.calls++
	if f.RegisterFunc != nil {
		return f.RegisterFunc(ctx, email, password, displayName)
	}
	return &adapter.Identity{ID: "user-1", Email: email, DisplayName: displayName}, nil
}
func (f *fakeIdentity) CurrentUser(ctx context.Context, accessToken string) (*adapter.Identity, error) {
	return nil, domain.ErrUnauthorized
}

type fakeStorage struct {
	UploadFunc func(ctx context.Context, bucket, path, contentType string, data []byte) (string, error)
	calls      int
	lastPath   string
	lastBucket string
}

func (f *fakeStorage) Upload(ctx context.Context, bucket, path, contentType string, data []byte) (string, error) {
	f.calls++
	f.lastPath, f.lastBucket = path, bucket
	if f.UploadFunc != nil {
		return f.UploadFunc(ctx, bucket, path, contentType, data)
	}
	return "https://cdn.test/" + bucket + "/" + path, nil
}
func (f *fakeStorage) Remove(ctx context.Context, bucket, path string) error { return nil }

type fakeLimiter struct{ allow bool }

func (f fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return f.allow, nil
}

type fakeConnector struct {
	svc      model.Service
	imports  int
	importFn func(tok *oauth2.Token) (adapter.ImportStats, *oauth2.Token, error)
}

func (f *fakeConnector) Service() model.Service      { return f.svc }
func (f *fakeConnector) AuthURL(state string) string { return "https://auth.test/" + string(f.svc) + "?state=" + state }
func (f *fakeConnector) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "bad" {
		return nil, errors.New("invalid_grant")
	}
	return &oauth2.Token{AccessToken: "at-" + code, RefreshToken: "rt"}, nil
}
func (f *fakeConnector) ImportLibrary(ctx context.Context, tok *oauth2.Token) (adapter.ImportStats, *oauth2.Token, error) {
	f.imports++
	if f.importFn != nil {
		return f.importFn(tok)
	}
	return adapter.ImportStats{Tracks: 10}, tok, nil
}

// fakeStates encodes the state as "user|service".
type fakeStates struct{}

func (fakeStates) IssueState(userID string, svc model.Service) (string, error) {
	return userID + "|" + string(svc), nil
}
func (fakeStates) ParseState(token string) (string, model.Service, error) {
	for i := 0; i < len(token); i++ {
		if token[i] == '|' {
			return token[:i], model.Service(token[i+1:]), nil
		}
	}
	return "", "", domain.ErrUnauthorized
}

// heldQueue keeps submitted tasks until the test runs them.
type heldQueue struct {
	tasks []worker.Task
	full  bool
}

func (q *heldQueue) Submit(task worker.Task) error {
	if q.full {
		return worker.ErrQueueFull
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *heldQueue) drain(ctx context.Context) error {
	tasks := q.tasks
	q.tasks = nil
	for _, t := range tasks {
		if err := t(ctx); err != nil {
			return err
		}
	}
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]string{}} }

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrImportInProgress
	}
	l.held[key] = "lease"
	return "lease", nil
}
func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}
