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
	red "velvet-metal/internal/infra/redis"
	"velvet-metal/internal/infra/worker"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var _ ConnectionUseCase = (*connectionUC)(nil)

// OAuthStateSigner mints and checks the state parameter of the connect flow.
type OAuthStateSigner interface {
	IssueState(userID string, svc model.Service) (string, error)
	ParseState(token string) (userID string, svc model.Service, err error)
}

// ImportLocker keeps a single import per connection running.
type ImportLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// JobQueue accepts background work.
type JobQueue interface {
	Submit(task worker.Task) error
}

// ConnectionUseCase links streaming services and runs their one-time
// library import.
type ConnectionUseCase interface {
	// Available lists the services with a configured connector.
	Available() []model.Service
	BeginConnect(ctx context.Context, userID string, svc model.Service) (string, error)
	CompleteConnect(ctx context.Context, svc model.Service, state, code string) (*model.ServiceConnection, error)
	// Statuses reads the user's connections with one retry. On failure the
	// slice is empty.
	Statuses(ctx context.Context, userID string) ([]*model.ServiceConnection, error)
	RunImport(ctx context.Context, userID string, svc model.Service) error
	// ResumeStale re-queues imports that started before now-olderThan and
	// never finished.
	ResumeStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type connectionUC struct {
	conns      repository.ConnectionRepository
	connectors map[model.Service]adapter.MusicConnector
	states     OAuthStateSigner
	txm        repository.TransactionManager
	jobs       JobQueue
	locks      ImportLocker
	lockTTL    time.Duration
	retry      retryConfig
	log        *zerolog.Logger
}

func NewConnectionUseCase(
	conns repository.ConnectionRepository,
	connectors map[model.Service]adapter.MusicConnector,
	states OAuthStateSigner,
	txm repository.TransactionManager,
	jobs JobQueue,
	locks ImportLocker,
	logger *zerolog.Logger,
) *connectionUC {
	return &connectionUC{
		conns:      conns,
		connectors: connectors,
		states:     states,
		txm:        txm,
		jobs:       jobs,
		locks:      locks,
		lockTTL:    15 * time.Minute,
		retry:      fetchRetry,
		log:        logger,
	}
}

func (u *connectionUC) Available() []model.Service {
	var out []model.Service
	for _, svc := range model.Services {
		if _, ok := u.connectors[svc]; ok {
			out = append(out, svc)
		}
	}
	return out
}

func (u *connectionUC) connector(svc model.Service) (adapter.MusicConnector, error) {
	c, ok := u.connectors[svc]
	if !ok {
		return nil, fmt.Errorf("%s: %w", svc, domain.ErrConnectorDisabled)
	}
	return c, nil
}

func (u *connectionUC) BeginConnect(ctx context.Context, userID string, svc model.Service) (string, error) {
	if userID == "" {
		return "", domain.ErrUnauthorized
	}
	c, err := u.connector(svc)
	if err != nil {
		return "", err
	}
	state, err := u.states.IssueState(userID, svc)
	if err != nil {
		return "", fmt.Errorf("issue oauth state: %w", err)
	}
	return c.AuthURL(state), nil
}

// CompleteConnect stores the connection with its import pending and queues
// the import. A reconnect restarts the import.
func (u *connectionUC) CompleteConnect(ctx context.Context, svc model.Service, state, code string) (*model.ServiceConnection, error) {
	defer logging.TraceDuration(u.log, "ConnectionUC.CompleteConnect")()

	userID, stateSvc, err := u.states.ParseState(state)
	if err != nil || stateSvc != svc {
		return nil, domain.ErrUnauthorized
	}
	c, err := u.connector(svc)
	if err != nil {
		return nil, err
	}
	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	conn, err := model.NewServiceConnection(userID, svc)
	if err != nil {
		return nil, err
	}
	applyToken(conn, tok)
	if err := u.conns.Upsert(ctx, repository.NoTX, conn); err != nil {
		return nil, err
	}

	if err := u.enqueue(userID, svc); err != nil {
		// Left for the stale-sync sweep.
		u.log.Warn().Err(err).Str("user_id", userID).Str("service", svc.String()).Msg("import not queued")
	}
	return conn, nil
}

func (u *connectionUC) Statuses(ctx context.Context, userID string) ([]*model.ServiceConnection, error) {
	conns, err := retryWithBackoff(ctx, u.retry, u.log, "list connections", func(ctx context.Context) ([]*model.ServiceConnection, error) {
		return u.conns.ListByUser(ctx, repository.NoTX, userID)
	})
	if err != nil {
		return []*model.ServiceConnection{}, err
	}
	return conns, nil
}

func (u *connectionUC) enqueue(userID string, svc model.Service) error {
	return u.jobs.Submit(func(ctx context.Context) error {
		return u.RunImport(ctx, userID, svc)
	})
}

// RunImport walks the provider library once, persists any refreshed token
// and stamps last_library_sync.
func (u *connectionUC) RunImport(ctx context.Context, userID string, svc model.Service) error {
	log := u.log.With().Str("user_id", userID).Str("service", svc.String()).Logger()

	key := red.ImportLockKey(userID, svc.String())
	lease, err := u.locks.TryLock(ctx, key, u.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrImportInProgress) {
			log.Debug().Msg("import already running")
			return nil
		}
		return err
	}
	defer func() { _ = u.locks.Unlock(context.WithoutCancel(ctx), key, lease) }()

	conn, err := u.conns.Find(ctx, repository.NoTX, userID, svc)
	if err != nil {
		return err
	}
	if !conn.Syncing() {
		return nil
	}
	c, err := u.connector(svc)
	if err != nil {
		return err
	}

	start := time.Now()
	stats, tok, err := c.ImportLibrary(ctx, connToken(conn))
	metrics.ObserveLibraryImport(svc.String(), time.Since(start))
	if err != nil {
		metrics.IncLibraryImport(svc.String(), "failed")
		return fmt.Errorf("import %s library: %w", svc, err)
	}

	// A refreshed token and the sync stamp commit together; on failure the
	// connection stays pending with its old token for the sweeper.
	refreshed := tok != nil && tok.AccessToken != conn.AccessToken
	if refreshed {
		applyToken(conn, tok)
	}
	err = u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if refreshed {
			if err := u.conns.Upsert(ctx, tx, conn); err != nil {
				return fmt.Errorf("save refreshed token: %w", err)
			}
		}
		return u.conns.MarkSynced(ctx, tx, userID, svc, time.Now())
	})
	if err != nil {
		metrics.IncLibraryImport(svc.String(), "failed")
		return err
	}
	metrics.IncLibraryImport(svc.String(), "ok")
	log.Info().Int("tracks", stats.Tracks).Int("albums", stats.Albums).Int("playlists", stats.Playlists).
		Dur("duration", time.Since(start)).Msg("library imported")
	return nil
}

func (u *connectionUC) ResumeStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := u.conns.ListStale(ctx, repository.NoTX, time.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range stale {
		if err := u.enqueue(c.UserID, c.Service); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func applyToken(c *model.ServiceConnection, tok *oauth2.Token) {
	c.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	c.TokenExpiry = tok.Expiry
}

func connToken(c *model.ServiceConnection) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.TokenExpiry,
	}
}
