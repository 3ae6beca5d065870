package wizard

import (
	"context"
	"time"

	"velvet-metal/internal/domain/model"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often connection status is re-read while an
// import is pending.
const DefaultPollInterval = 2 * time.Second

// StatusSource reads the current user's connections.
type StatusSource func(ctx context.Context) ([]*model.ServiceConnection, error)

// Snapshot is one observation published by the Poller.
type Snapshot struct {
	Connections []*model.ServiceConnection
	Gate        Gate
	Polling     bool
	At          time.Time
}

// Poller re-reads connection status on a fixed interval, but only while at
// least one connected service has not finished its import. Once everything
// is synced the ticker is stopped; Kick restarts it after a new connection.
type Poller struct {
	interval time.Duration
	source   StatusSource
	updates  chan Snapshot
	kick     chan struct{}
	onPoll   func()
	log      *zerolog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollHook runs fn after every status read. Used for metrics.
func WithPollHook(fn func()) PollerOption {
	return func(p *Poller) { p.onPoll = fn }
}

func NewPoller(source StatusSource, interval time.Duration, logger *zerolog.Logger, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "SyncPoller").Logger()
	p := &Poller{
		interval: interval,
		source:   source,
		updates:  make(chan Snapshot, 1),
		kick:     make(chan struct{}, 1),
		log:      &l,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Updates delivers snapshots. Only the latest unread snapshot is kept.
// The channel is closed when Run returns.
func (p *Poller) Updates() <-chan Snapshot { return p.updates }

// Kick asks for an immediate read, e.g. after a service was connected.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run reads once immediately and then polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	defer close(p.updates)

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
			p.log.Debug().Msg("all imports finished; polling stopped")
		}
	}
	defer stop()

	poll := func() {
		pending, ok := p.read(ctx)
		if !ok {
			return
		}
		switch {
		case pending && ticker == nil:
			ticker = time.NewTicker(p.interval)
			tick = ticker.C
			p.log.Debug().Dur("interval", p.interval).Msg("import pending; polling started")
		case !pending:
			stop()
		}
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			poll()
		case <-p.kick:
			poll()
		}
	}
}

// read fetches status and publishes a snapshot. ok is false when the read
// failed, in which case the polling decision is left as it was.
func (p *Poller) read(ctx context.Context) (pending bool, ok bool) {
	conns, err := p.source(ctx)
	if p.onPoll != nil {
		p.onPoll()
	}
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn().Err(err).Msg("connection status read failed")
		}
		return false, false
	}
	pending = AnySyncing(conns)
	p.publish(Snapshot{
		Connections: conns,
		Gate:        CompletionGate(conns),
		Polling:     pending,
		At:          time.Now().UTC(),
	})
	return pending, true
}

func (p *Poller) publish(s Snapshot) {
	for {
		select {
		case p.updates <- s:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}
