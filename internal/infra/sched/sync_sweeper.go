package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// StaleImportResumer re-queues imports stuck without a sync timestamp.
type StaleImportResumer interface {
	ResumeStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// SyncSweeper periodically picks up library imports that never finished,
// e.g. because the process restarted or the worker queue was full.
type SyncSweeper struct {
	interval  time.Duration
	olderThan time.Duration
	batch     int
	conns     StaleImportResumer
	log       *zerolog.Logger
}

func NewSyncSweeper(interval, olderThan time.Duration, conns StaleImportResumer, logger *zerolog.Logger) *SyncSweeper {
	l := logger.With().Str("component", "SyncSweeper").Logger()
	return &SyncSweeper{
		interval:  interval,
		olderThan: olderThan,
		batch:     100,
		conns:     conns,
		log:       &l,
	}
}

func (w *SyncSweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting sync sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping sync sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SyncSweeper) sweep(ctx context.Context) {
	n, err := w.conns.ResumeStale(ctx, w.olderThan, w.batch)
	if err != nil {
		w.log.Error().Err(err).Int("requeued", n).Msg("sync sweep error")
		return
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("stale library imports requeued")
	}
}
