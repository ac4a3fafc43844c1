package workers

import (
	"context"
	"log/slog"
	"time"
)

type StaleSweeper interface {
	SweepStale(ttl time.Duration) []string
}

// PresenceSweeperWorker periodically flips users offline when their
// connection stopped touching the tracker. It is the safety net for crashed
// clients that never sent the offline transition.
type PresenceSweeperWorker struct {
	log      *slog.Logger
	tracker  StaleSweeper
	interval time.Duration
	ttl      time.Duration
}

func NewPresenceSweeperWorker(log *slog.Logger, tracker StaleSweeper,
	interval, ttl time.Duration) *PresenceSweeperWorker {
	return &PresenceSweeperWorker{
		log:      log,
		tracker:  tracker,
		interval: interval,
		ttl:      ttl,
	}
}

func (w *PresenceSweeperWorker) Run(ctx context.Context) error {
	w.log.Info("Starting presence sweeper", "interval", w.interval, "ttl", w.ttl)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if stale := w.tracker.SweepStale(w.ttl); len(stale) > 0 {
				w.log.Info("Swept stale presences", "count", len(stale))
			}
		}
	}
}
