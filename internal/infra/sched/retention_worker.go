package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	uc "uniai-studio/internal/domain/ports/usecase"
)

// RetentionWorker periodically purges tasks past the retention window and
// fails tasks that stayed non terminal past the stale cutoff.
type RetentionWorker struct {
	interval      time.Duration
	sweepInterval time.Duration
	retention     uc.RetentionUseCase
	log           *zerolog.Logger
}

func NewRetentionWorker(interval, sweepInterval time.Duration, retention uc.RetentionUseCase, logger *zerolog.Logger) *RetentionWorker {
	l := logger.With().Str("component", "RetentionWorker").Logger()
	return &RetentionWorker{
		interval:      interval,
		sweepInterval: sweepInterval,
		retention:     retention,
		log:           &l,
	}
}

// Run performs both passes right away, then each one on its own interval
// until ctx ends. The startup sweep recovers tasks stranded by a previous
// process.
func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("sweep_interval", w.sweepInterval).Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	sweep := time.NewTicker(w.sweepInterval)
	defer sweep.Stop()

	w.sweepOnce(ctx)
	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-sweep.C:
			w.sweepOnce(ctx)
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RetentionWorker) runOnce(ctx context.Context) {
	n, err := w.retention.Cleanup(ctx)
	if err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Msg("retention cleanup error")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("retention cleanup finished")
	}
}

func (w *RetentionWorker) sweepOnce(ctx context.Context) {
	if _, err := w.retention.FailStale(ctx); err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Msg("stale task sweep error")
	}
}
