// File: internal/usecase/retention_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
	"uniai-studio/internal/domain/ports/repository"
	uc "uniai-studio/internal/domain/ports/usecase"
	"uniai-studio/internal/infra/metrics"
)

var _ uc.RetentionUseCase = (*RetentionUseCase)(nil)

// Locker serializes cleanup runs across replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// StaleTaskMessage is stored on tasks failed by the stale sweep.
const StaleTaskMessage = "generation timed out"

type RetentionUseCase struct {
	tasks      repository.TaskRepository
	blobs      adapter.BlobStoreSource
	locker     Locker
	lockKey    string
	days       int
	batchSize  int
	staleAfter time.Duration
	log        *zerolog.Logger

	now func() time.Time
}

func NewRetentionUseCase(
	tasks repository.TaskRepository,
	blobs adapter.BlobStoreSource,
	locker Locker,
	lockKey string,
	days, batchSize int,
	staleAfter time.Duration,
	logger *zerolog.Logger,
) *RetentionUseCase {
	if batchSize <= 0 {
		batchSize = 200
	}
	l := logger.With().Str("component", "RetentionUseCase").Logger()
	return &RetentionUseCase{
		tasks:      tasks,
		blobs:      blobs,
		locker:     locker,
		lockKey:    lockKey,
		days:       days,
		batchSize:  batchSize,
		staleAfter: staleAfter,
		log:        &l,
		now:        time.Now,
	}
}

// Cleanup removes tasks created more than days ago. Another replica holding
// the lock is not an error; the run is skipped and 0 is returned.
func (r *RetentionUseCase) Cleanup(ctx context.Context) (int, error) {
	if r.days <= 0 {
		return 0, nil
	}
	if r.locker != nil {
		token, err := r.locker.TryLock(ctx, r.lockKey, 10*time.Minute)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			r.log.Debug().Msg("retention lock held elsewhere, skipping")
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		defer func() {
			if err := r.locker.Unlock(context.Background(), r.lockKey, token); err != nil {
				r.log.Warn().Err(err).Msg("release retention lock")
			}
		}()
	}

	cutoff := r.now().AddDate(0, 0, -r.days)
	var store adapter.BlobStore
	if r.blobs != nil {
		s, err := r.blobs.Current(ctx)
		if err != nil {
			r.log.Warn().Err(err).Msg("object storage unavailable, keeping blobs")
		}
		store = s
	}

	total := 0
	for {
		batch, err := r.tasks.ListOlderThan(ctx, repository.NoTX, cutoff, r.batchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}
		ids := make([]string, 0, len(batch))
		for _, t := range batch {
			ids = append(ids, t.ID)
		}
		n, err := r.tasks.DeleteByIDs(ctx, repository.NoTX, ids)
		if err != nil {
			return total, err
		}
		total += n
		metrics.AddRetentionDeleted("task", n)

		if store != nil {
			metrics.AddRetentionDeleted("blob", r.deleteBlobs(ctx, store, batch))
		}
		if len(batch) < r.batchSize || n == 0 {
			break
		}
	}
	if total > 0 {
		r.log.Info().Int("count", total).Time("cutoff", cutoff).Msg("expired tasks removed")
	}
	return total, nil
}

// FailStale fails tasks left pending or processing for longer than
// staleAfter, which covers units lost to a crash or an unpersisted outcome.
// The update is guarded on status, so replicas may run it concurrently.
func (r *RetentionUseCase) FailStale(ctx context.Context) (int, error) {
	if r.staleAfter <= 0 {
		return 0, nil
	}
	cutoff := r.now().Add(-r.staleAfter)
	n, err := r.tasks.FailStale(ctx, repository.NoTX, cutoff, StaleTaskMessage)
	if err != nil {
		return 0, err
	}
	metrics.AddStaleFailed(n)
	if n > 0 {
		r.log.Warn().Int("count", n).Time("cutoff", cutoff).Msg("stale tasks failed")
	}
	return n, nil
}

func (r *RetentionUseCase) deleteBlobs(ctx context.Context, store adapter.BlobStore, tasks []*model.Task) int {
	var urls []string
	for _, t := range tasks {
		for _, u := range t.ResultImages {
			if store.Owns(u) {
				urls = append(urls, u)
			}
		}
	}
	deleted := make([]bool, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, u := range urls {
		g.Go(func() error {
			if err := store.Delete(gctx, u); err != nil {
				r.log.Warn().Err(err).Str("url", u).Msg("delete blob")
				return nil
			}
			deleted[i] = true
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range deleted {
		if ok {
			n++
		}
	}
	return n
}
