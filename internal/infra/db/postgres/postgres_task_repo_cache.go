package postgres

import (
	"context"
	"encoding/json"
	"time"

	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/repository"
	"uniai-studio/internal/infra/metrics"
	red "uniai-studio/internal/infra/redis"
)

var _ repository.TaskRepository = (*taskRepoCacheDecorator)(nil)

// taskRepoCacheDecorator caches finished tasks only. Pending and processing
// rows are always read from the database so pollers see the transition.
type taskRepoCacheDecorator struct {
	inner repository.TaskRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewTaskRepoCacheDecorator(inner repository.TaskRepository, cache red.RedisClient, ttl time.Duration) repository.TaskRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &taskRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func taskCacheKey(id string) string { return "task:" + id }

func (d *taskRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, t *model.Task) error {
	return d.inner.Create(ctx, tx, t)
}

func (d *taskRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	key := taskCacheKey(id)
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		var t model.Task
		if json.Unmarshal([]byte(val), &t) == nil {
			metrics.IncCacheRequest("task", "hit")
			return &t, nil
		}
	case !red.IsNil(err):
		metrics.IncCacheRequest("task", "error")
	}

	metrics.IncCacheRequest("task", "miss")
	t, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		if b, err := json.Marshal(t); err == nil {
			_ = d.cache.Set(ctx, key, b, d.ttl)
		}
	}
	return t, nil
}

func (d *taskRepoCacheDecorator) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.TaskStatus, images []string, errMsg string) error {
	err := d.inner.UpdateStatus(ctx, tx, id, status, images, errMsg)
	_ = d.cache.Del(ctx, taskCacheKey(id))
	return err
}

// FailStale only touches non terminal rows, which are never cached.
func (d *taskRepoCacheDecorator) FailStale(ctx context.Context, tx repository.Tx, olderThan time.Time, msg string) (int, error) {
	return d.inner.FailStale(ctx, tx, olderThan, msg)
}

func (d *taskRepoCacheDecorator) List(ctx context.Context, tx repository.Tx, f repository.TaskFilter) ([]*model.Task, error) {
	return d.inner.List(ctx, tx, f)
}

func (d *taskRepoCacheDecorator) ListOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Task, error) {
	return d.inner.ListOlderThan(ctx, tx, cutoff, limit)
}

func (d *taskRepoCacheDecorator) DeleteByIDs(ctx context.Context, tx repository.Tx, ids []string) (int, error) {
	n, err := d.inner.DeleteByIDs(ctx, tx, ids)
	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = taskCacheKey(id)
		}
		_ = d.cache.Del(ctx, keys...)
	}
	return n, err
}
