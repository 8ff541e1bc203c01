package postgres

import (
	"context"
	"errors"
	"time"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/ports/repository"
	"uniai-studio/internal/infra/metrics"
	red "uniai-studio/internal/infra/redis"
)

var _ repository.SettingRepository = (*settingRepoCacheDecorator)(nil)

// absent marks a key known to be missing so credential lookups for
// unconfigured providers do not hit the database every time.
const absent = "\x00absent"

type settingRepoCacheDecorator struct {
	inner repository.SettingRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewSettingRepoCacheDecorator(inner repository.SettingRepository, cache red.RedisClient, ttl time.Duration) repository.SettingRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &settingRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func settingCacheKey(key string) string { return "setting:" + key }

func (d *settingRepoCacheDecorator) Get(ctx context.Context, tx repository.Tx, key string) (string, error) {
	ck := settingCacheKey(key)
	val, err := d.cache.Get(ctx, ck)
	switch {
	case err == nil:
		metrics.IncCacheRequest("setting", "hit")
		if val == absent {
			return "", domain.ErrNotFound
		}
		return val, nil
	case !red.IsNil(err):
		metrics.IncCacheRequest("setting", "error")
	}

	metrics.IncCacheRequest("setting", "miss")
	v, err := d.inner.Get(ctx, tx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		_ = d.cache.Set(ctx, ck, absent, d.ttl)
		return "", err
	case err != nil:
		return "", err
	}
	_ = d.cache.Set(ctx, ck, v, d.ttl)
	return v, nil
}

func (d *settingRepoCacheDecorator) GetMany(ctx context.Context, tx repository.Tx, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := d.Get(ctx, tx, k)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (d *settingRepoCacheDecorator) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	if err := d.inner.Set(ctx, tx, key, value); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, settingCacheKey(key))
	return nil
}
