package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniai-studio/internal/domain"
	red "uniai-studio/internal/infra/redis"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, red.RedisClient) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cli := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return mr, red.Wrap(cli)
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	mr, cli := newTestClient(t)
	rl := red.NewRateLimiter(cli)
	ctx := context.Background()
	key := red.SubmitKey("10.0.0.1")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window should reset")
}

func TestLocker_ExclusiveUntilUnlock(t *testing.T) {
	_, cli := newTestClient(t)
	l := red.NewLocker(cli)
	ctx := context.Background()

	token, err := l.TryLock(ctx, red.RetentionLockKey(), time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = l.TryLock(ctx, red.RetentionLockKey(), time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	// a foreign token must not release the lock
	require.NoError(t, l.Unlock(ctx, red.RetentionLockKey(), "someone-else"))
	_, err = l.TryLock(ctx, red.RetentionLockKey(), time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	require.NoError(t, l.Unlock(ctx, red.RetentionLockKey(), token))
	_, err = l.TryLock(ctx, red.RetentionLockKey(), time.Minute)
	assert.NoError(t, err)
}
