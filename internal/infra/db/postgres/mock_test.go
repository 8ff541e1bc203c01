//go:build !integration

package postgres

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/repository"
	red "uniai-studio/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerTaskRepo mocks the database repository that the task decorator wraps.
type mockInnerTaskRepo struct {
	CreateFunc        func(ctx context.Context, tx repository.Tx, t *model.Task) error
	FindByIDFunc      func(ctx context.Context, tx repository.Tx, id string) (*model.Task, error)
	UpdateStatusFunc  func(ctx context.Context, tx repository.Tx, id string, status model.TaskStatus, images []string, errMsg string) error
	FailStaleFunc     func(ctx context.Context, tx repository.Tx, olderThan time.Time, msg string) (int, error)
	ListFunc          func(ctx context.Context, tx repository.Tx, f repository.TaskFilter) ([]*model.Task, error)
	ListOlderThanFunc func(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Task, error)
	DeleteByIDsFunc   func(ctx context.Context, tx repository.Tx, ids []string) (int, error)
}

func (m *mockInnerTaskRepo) Create(ctx context.Context, tx repository.Tx, t *model.Task) error {
	return m.CreateFunc(ctx, tx, t)
}
func (m *mockInnerTaskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerTaskRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.TaskStatus, images []string, errMsg string) error {
	return m.UpdateStatusFunc(ctx, tx, id, status, images, errMsg)
}
func (m *mockInnerTaskRepo) FailStale(ctx context.Context, tx repository.Tx, olderThan time.Time, msg string) (int, error) {
	return m.FailStaleFunc(ctx, tx, olderThan, msg)
}
func (m *mockInnerTaskRepo) List(ctx context.Context, tx repository.Tx, f repository.TaskFilter) ([]*model.Task, error) {
	return m.ListFunc(ctx, tx, f)
}
func (m *mockInnerTaskRepo) ListOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Task, error) {
	return m.ListOlderThanFunc(ctx, tx, cutoff, limit)
}
func (m *mockInnerTaskRepo) DeleteByIDs(ctx context.Context, tx repository.Tx, ids []string) (int, error) {
	return m.DeleteByIDsFunc(ctx, tx, ids)
}

// mockInnerSettingRepo mocks the settings table.
type mockInnerSettingRepo struct {
	GetFunc     func(ctx context.Context, tx repository.Tx, key string) (string, error)
	GetManyFunc func(ctx context.Context, tx repository.Tx, keys []string) (map[string]string, error)
	SetFunc     func(ctx context.Context, tx repository.Tx, key, value string) error
}

func (m *mockInnerSettingRepo) Get(ctx context.Context, tx repository.Tx, key string) (string, error) {
	return m.GetFunc(ctx, tx, key)
}
func (m *mockInnerSettingRepo) GetMany(ctx context.Context, tx repository.Tx, keys []string) (map[string]string, error) {
	return m.GetManyFunc(ctx, tx, keys)
}
func (m *mockInnerSettingRepo) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	return m.SetFunc(ctx, tx, key, value)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", redis.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	return nil, nil
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
