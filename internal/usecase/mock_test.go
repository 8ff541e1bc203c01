//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
	"uniai-studio/internal/domain/ports/repository"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// =============================
// Repositories
// =============================

type memTaskRepo struct {
	mu    sync.Mutex
	rows  map[string]*model.Task
	order []string

	CreateFunc func(ctx context.Context, t *model.Task) error
}

var _ repository.TaskRepository = (*memTaskRepo)(nil)

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{rows: map[string]*model.Task{}}
}

func (m *memTaskRepo) Create(ctx context.Context, _ repository.Tx, t *model.Task) error {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(ctx, t); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *t
	if cp.Status == "" {
		cp.Status = model.TaskStatusPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = cp.CreatedAt
	m.rows[t.ID] = &cp
	m.order = append(m.order, t.ID)
	return nil
}

func (m *memTaskRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskRepo) UpdateStatus(_ context.Context, _ repository.Tx, id string, status model.TaskStatus, images []string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	return t.Finish(status, images, errMsg, time.Now())
}

func (m *memTaskRepo) FailStale(_ context.Context, _ repository.Tx, olderThan time.Time, msg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.rows {
		if t.Status.IsTerminal() || !t.UpdatedAt.Before(olderThan) {
			continue
		}
		if err := t.Finish(model.TaskStatusFailed, nil, msg, time.Now()); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (m *memTaskRepo) List(_ context.Context, _ repository.Tx, f repository.TaskFilter) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for i := len(m.order) - 1; i >= 0; i-- {
		t, ok := m.rows[m.order[i]]
		if !ok {
			continue
		}
		if f.Model != "" && t.Model != f.Model {
			continue
		}
		if f.ExcludeModel != "" && t.Model == f.ExcludeModel {
			continue
		}
		if f.BatchID != "" && t.BatchID != f.BatchID {
			continue
		}
		cp := *t
		out = append(out, &cp)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memTaskRepo) ListOlderThan(_ context.Context, _ repository.Tx, cutoff time.Time, limit int) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for _, id := range m.order {
		t, ok := m.rows[id]
		if !ok || !t.CreatedAt.Before(cutoff) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTaskRepo) DeleteByIDs(_ context.Context, _ repository.Tx, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := m.rows[id]; ok {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memTaskRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memSettingRepo struct {
	mu   sync.Mutex
	vals map[string]string

	GetErr error
}

var _ repository.SettingRepository = (*memSettingRepo)(nil)

func newMemSettingRepo(kv map[string]string) *memSettingRepo {
	m := &memSettingRepo{vals: map[string]string{}}
	for k, v := range kv {
		m.vals[k] = v
	}
	return m
}

func (m *memSettingRepo) Get(_ context.Context, _ repository.Tx, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", m.GetErr
	}
	v, ok := m.vals[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *memSettingRepo) GetMany(_ context.Context, _ repository.Tx, keys []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for _, k := range keys {
		if v, ok := m.vals[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memSettingRepo) Set(_ context.Context, _ repository.Tx, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	return nil
}

// =============================
// Collaborators
// =============================

// stubCatalog serves a fixed set of descriptors with first-match resolution.
type stubCatalog struct {
	descs []model.ProviderDescriptor
}

var _ adapter.ProviderCatalog = (*stubCatalog)(nil)

func (c *stubCatalog) Resolve(modelName, preferred string) (model.ProviderDescriptor, error) {
	var match []model.ProviderDescriptor
	for _, d := range c.descs {
		if modelName == "" || d.Supports(modelName) {
			match = append(match, d)
		}
	}
	if len(match) == 0 {
		return model.ProviderDescriptor{}, &domain.ValidationError{Field: "model", Reason: "unsupported model " + modelName}
	}
	for _, d := range match {
		if d.Name == preferred {
			return d, nil
		}
	}
	return match[0], nil
}

func (c *stubCatalog) Descriptor(name string) (model.ProviderDescriptor, bool) {
	for _, d := range c.descs {
		if d.Name == name {
			return d, true
		}
	}
	return model.ProviderDescriptor{}, false
}

func (c *stubCatalog) Generator(string) (adapter.ImageGenerator, error) {
	return nil, domain.ErrNotFound
}

func (c *stubCatalog) Catalog() []model.ModelEntry {
	var out []model.ModelEntry
	for _, d := range c.descs {
		for _, m := range d.Models {
			out = append(out, model.ModelEntry{Name: m, Provider: d.Name, Mode: d.Mode, MaxPromptLength: d.MaxPromptLength})
		}
	}
	return out
}

type staticCreds struct {
	active string
	keys   map[string]string
}

func (s *staticCreds) Credential(_ context.Context, key string) (string, error) {
	if v := s.keys[key]; v != "" {
		return v, nil
	}
	return "", &domain.ConfigurationError{Key: key}
}

func (s *staticCreds) ActiveProvider(context.Context) string { return s.active }

type dispatchCall struct {
	task *model.Task
	cred string
}

// recordingDispatcher captures dispatched tasks and optionally finishes them
// through repo, standing in for the background processor.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall

	OnDispatch func(task *model.Task, cred string)
}

func (d *recordingDispatcher) Dispatch(task *model.Task, cred string) {
	d.mu.Lock()
	d.calls = append(d.calls, dispatchCall{task: task, cred: cred})
	d.mu.Unlock()
	if d.OnDispatch != nil {
		d.OnDispatch(task, cred)
	}
}

func (d *recordingDispatcher) Calls() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

type memBlobStore struct {
	mu      sync.Mutex
	prefix  string
	deleted []string
}

func (b *memBlobStore) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return b.prefix + key, nil
}

func (b *memBlobStore) Delete(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, url)
	return nil
}

func (b *memBlobStore) Owns(url string) bool { return strings.HasPrefix(url, b.prefix) }

type staticBlobSource struct{ store adapter.BlobStore }

func (s staticBlobSource) Current(context.Context) (adapter.BlobStore, error) { return s.store, nil }

type fakeLocker struct {
	held     bool
	unlocked int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (string, error) {
	if l.held {
		return "", domain.ErrLockNotAcquired
	}
	return "token", nil
}

func (l *fakeLocker) Unlock(context.Context, string, string) error {
	l.unlocked++
	return nil
}
