package provider_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
	"uniai-studio/internal/infra/adapters/provider"
)

// fakeAsyncProvider answers submit calls with a job id and status calls with
// whatever status(n) returns for the n-th poll.
type fakeAsyncProvider struct {
	submits  atomic.Int32
	polls    atomic.Int32
	lastPath atomic.Value
	status   func(n int) (int, string)
}

func (f *fakeAsyncProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		f.submits.Add(1)
		f.lastPath.Store(r.URL.Path)
		_, _ = w.Write([]byte(`{"code":200,"data":{"task_id":"job-1"}}`))
		return
	}
	n := int(f.polls.Add(1))
	code, body := f.status(n)
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func asyncDescriptor(base string, attempts int) model.ProviderDescriptor {
	return model.ProviderDescriptor{
		Name:            "duomi",
		Mode:            model.DispatchAsyncPoll,
		Protocol:        model.ProtocolAsync,
		Endpoint:        base + "/generate",
		EditEndpoint:    base + "/edit",
		StatusEndpoint:  base + "/tasks",
		Models:          []string{"gemini-3-pro-image-preview"},
		PollInterval:    3 * time.Second,
		MaxPollAttempts: attempts,
		Timeout:         5 * time.Second,
	}
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func running() (int, string) {
	return http.StatusOK, `{"code":200,"data":{"state":"running"}}`
}

func TestAsyncPoll_CompletesAfterRunningStates(t *testing.T) {
	t.Parallel()
	fake := &fakeAsyncProvider{status: func(n int) (int, string) {
		if n <= 5 {
			return running()
		}
		return http.StatusOK, `{"code":200,"data":{"state":"succeeded","data":{"images":[{"url":"https://x/a.png"},{"url":"https://x/b.png"}]}}}`
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := provider.NewAsyncPollClient(asyncDescriptor(srv.URL, 60), nopLogger()).WithSleep(noSleep)
	urls, err := c.Generate(context.Background(), adapter.GenerateRequest{TaskID: "t1", Prompt: "p", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/a.png", "https://x/b.png"}, urls)
	assert.EqualValues(t, 6, fake.polls.Load())
	assert.EqualValues(t, 1, fake.submits.Load())
	assert.Equal(t, "/generate", fake.lastPath.Load())
}

func TestAsyncPoll_TimesOutAfterExactBudget(t *testing.T) {
	t.Parallel()
	fake := &fakeAsyncProvider{status: func(int) (int, string) { return running() }}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := provider.NewAsyncPollClient(asyncDescriptor(srv.URL, 7), nopLogger()).WithSleep(noSleep)
	_, err := c.Generate(context.Background(), adapter.GenerateRequest{Prompt: "p", APIKey: "k"})
	var te *domain.TimeoutError
	require.True(t, errors.As(err, &te), "want TimeoutError, got %v", err)
	assert.Equal(t, 7, te.Attempts)
	assert.EqualValues(t, 7, fake.polls.Load())
}

func TestAsyncPoll_ExplicitFailureStopsPolling(t *testing.T) {
	t.Parallel()
	fake := &fakeAsyncProvider{status: func(n int) (int, string) {
		if n < 3 {
			return running()
		}
		return http.StatusOK, `{"code":200,"data":{"state":"failed","msg":"content policy"}}`
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := provider.NewAsyncPollClient(asyncDescriptor(srv.URL, 60), nopLogger()).WithSleep(noSleep)
	_, err := c.Generate(context.Background(), adapter.GenerateRequest{Prompt: "p", APIKey: "k"})
	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe), "want ProviderError, got %v", err)
	assert.Contains(t, pe.Message, "content policy")
	assert.EqualValues(t, 3, fake.polls.Load())
}

func TestAsyncPoll_TransientStatusErrorsAreRetried(t *testing.T) {
	t.Parallel()
	fake := &fakeAsyncProvider{status: func(n int) (int, string) {
		switch n {
		case 1:
			return http.StatusInternalServerError, `oops`
		case 2:
			return http.StatusOK, `not json`
		case 3:
			return http.StatusOK, `{"code":500,"msg":"busy"}`
		}
		return http.StatusOK, `{"code":200,"data":{"status":"completed","data":{"images":["https://x/c.png"]}}}`
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := provider.NewAsyncPollClient(asyncDescriptor(srv.URL, 10), nopLogger()).WithSleep(noSleep)
	urls, err := c.Generate(context.Background(), adapter.GenerateRequest{Prompt: "p", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/c.png"}, urls)
	assert.EqualValues(t, 4, fake.polls.Load())
}

func TestAsyncPoll_DoneWithoutImagesKeepsPolling(t *testing.T) {
	t.Parallel()
	fake := &fakeAsyncProvider{status: func(n int) (int, string) {
		if n == 1 {
			return http.StatusOK, `{"code":200,"data":{"state":"succeeded","data":{}}}`
		}
		return http.StatusOK, `{"code":200,"data":{"state":"succeeded","data":{"images":["https://x/d.png"]}}}`
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := provider.NewAsyncPollClient(asyncDescriptor(srv.URL, 10), nopLogger()).WithSleep(noSleep)
	urls, err := c.Generate(context.Background(), adapter.GenerateRequest{Prompt: "p", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/d.png"}, urls)
	assert.EqualValues(t, 2, fake.polls.Load())
}

func TestAsyncPoll_ReferenceImagesUseEditEndpoint(t *testing.T) {
	t.Parallel()
	var auth string
	fake := &fakeAsyncProvider{status: func(int) (int, string) {
		return http.StatusOK, `{"code":200,"data":{"state":"done","data":{"image_urls":["https://x/e.png"]}}}`
	}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			auth = r.Header.Get("Authorization")
		}
		fake.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := provider.NewAsyncPollClient(asyncDescriptor(srv.URL, 3), nopLogger()).WithSleep(noSleep)
	_, err := c.Generate(context.Background(), adapter.GenerateRequest{
		Prompt: "p", APIKey: "raw-key", ReferenceImages: []string{"https://ref/1.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/edit", fake.lastPath.Load())
	assert.Equal(t, "raw-key", auth, "async protocol sends the key without a scheme")
}

func TestAsyncPoll_SubmitRejected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":401,"msg":"invalid key"}`))
	}))
	defer srv.Close()

	c := provider.NewAsyncPollClient(asyncDescriptor(srv.URL, 3), nopLogger()).WithSleep(noSleep)
	_, err := c.Generate(context.Background(), adapter.GenerateRequest{Prompt: "p", APIKey: "k"})
	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, strings.Contains(pe.Message, "invalid key"), pe.Message)
}

func TestAsyncPoll_CancelledContextStops(t *testing.T) {
	t.Parallel()
	fake := &fakeAsyncProvider{status: func(int) (int, string) { return running() }}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	c := provider.NewAsyncPollClient(asyncDescriptor(srv.URL, 60), nopLogger()).WithSleep(
		func(ctx context.Context, _ time.Duration) error {
			calls++
			if calls == 3 {
				cancel()
			}
			return ctx.Err()
		})
	_, err := c.Generate(ctx, adapter.GenerateRequest{Prompt: "p", APIKey: "k"})
	assert.True(t, domain.IsTimeoutError(err), "got %v", err)
	assert.EqualValues(t, 2, fake.polls.Load())
}
