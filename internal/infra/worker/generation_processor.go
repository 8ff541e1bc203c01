package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
	"uniai-studio/internal/domain/ports/repository"
	"uniai-studio/internal/domain/ports/usecase"
	"uniai-studio/internal/infra/logging"
	"uniai-studio/internal/infra/metrics"
)

var _ usecase.TaskDispatcher = (*GenerationProcessor)(nil)

const (
	finalizeTimeout  = 10 * time.Second
	finalizeAttempts = 5
	retryBackoff     = 250 * time.Millisecond
)

// GenerationProcessor owns a task from dispatch until its single terminal
// update: call the provider, relocate the images, persist the outcome.
type GenerationProcessor struct {
	tasks       repository.TaskRepository
	catalog     adapter.ProviderCatalog
	relocator   adapter.ImageRelocator
	pool        *Pool
	taskTimeout time.Duration
	attempts    int
	backoff     time.Duration
	log         *zerolog.Logger
}

func NewGenerationProcessor(
	tasks repository.TaskRepository,
	catalog adapter.ProviderCatalog,
	relocator adapter.ImageRelocator,
	pool *Pool,
	taskTimeout time.Duration,
	log *zerolog.Logger,
) *GenerationProcessor {
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Minute
	}
	l := log.With().Str("component", "GenerationProcessor").Logger()
	return &GenerationProcessor{
		tasks:       tasks,
		catalog:     catalog,
		relocator:   relocator,
		pool:        pool,
		taskTimeout: taskTimeout,
		attempts:    finalizeAttempts,
		backoff:     retryBackoff,
		log:         &l,
	}
}

// Dispatch returns immediately. The task is always finalized, including when
// the pool no longer accepts work.
func (p *GenerationProcessor) Dispatch(task *model.Task, credential string) {
	t := *task
	metrics.IncTaskSubmitted(t.Provider, t.Model)
	err := p.pool.Go(func(ctx context.Context) error {
		p.process(ctx, &t, credential)
		return nil
	})
	if err != nil {
		p.log.Warn().Err(err).Str("task_id", t.ID).Msg("dispatch rejected, failing task")
		p.finalize(&t, model.TaskStatusFailed, nil, "service is shutting down")
	}
}

func (p *GenerationProcessor) process(ctx context.Context, task *model.Task, credential string) {
	metrics.TaskStarted()
	defer metrics.TaskFinished()
	start := time.Now()

	ctx = logging.WithTaskID(ctx, task.ID)
	if task.BatchID != "" {
		ctx = logging.WithBatchID(ctx, task.BatchID)
	}
	l := logging.With(ctx, p.log).With().Str("provider", task.Provider).Str("model", task.Model).Logger()

	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("generation panicked")
			p.finalize(task, model.TaskStatusFailed, nil, "internal error")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.taskTimeout)
	defer cancel()

	images, err := p.generate(ctx, task, credential, &l)
	if err != nil {
		kind := domain.ErrorKind(err)
		metrics.IncProviderError(task.Provider, kind)
		l.Warn().Err(err).Str("kind", kind).Dur("elapsed", time.Since(start)).Msg("generation failed")
		p.finalize(task, model.TaskStatusFailed, nil, domain.PublicMessage(err))
		return
	}
	l.Info().Int("images", len(images)).Dur("elapsed", time.Since(start)).Msg("generation succeeded")
	p.finalize(task, model.TaskStatusSuccess, images, "")
}

func (p *GenerationProcessor) generate(ctx context.Context, task *model.Task, credential string, l *zerolog.Logger) ([]string, error) {
	desc, ok := p.catalog.Descriptor(task.Provider)
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", task.Provider, domain.ErrNotFound)
	}
	gen, err := p.catalog.Generator(task.Provider)
	if err != nil {
		return nil, err
	}

	callStart := time.Now()
	urls, err := gen.Generate(ctx, adapter.GenerateRequest{
		TaskID:          task.ID,
		Model:           task.Model,
		Prompt:          task.Prompt,
		Resolution:      task.Resolution,
		AspectRatio:     task.AspectRatio,
		ReferenceImages: task.ReferenceImages,
		Params:          task.Params,
		APIKey:          credential,
	})
	metrics.ObserveProviderCall(task.Provider, time.Since(callStart).Milliseconds(), err == nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsTimeoutError(err) {
			return nil, &domain.TimeoutError{Provider: task.Provider, Err: err}
		}
		return nil, err
	}
	if len(urls) == 0 {
		return nil, &domain.NormalizationError{Provider: task.Provider}
	}

	relocated := p.relocator.Relocate(ctx, desc.StoragePrefix, urls)
	l.Debug().Int("images", len(relocated)).Str("prefix", desc.StoragePrefix).Msg("images relocated")
	return relocated, nil
}

// finalize applies the terminal state to the local copy and persists it
// with a context detached from the generation deadline. A task already
// terminal locally was finalized before and is left alone.
func (p *GenerationProcessor) finalize(task *model.Task, status model.TaskStatus, images []string, errMsg string) {
	err := task.Finish(status, images, errMsg, time.Now())
	if errors.Is(err, domain.ErrInvalidTransition) {
		p.log.Error().Str("task_id", task.ID).Str("status", string(status)).Msg("invalid terminal outcome, failing task")
		err = task.Finish(model.TaskStatusFailed, nil, "internal error", time.Now())
	}
	if err != nil {
		return
	}

	if err := p.persist(task); err != nil {
		switch {
		case errors.Is(err, domain.ErrTaskAlreadyFinal):
			p.log.Warn().Str("task_id", task.ID).Str("status", string(task.Status)).Msg("task already finalized, update skipped")
		default:
			p.log.Error().Err(err).Str("task_id", task.ID).Str("status", string(task.Status)).
				Msg("could not persist task outcome, stale sweep will fail it")
		}
		return
	}
	metrics.IncTask(string(task.Status))
	if !task.CreatedAt.IsZero() {
		metrics.ObserveTaskDuration(task.Provider, string(task.Status), task.UpdatedAt.Sub(task.CreatedAt).Seconds())
	}
}

// persist retries the terminal update with doubling backoff. Errors that a
// retry cannot change are returned at once.
func (p *GenerationProcessor) persist(task *model.Task) error {
	wait := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		err = p.tasks.UpdateStatus(ctx, nil, task.ID, task.Status, task.ResultImages, task.ErrorMessage)
		cancel()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == p.attempts {
			break
		}
		p.log.Warn().Err(err).Str("task_id", task.ID).Int("attempt", attempt).Dur("backoff", wait).Msg("terminal update failed, retrying")
		time.Sleep(wait)
		wait *= 2
	}
	return err
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrTaskAlreadyFinal),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidArgument):
		return false
	}
	return true
}
