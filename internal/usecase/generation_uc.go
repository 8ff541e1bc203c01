// File: internal/usecase/generation_uc.go
package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
	"uniai-studio/internal/domain/ports/repository"
	uc "uniai-studio/internal/domain/ports/usecase"
	"uniai-studio/internal/infra/logging"
	"uniai-studio/internal/infra/metrics"
)

// Compile-time check
var _ uc.GenerationUseCase = (*GenerationUseCase)(nil)

// GenerationUseCase validates requests, writes the task row and hands it to
// the background dispatcher. It never waits for the provider.
type GenerationUseCase struct {
	tasks      repository.TaskRepository
	catalog    adapter.ProviderCatalog
	creds      uc.CredentialResolver
	dispatcher uc.TaskDispatcher
	stagger    time.Duration
	maxBatch   int
	log        *zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGenerationUseCase(
	tasks repository.TaskRepository,
	catalog adapter.ProviderCatalog,
	creds uc.CredentialResolver,
	dispatcher uc.TaskDispatcher,
	stagger time.Duration,
	maxBatch int,
	logger *zerolog.Logger,
) *GenerationUseCase {
	if maxBatch <= 0 {
		maxBatch = 4
	}
	l := logger.With().Str("component", "GenerationUseCase").Logger()
	return &GenerationUseCase{
		tasks:      tasks,
		catalog:    catalog,
		creds:      creds,
		dispatcher: dispatcher,
		stagger:    stagger,
		maxBatch:   maxBatch,
		log:        &l,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func (g *GenerationUseCase) Submit(ctx context.Context, req model.GenerationRequest) (*model.Task, error) {
	defer logging.TraceDuration(g.log, "GenerationUC.Submit")()

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, g.reject(&domain.ValidationError{Field: "prompt", Reason: "must not be empty"})
	}

	desc, err := g.catalog.Resolve(strings.TrimSpace(req.Model), g.creds.ActiveProvider(ctx))
	if err != nil {
		return nil, g.reject(err)
	}
	if desc.MaxPromptLength > 0 && utf8.RuneCountInString(prompt) > desc.MaxPromptLength {
		return nil, g.reject(&domain.ValidationError{
			Field:  "prompt",
			Reason: fmt.Sprintf("longer than %d characters", desc.MaxPromptLength),
		})
	}
	modelName := strings.TrimSpace(req.Model)
	if modelName == "" {
		modelName = desc.DefaultModel()
	}

	cred, err := g.creds.Credential(ctx, desc.CredentialKey)
	if err == nil && cred == "" {
		err = &domain.ConfigurationError{Provider: desc.Name, Key: desc.CredentialKey}
	}
	if err != nil {
		if domain.IsConfigurationError(err) {
			return nil, g.reject(err)
		}
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	batchCount := req.BatchCount
	if batchCount <= 0 {
		batchCount = 1
	}
	now := g.now().UTC()
	task := &model.Task{
		ID:              uuid.NewString(),
		Prompt:          prompt,
		Model:           modelName,
		Provider:        desc.Name,
		Resolution:      req.Resolution,
		AspectRatio:     req.AspectRatio,
		Params:          req.Params,
		ReferenceImages: append([]string(nil), req.ReferenceImages...),
		Status:          model.TaskStatusProcessing,
		BatchID:         req.BatchID,
		BatchCount:      batchCount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := g.tasks.Create(ctx, repository.NoTX, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	g.log.Info().
		Str("task_id", task.ID).
		Str("batch_id", task.BatchID).
		Str("provider", desc.Name).
		Str("model", modelName).
		Msg("task accepted")

	g.dispatcher.Dispatch(task, cred)
	return task, nil
}

// SubmitBatch issues count submissions sharing one batch id. A failure of the
// first submission is returned as is; later failures are collected and the
// already created tasks keep running.
func (g *GenerationUseCase) SubmitBatch(ctx context.Context, req model.GenerationRequest, count int) (*model.BatchResult, error) {
	defer logging.TraceDuration(g.log, "GenerationUC.SubmitBatch")()

	if count < 1 || count > g.maxBatch {
		return nil, g.reject(&domain.ValidationError{
			Field:  "count",
			Reason: fmt.Sprintf("must be between 1 and %d", g.maxBatch),
		})
	}
	if count > 1 && req.BatchID == "" {
		req.BatchID = g.NewBatchID()
	}
	req.BatchCount = count

	res := &model.BatchResult{BatchID: req.BatchID}
	for i := 0; i < count; i++ {
		if i > 0 && g.stagger > 0 {
			if err := g.sleep(ctx, g.stagger); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("submission %d: %v", i+1, err))
				break
			}
		}
		task, err := g.Submit(ctx, req)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			g.log.Warn().Err(err).Str("batch_id", req.BatchID).Int("index", i).Msg("batch submission failed")
			res.Errors = append(res.Errors, fmt.Sprintf("submission %d: %v", i+1, err))
			continue
		}
		res.Tasks = append(res.Tasks, task)
	}
	return res, nil
}

// NewBatchID returns a time ordered identifier for grouping tasks.
func (g *GenerationUseCase) NewBatchID() string {
	return ulid.MustNew(ulid.Timestamp(g.now()), rand.Reader).String()
}

func (g *GenerationUseCase) GetTask(ctx context.Context, id string) (*model.Task, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrNotFound
	}
	return g.tasks.FindByID(ctx, repository.NoTX, id)
}

func (g *GenerationUseCase) ListTasks(ctx context.Context, f repository.TaskFilter) ([]*model.Task, error) {
	return g.tasks.List(ctx, repository.NoTX, f)
}

func (g *GenerationUseCase) Models() []model.ModelEntry {
	return g.catalog.Catalog()
}

func (g *GenerationUseCase) reject(err error) error {
	metrics.IncSubmitRejected(domain.ErrorKind(err))
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
