package usecase

import (
	"context"

	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/repository"
)

// GenerationUseCase is the orchestrator surface used by the HTTP layer.
type GenerationUseCase interface {
	Submit(ctx context.Context, req model.GenerationRequest) (*model.Task, error)
	SubmitBatch(ctx context.Context, req model.GenerationRequest, count int) (*model.BatchResult, error)
	NewBatchID() string
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, f repository.TaskFilter) ([]*model.Task, error)
	Models() []model.ModelEntry
}

// TaskDispatcher runs the dispatch, normalize, relocate and persist sequence
// for a freshly created task without blocking the caller.
type TaskDispatcher interface {
	Dispatch(task *model.Task, credential string)
}

// CredentialResolver looks up provider credentials and the operator default.
type CredentialResolver interface {
	Credential(ctx context.Context, key string) (string, error)
	ActiveProvider(ctx context.Context) string
}

type SettingsUseCase interface {
	CredentialResolver
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	StorageSettings(ctx context.Context) (model.StorageSettings, error)
}

type RetentionUseCase interface {
	// Cleanup deletes tasks past the retention window and their stored
	// images. It returns the number of deleted tasks.
	Cleanup(ctx context.Context) (int, error)
	// FailStale fails tasks that stayed pending or processing past the
	// stale cutoff. It returns the number of failed tasks.
	FailStale(ctx context.Context) (int, error)
}
