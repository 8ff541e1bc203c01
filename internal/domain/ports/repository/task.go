package repository

import (
	"context"
	"time"

	"uniai-studio/internal/domain/model"
)

type TaskFilter struct {
	Limit        int
	Model        string
	ExcludeModel string
	BatchID      string
	Since        time.Time
}

type TaskRepository interface {
	// Create inserts a new row. An empty status is stored as pending.
	Create(ctx context.Context, tx Tx, task *model.Task) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Task, error)
	// UpdateStatus performs the single terminal transition of a task. It
	// returns domain.ErrTaskAlreadyFinal when the row is already terminal.
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.TaskStatus, images []string, errMsg string) error
	// FailStale fails every pending or processing row whose last update is
	// older than olderThan and returns how many rows it touched.
	FailStale(ctx context.Context, tx Tx, olderThan time.Time, msg string) (int, error)
	List(ctx context.Context, tx Tx, f TaskFilter) ([]*model.Task, error)
	ListOlderThan(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Task, error)
	DeleteByIDs(ctx context.Context, tx Tx, ids []string) (int, error)
}
