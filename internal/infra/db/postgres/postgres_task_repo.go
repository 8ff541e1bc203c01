package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/repository"
)

var _ repository.TaskRepository = (*taskRepo)(nil)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type taskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *taskRepo {
	return &taskRepo{pool: pool}
}

const taskColumns = `id, prompt, model, provider, status, resolution, aspect_ratio, params,
       reference_images, result_images, COALESCE(error_message, ''), COALESCE(batch_id, ''),
       batch_count, created_at, updated_at`

func (r *taskRepo) Create(ctx context.Context, tx repository.Tx, t *model.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.TaskStatusPending
	}
	if t.Status.IsTerminal() {
		return domain.ErrInvalidTransition
	}
	if t.BatchCount <= 0 {
		t.BatchCount = 1
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt

	params, err := json.Marshal(t.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	refs, err := jsonList(t.ReferenceImages)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO generation_tasks (id, prompt, model, provider, status, resolution, aspect_ratio, params,
                              reference_images, result_images, error_message, batch_id, batch_count,
                              created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '[]'::jsonb, NULL, NULLIF($10, ''), $11, $12, $13);`
	_, err = execSQL(ctx, r.pool, tx, q,
		t.ID, t.Prompt, t.Model, t.Provider, string(t.Status), t.Resolution, t.AspectRatio, string(params),
		refs, t.BatchID, t.BatchCount, t.CreatedAt, t.UpdatedAt)
	return translate("task_create", err)
}

func (r *taskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, translate("task_find", err)
	}
	t, err := scanTask(row)
	if err != nil {
		return nil, translate("task_find", err)
	}
	return t, nil
}

// UpdateStatus only touches rows that are still pending or processing, which
// makes the terminal transition happen at most once.
func (r *taskRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.TaskStatus, images []string, errMsg string) error {
	if err := model.ValidateTerminal(status, images, errMsg); err != nil {
		return err
	}
	var result []string
	var msg *string
	if status == model.TaskStatusSuccess {
		result = images
	} else {
		msg = &errMsg
	}
	encoded, err := jsonList(result)
	if err != nil {
		return err
	}
	const q = `
UPDATE generation_tasks
   SET status = $2, result_images = $3, error_message = $4, updated_at = NOW()
 WHERE id = $1 AND status IN ('pending', 'processing');`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), encoded, msg)
	if err != nil {
		return translate("task_update_status", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, tx, id); err != nil {
		return err
	}
	return domain.ErrTaskAlreadyFinal
}

// FailStale uses the same status guard as UpdateStatus, so a worker that
// finishes concurrently either wins or finds the row already failed.
func (r *taskRepo) FailStale(ctx context.Context, tx repository.Tx, olderThan time.Time, msg string) (int, error) {
	if msg == "" {
		return 0, fmt.Errorf("stale failure needs a message: %w", domain.ErrInvalidArgument)
	}
	const q = `
UPDATE generation_tasks
   SET status = 'failed', result_images = '[]', error_message = $2, updated_at = NOW()
 WHERE status IN ('pending', 'processing') AND updated_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, olderThan, msg)
	if err != nil {
		return 0, translate("task_fail_stale", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *taskRepo) List(ctx context.Context, tx repository.Tx, f repository.TaskFilter) ([]*model.Task, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Model != "" {
		add("model = $%d", f.Model)
	}
	if f.ExcludeModel != "" {
		add("model <> $%d", f.ExcludeModel)
	}
	if f.BatchID != "" {
		add("batch_id = $%d", f.BatchID)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}

	var b strings.Builder
	b.WriteString("SELECT " + taskColumns + " FROM generation_tasks")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, clampLimit(f.Limit))
	fmt.Fprintf(&b, " ORDER BY created_at DESC, id LIMIT $%d;", len(args))

	return r.queryTasks(ctx, tx, "task_list", b.String(), args...)
}

func (r *taskRepo) ListOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	q := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.queryTasks(ctx, tx, "task_list_older", q, cutoff, limit)
}

func (r *taskRepo) DeleteByIDs(ctx context.Context, tx repository.Tx, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const q = `DELETE FROM generation_tasks WHERE id = ANY($1::uuid[]);`
	tag, err := execSQL(ctx, r.pool, tx, q, ids)
	if err != nil {
		return 0, translate("task_delete", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *taskRepo) queryTasks(ctx context.Context, tx repository.Tx, op, q string, args ...interface{}) ([]*model.Task, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, translate(op, err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, translate(op, rows.Err())
	}
	return out, nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t                    model.Task
		status               string
		params, refs, result []byte
	)
	if err := row.Scan(&t.ID, &t.Prompt, &t.Model, &t.Provider, &status, &t.Resolution, &t.AspectRatio, &params,
		&refs, &result, &t.ErrorMessage, &t.BatchID, &t.BatchCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &t.Params); err != nil {
			return nil, err
		}
	}
	if err := decodeList(refs, &t.ReferenceImages); err != nil {
		return nil, err
	}
	if err := decodeList(result, &t.ResultImages); err != nil {
		return nil, err
	}
	return &t, nil
}

func jsonList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	var v []string
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if len(v) > 0 {
		*dst = v
	}
	return nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}
