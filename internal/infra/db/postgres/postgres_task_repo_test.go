//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/repository"
)

func TestTaskRepo_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewTaskRepo(testPool)

	seed := int64(42)
	task := &model.Task{
		Prompt:          "a lighthouse at dusk",
		Model:           "z-image-turbo",
		Provider:        "zimage",
		Status:          model.TaskStatusProcessing,
		AspectRatio:     "16:9",
		Resolution:      "1K",
		Params:          model.GenerationParams{Width: 1280, Height: 720, Seed: &seed},
		ReferenceImages: []string{"https://ref/1.png"},
		BatchID:         "01HZX",
		BatchCount:      2,
	}

	t.Run("Create and FindByID", func(t *testing.T) {
		if err := repo.Create(ctx, nil, task); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		got, err := repo.FindByID(ctx, nil, task.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if got.Status != model.TaskStatusProcessing || got.Params.Width != 1280 || got.Params.Seed == nil || *got.Params.Seed != 42 {
			t.Errorf("unexpected task %+v", got)
		}
		if len(got.ReferenceImages) != 1 || got.BatchID != "01HZX" || got.BatchCount != 2 {
			t.Errorf("unexpected refs/batch %+v", got)
		}
		if len(got.ResultImages) != 0 || got.ErrorMessage != "" {
			t.Errorf("fresh task must have no results, got %+v", got)
		}
	})

	t.Run("FindByID unknown or malformed id", func(t *testing.T) {
		if _, err := repo.FindByID(ctx, nil, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("want ErrNotFound, got %v", err)
		}
		if _, err := repo.FindByID(ctx, nil, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateStatus transitions exactly once under contention", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					results <- repo.UpdateStatus(ctx, nil, task.ID, model.TaskStatusSuccess, []string{"https://x/1.png"}, "")
				} else {
					results <- repo.UpdateStatus(ctx, nil, task.ID, model.TaskStatusFailed, nil, "boom")
				}
			}(i)
		}
		wg.Wait()
		close(results)
		wins := 0
		for err := range results {
			switch {
			case err == nil:
				wins++
			case !errors.Is(err, domain.ErrTaskAlreadyFinal):
				t.Errorf("unexpected error %v", err)
			}
		}
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
		got, _ := repo.FindByID(ctx, nil, task.ID)
		if !got.Status.IsTerminal() {
			t.Fatalf("task should be terminal, got %s", got.Status)
		}
		if (got.Status == model.TaskStatusSuccess) == (got.ErrorMessage != "") {
			t.Errorf("images/error exclusivity broken: %+v", got)
		}
	})

	t.Run("UpdateStatus rejects invalid terminal shape", func(t *testing.T) {
		other := &model.Task{Prompt: "p", Model: "nano-banana", Provider: "nanobanana"}
		if err := repo.Create(ctx, nil, other); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if other.Status != model.TaskStatusPending {
			t.Errorf("empty status should default to pending, got %s", other.Status)
		}
		if err := repo.UpdateStatus(ctx, nil, other.ID, model.TaskStatusSuccess, nil, ""); err == nil {
			t.Error("success without images must be rejected")
		}
	})

	t.Run("List filters and ordering", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if err := repo.Create(ctx, nil, &model.Task{Prompt: "p", Model: "nano-banana", Provider: "nanobanana",
				CreatedAt: time.Now().Add(time.Duration(i) * time.Second)}); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}
		all, err := repo.List(ctx, nil, repository.TaskFilter{Limit: 10})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		for i := 1; i < len(all); i++ {
			if all[i].CreatedAt.After(all[i-1].CreatedAt) {
				t.Fatalf("list must be newest first")
			}
		}
		zimage, _ := repo.List(ctx, nil, repository.TaskFilter{Model: "z-image-turbo"})
		if len(zimage) != 1 {
			t.Errorf("expected 1 z-image task, got %d", len(zimage))
		}
		others, _ := repo.List(ctx, nil, repository.TaskFilter{ExcludeModel: "z-image-turbo", Limit: 2})
		if len(others) != 2 {
			t.Errorf("expected limit 2, got %d", len(others))
		}
		for _, o := range others {
			if o.Model == "z-image-turbo" {
				t.Error("excluded model returned")
			}
		}
	})

	t.Run("ListOlderThan and DeleteByIDs", func(t *testing.T) {
		old := &model.Task{Prompt: "old", Model: "nano-banana", Provider: "nanobanana", CreatedAt: time.Now().AddDate(0, 0, -30)}
		if err := repo.Create(ctx, nil, old); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		stale, err := repo.ListOlderThan(ctx, nil, time.Now().AddDate(0, 0, -20), 100)
		if err != nil {
			t.Fatalf("ListOlderThan failed: %v", err)
		}
		if len(stale) != 1 || stale[0].ID != old.ID {
			t.Fatalf("expected only the old task, got %d", len(stale))
		}
		n, err := repo.DeleteByIDs(ctx, nil, []string{old.ID})
		if err != nil || n != 1 {
			t.Fatalf("DeleteByIDs = %d, %v", n, err)
		}
	})

	t.Run("FailStale fails only stuck non terminal rows", func(t *testing.T) {
		twoHoursAgo := time.Now().Add(-2 * time.Hour)
		stuck := &model.Task{Prompt: "stuck", Model: "nano-banana", Provider: "nanobanana", Status: model.TaskStatusProcessing, CreatedAt: twoHoursAgo}
		queued := &model.Task{Prompt: "queued", Model: "nano-banana", Provider: "nanobanana", CreatedAt: twoHoursAgo}
		fresh := &model.Task{Prompt: "fresh", Model: "nano-banana", Provider: "nanobanana"}
		done := &model.Task{Prompt: "done", Model: "nano-banana", Provider: "nanobanana", CreatedAt: twoHoursAgo}
		for _, tk := range []*model.Task{stuck, queued, fresh, done} {
			if err := repo.Create(ctx, nil, tk); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}
		if err := repo.UpdateStatus(ctx, nil, done.ID, model.TaskStatusSuccess, []string{"https://cdn/done.png"}, ""); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		if _, err := testPool.Exec(ctx, `UPDATE generation_tasks SET updated_at = $2 WHERE id = $1`, done.ID, twoHoursAgo); err != nil {
			t.Fatalf("backdate failed: %v", err)
		}

		n, err := repo.FailStale(ctx, nil, time.Now().Add(-time.Hour), "generation timed out")
		if err != nil {
			t.Fatalf("FailStale failed: %v", err)
		}
		if n != 2 {
			t.Fatalf("FailStale touched %d rows, want 2", n)
		}
		for _, id := range []string{stuck.ID, queued.ID} {
			got, err := repo.FindByID(ctx, nil, id)
			if err != nil {
				t.Fatalf("FindByID failed: %v", err)
			}
			if got.Status != model.TaskStatusFailed || got.ErrorMessage != "generation timed out" || len(got.ResultImages) != 0 {
				t.Errorf("stale task not failed: %+v", got)
			}
		}
		if got, _ := repo.FindByID(ctx, nil, fresh.ID); got.Status != model.TaskStatusPending {
			t.Errorf("fresh task touched: %+v", got)
		}
		if got, _ := repo.FindByID(ctx, nil, done.ID); got.Status != model.TaskStatusSuccess || len(got.ResultImages) != 1 {
			t.Errorf("finished task touched: %+v", got)
		}
		if err := repo.UpdateStatus(ctx, nil, stuck.ID, model.TaskStatusSuccess, []string{"https://cdn/late.png"}, ""); !errors.Is(err, domain.ErrTaskAlreadyFinal) {
			t.Errorf("late worker update: want ErrTaskAlreadyFinal, got %v", err)
		}
	})

	t.Run("Create inside a rolled back transaction leaves nothing", func(t *testing.T) {
		tm := NewTxManager(testPool)
		ghost := &model.Task{Prompt: "ghost", Model: "nano-banana", Provider: "nanobanana"}
		err := tm.WithTx(ctx, pgxTxOptions(), func(ctx context.Context, tx repository.Tx) error {
			if err := repo.Create(ctx, tx, ghost); err != nil {
				return err
			}
			return errors.New("abort")
		})
		if err == nil {
			t.Fatal("expected abort error")
		}
		if _, err := repo.FindByID(ctx, nil, ghost.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("rolled back row is visible: %v", err)
		}
	})
}

func TestSettingRepo_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewSettingRepo(testPool)

	if _, err := repo.Get(ctx, nil, "active_provider"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := repo.Set(ctx, nil, "active_provider", "duomi"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := repo.Set(ctx, nil, "active_provider", "nanobanana"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	v, err := repo.Get(ctx, nil, "active_provider")
	if err != nil || v != "nanobanana" {
		t.Fatalf("Get = %q, %v", v, err)
	}
	many, err := repo.GetMany(ctx, nil, []string{"active_provider", "storage_bucket"})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(many) != 1 || many["active_provider"] != "nanobanana" {
		t.Errorf("unexpected GetMany result %v", many)
	}
}
