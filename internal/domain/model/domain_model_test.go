//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"uniai-studio/internal/domain"
)

// --- Task Model Tests ---

func TestTaskFinish(t *testing.T) {
	now := time.Now()

	t.Run("success records images and clears error", func(t *testing.T) {
		task := &Task{ID: "t1", Status: TaskStatusProcessing}
		if err := task.Finish(TaskStatusSuccess, []string{"a", "b"}, "", now); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if task.Status != TaskStatusSuccess || len(task.ResultImages) != 2 || task.ErrorMessage != "" {
			t.Errorf("unexpected task state: %+v", task)
		}
		if !task.UpdatedAt.Equal(now) {
			t.Error("expected UpdatedAt to move on transition")
		}
	})

	t.Run("failed records message", func(t *testing.T) {
		task := &Task{ID: "t2", Status: TaskStatusProcessing}
		if err := task.Finish(TaskStatusFailed, nil, "boom", now); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if task.ErrorMessage != "boom" || len(task.ResultImages) != 0 {
			t.Errorf("unexpected task state: %+v", task)
		}
	})

	t.Run("second transition is rejected", func(t *testing.T) {
		task := &Task{ID: "t3", Status: TaskStatusSuccess, ResultImages: []string{"a"}}
		err := task.Finish(TaskStatusFailed, nil, "late failure", now)
		if !errors.Is(err, domain.ErrTaskAlreadyFinal) {
			t.Fatalf("expected ErrTaskAlreadyFinal, got %v", err)
		}
		if task.Status != TaskStatusSuccess {
			t.Error("terminal status must not change")
		}
	})

	t.Run("exclusivity is enforced", func(t *testing.T) {
		bad := []struct {
			status TaskStatus
			images []string
			msg    string
		}{
			{TaskStatusSuccess, nil, ""},
			{TaskStatusSuccess, []string{"a"}, "also an error"},
			{TaskStatusFailed, nil, ""},
			{TaskStatusFailed, []string{"a"}, "boom"},
			{TaskStatusProcessing, nil, ""},
		}
		for _, b := range bad {
			task := &Task{Status: TaskStatusProcessing}
			if err := task.Finish(b.status, b.images, b.msg, now); !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("Finish(%s, %v, %q) = %v, want ErrInvalidTransition", b.status, b.images, b.msg, err)
			}
		}
	})
}

func TestTaskStatus(t *testing.T) {
	if TaskStatusPending.IsTerminal() || TaskStatusProcessing.IsTerminal() {
		t.Error("pending/processing are not terminal")
	}
	if !TaskStatusSuccess.IsTerminal() || !TaskStatusFailed.IsTerminal() {
		t.Error("success/failed are terminal")
	}
	if TaskStatus("done").Valid() {
		t.Error("unknown status must be invalid")
	}
}

func TestProviderDescriptor(t *testing.T) {
	d := ProviderDescriptor{Name: "zimage", Models: []string{"z-image-turbo"}}
	if !d.Supports("z-image-turbo") || d.Supports("nano-banana") {
		t.Error("Supports mismatch")
	}
	if d.DefaultModel() != "z-image-turbo" {
		t.Errorf("default model = %q", d.DefaultModel())
	}
	if (ProviderDescriptor{}).DefaultModel() != "" {
		t.Error("empty descriptor should have no default model")
	}
}

func TestStorageSettingsUsable(t *testing.T) {
	s := StorageSettings{Enabled: true, Endpoint: "s3.local", Bucket: "b", AccessKey: "ak", SecretKey: "sk"}
	if !s.Usable() {
		t.Error("complete settings should be usable")
	}
	s.Enabled = false
	if s.Usable() {
		t.Error("disabled storage must not be usable")
	}
	if !IsSecretSetting("zimage_api_key") || IsSecretSetting(SettingActiveProvider) {
		t.Error("IsSecretSetting mismatch")
	}
}
