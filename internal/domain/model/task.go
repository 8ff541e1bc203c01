package model

import (
	"time"

	"uniai-studio/internal/domain"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
)

func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusSuccess, TaskStatusFailed:
		return true
	}
	return false
}

// GenerationParams are provider specific knobs captured at creation.
type GenerationParams struct {
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Sampler   string `json:"samplerMethod,omitempty"`
	Steps     int    `json:"samplingSteps,omitempty"`
	Seed      *int64 `json:"seed,omitempty"`
	NumImages int    `json:"numImages,omitempty"`
}

// Task is one unit of generation work.
type Task struct {
	ID              string
	Prompt          string
	Model           string
	Provider        string
	Resolution      string
	AspectRatio     string
	Params          GenerationParams
	ReferenceImages []string
	Status          TaskStatus
	ResultImages    []string
	ErrorMessage    string
	BatchID         string
	BatchCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Finish moves a non terminal task into success or failed. It enforces the
// images/error exclusivity: success needs at least one image, failed needs a
// message.
func (t *Task) Finish(status TaskStatus, images []string, errMsg string, now time.Time) error {
	if t.Status.IsTerminal() {
		return domain.ErrTaskAlreadyFinal
	}
	if err := ValidateTerminal(status, images, errMsg); err != nil {
		return err
	}
	t.Status = status
	t.ResultImages = nil
	t.ErrorMessage = ""
	if status == TaskStatusSuccess {
		t.ResultImages = append([]string(nil), images...)
	} else {
		t.ErrorMessage = errMsg
	}
	t.UpdatedAt = now
	return nil
}

// ValidateTerminal checks a terminal update before it is persisted.
func ValidateTerminal(status TaskStatus, images []string, errMsg string) error {
	switch status {
	case TaskStatusSuccess:
		if len(images) == 0 || errMsg != "" {
			return domain.ErrInvalidTransition
		}
	case TaskStatusFailed:
		if errMsg == "" || len(images) > 0 {
			return domain.ErrInvalidTransition
		}
	default:
		return domain.ErrInvalidTransition
	}
	return nil
}

// GenerationRequest is the inbound shape accepted by the orchestrator.
type GenerationRequest struct {
	Prompt          string
	Model           string
	Resolution      string
	AspectRatio     string
	ReferenceImages []string
	Params          GenerationParams
	BatchID         string
	BatchCount      int
}

// BatchResult lists the tasks created by one batch submission. Submissions
// after the first that fail are reported in Errors and do not undo the others.
type BatchResult struct {
	BatchID string
	Tasks   []*Task
	Errors  []string
}

func (b *BatchResult) TaskIDs() []string {
	ids := make([]string, 0, len(b.Tasks))
	for _, t := range b.Tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
