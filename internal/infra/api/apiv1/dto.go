package apiv1

import (
	"time"

	"uniai-studio/internal/domain/model"
)

type GenerateRequest struct {
	Prompt        string   `json:"prompt"`
	Model         string   `json:"model"`
	Resolution    string   `json:"resolution,omitempty"`
	AspectRatio   string   `json:"aspectRatio,omitempty"`
	BatchCount    int      `json:"batchCount,omitempty"`
	BatchID       string   `json:"batchId,omitempty"`
	ImageURL      string   `json:"imageUrl,omitempty"`
	ImageURLs     []string `json:"imageUrls,omitempty"`
	Width         int      `json:"width,omitempty"`
	Height        int      `json:"height,omitempty"`
	SamplerMethod string   `json:"samplerMethod,omitempty"`
	SamplingSteps int      `json:"samplingSteps,omitempty"`
	Seed          *int64   `json:"seed,omitempty"`
	NumImages     int      `json:"numImages,omitempty"`
}

func (g GenerateRequest) toModel() model.GenerationRequest {
	refs := make([]string, 0, len(g.ImageURLs)+1)
	if g.ImageURL != "" {
		refs = append(refs, g.ImageURL)
	}
	for _, u := range g.ImageURLs {
		if u != "" && u != g.ImageURL {
			refs = append(refs, u)
		}
	}
	return model.GenerationRequest{
		Prompt:          g.Prompt,
		Model:           g.Model,
		Resolution:      g.Resolution,
		AspectRatio:     g.AspectRatio,
		ReferenceImages: refs,
		BatchID:         g.BatchID,
		Params: model.GenerationParams{
			Width:     g.Width,
			Height:    g.Height,
			Sampler:   g.SamplerMethod,
			Steps:     g.SamplingSteps,
			Seed:      g.Seed,
			NumImages: g.NumImages,
		},
	}
}

type GenerateResponse struct {
	TaskID  string   `json:"taskId"`
	Status  string   `json:"status"`
	BatchID string   `json:"batchId,omitempty"`
	TaskIDs []string `json:"taskIds,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

type Task struct {
	ID              string                 `json:"id"`
	Prompt          string                 `json:"prompt"`
	Model           string                 `json:"model"`
	Provider        string                 `json:"provider"`
	Status          string                 `json:"status"`
	ResultImages    []string               `json:"resultImages"`
	ErrorMessage    string                 `json:"errorMessage,omitempty"`
	Resolution      string                 `json:"resolution,omitempty"`
	AspectRatio     string                 `json:"aspectRatio,omitempty"`
	ReferenceImages []string               `json:"referenceImages,omitempty"`
	Params          model.GenerationParams `json:"params"`
	BatchID         string                 `json:"batchId,omitempty"`
	BatchCount      int                    `json:"batchCount,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func taskFromModel(t *model.Task) Task {
	images := t.ResultImages
	if images == nil {
		images = []string{}
	}
	return Task{
		ID:              t.ID,
		Prompt:          t.Prompt,
		Model:           t.Model,
		Provider:        t.Provider,
		Status:          string(t.Status),
		ResultImages:    images,
		ErrorMessage:    t.ErrorMessage,
		Resolution:      t.Resolution,
		AspectRatio:     t.AspectRatio,
		ReferenceImages: t.ReferenceImages,
		Params:          t.Params,
		BatchID:         t.BatchID,
		BatchCount:      t.BatchCount,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

type TaskList struct {
	Tasks []Task `json:"tasks"`
}

type Model struct {
	Name            string `json:"name"`
	Provider        string `json:"provider"`
	Mode            string `json:"mode"`
	MaxPromptLength int    `json:"maxPromptLength"`
}

type ModelList struct {
	Items []Model `json:"items"`
}

type BatchResponse struct {
	BatchID string `json:"batchId"`
}

type Setting struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Masked bool   `json:"masked,omitempty"`
}

type SettingUpdate struct {
	Value string `json:"value"`
}

type TokenRequest struct {
	APIKey string `json:"apiKey"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
