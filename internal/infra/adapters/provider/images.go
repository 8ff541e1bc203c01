package provider

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
)

var _ adapter.ImageGenerator = (*ImagesClient)(nil)

// ImagesClient talks to an OpenAI style /v1/images/generations endpoint that
// answers synchronously with hosted URLs.
type ImagesClient struct {
	desc       model.ProviderDescriptor
	client     *http.Client
	normalizer *Normalizer
	log        *zerolog.Logger
}

func NewImagesClient(desc model.ProviderDescriptor, log *zerolog.Logger) *ImagesClient {
	l := log.With().Str("component", "ImagesClient").Str("provider", desc.Name).Logger()
	return &ImagesClient{
		desc:       desc,
		client:     newHTTPClient(desc.Timeout),
		normalizer: NewNormalizer(Strategy{Name: "data[].url", Path: "data"}),
		log:        &l,
	}
}

type imagesRequest struct {
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	ResponseFormat string   `json:"response_format"`
	ImageSize      string   `json:"image_size,omitempty"`
	Image          []string `json:"image,omitempty"`
}

func (c *ImagesClient) Generate(ctx context.Context, req adapter.GenerateRequest) ([]string, error) {
	body := imagesRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		AspectRatio:    req.AspectRatio,
		ResponseFormat: "url",
		ImageSize:      req.Resolution,
		Image:          req.ReferenceImages,
	}
	c.log.Debug().Str("task_id", req.TaskID).Int("refs", len(req.ReferenceImages)).Msg("calling images endpoint")

	code, raw, err := doJSON(ctx, c.client, http.MethodPost, c.desc.Endpoint, bearer(req.APIKey), body)
	if err != nil {
		return nil, transportError(c.desc.Name, err)
	}
	if !isSuccess(code) {
		return nil, httpError(c.desc.Name, code, raw)
	}
	urls, via := c.normalizer.NormalizeWith(raw)
	if len(urls) == 0 {
		return nil, &domain.NormalizationError{Provider: c.desc.Name}
	}
	c.log.Debug().Str("task_id", req.TaskID).Str("shape", via).Int("images", len(urls)).Msg("images endpoint answered")
	return urls, nil
}
