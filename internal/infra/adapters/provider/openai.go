package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
)

var _ adapter.ImageGenerator = (*OpenAIClient)(nil)

// OpenAIClient generates through the official SDK's Images API. Base64
// results are returned as data URIs for the relocator to upload.
type OpenAIClient struct {
	desc model.ProviderDescriptor
	log  *zerolog.Logger
}

func NewOpenAIClient(desc model.ProviderDescriptor, log *zerolog.Logger) *OpenAIClient {
	l := log.With().Str("component", "OpenAIClient").Str("provider", desc.Name).Logger()
	return &OpenAIClient{desc: desc, log: &l}
}

func (c *OpenAIClient) Generate(ctx context.Context, req adapter.GenerateRequest) ([]string, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(req.APIKey),
		option.WithHTTPClient(newHTTPClient(c.desc.Timeout)),
		option.WithMaxRetries(0),
	}
	if c.desc.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(c.desc.Endpoint))
	}
	client := openai.NewClient(opts...)

	n := int64(req.Params.NumImages)
	if n <= 0 {
		n = 1
	}
	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(req.Model),
		N:      openai.Int(n),
		Size:   openai.ImageGenerateParamsSize(openAISize(req.Model, req.AspectRatio)),
	}
	if strings.HasPrefix(req.Model, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatURL
	}

	resp, err := client.Images.Generate(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &domain.ProviderError{Provider: c.desc.Name, StatusCode: apiErr.StatusCode, Message: apiErr.Message, Err: err}
		}
		return nil, transportError(c.desc.Name, err)
	}

	var urls []string
	for _, img := range resp.Data {
		switch {
		case img.URL != "":
			urls = append(urls, img.URL)
		case img.B64JSON != "":
			urls = append(urls, "data:image/png;base64,"+img.B64JSON)
		}
	}
	if len(urls) == 0 {
		return nil, &domain.NormalizationError{Provider: c.desc.Name}
	}
	c.log.Debug().Str("task_id", req.TaskID).Int("images", len(urls)).Msg("openai images generated")
	return urls, nil
}

func openAISize(modelName, ratio string) string {
	wide, tall := "1536x1024", "1024x1536"
	if strings.HasPrefix(modelName, "dall-e-3") {
		wide, tall = "1792x1024", "1024x1792"
	}
	switch ratio {
	case "16:9", "3:2", "4:3", "21:9", "5:4":
		return wide
	case "9:16", "2:3", "3:4", "4:5":
		return tall
	}
	return "1024x1024"
}
