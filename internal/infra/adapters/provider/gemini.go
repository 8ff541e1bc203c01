package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"mime"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
)

var _ adapter.ImageGenerator = (*GeminiClient)(nil)

// GeminiClient generates images with the Gemini API. Inline image parts are
// returned as data URIs; the relocator uploads them when storage is enabled.
type GeminiClient struct {
	desc model.ProviderDescriptor
	log  *zerolog.Logger
}

func NewGeminiClient(desc model.ProviderDescriptor, log *zerolog.Logger) *GeminiClient {
	l := log.With().Str("component", "GeminiClient").Str("provider", desc.Name).Logger()
	return &GeminiClient{desc: desc, log: &l}
}

func (g *GeminiClient) Generate(ctx context.Context, req adapter.GenerateRequest) ([]string, error) {
	if req.APIKey == "" {
		return nil, &domain.ProviderError{Provider: g.desc.Name, Message: "empty api key"}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     req.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient(g.desc.Timeout),
		HTTPOptions: genai.HTTPOptions{
			BaseURL: g.desc.Endpoint,
		},
	})
	if err != nil {
		return nil, transportError(g.desc.Name, err)
	}

	parts := make([]*genai.Part, 0, len(req.ReferenceImages)+1)
	for _, ref := range req.ReferenceImages {
		parts = append(parts, genai.NewPartFromURI(ref, guessImageMIME(ref)))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: req.AspectRatio,
			ImageSize:   req.Resolution,
		},
	}
	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &domain.ProviderError{Provider: g.desc.Name, StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
		}
		return nil, transportError(g.desc.Name, err)
	}

	urls := inlineImages(resp)
	if len(urls) == 0 {
		return nil, &domain.NormalizationError{Provider: g.desc.Name}
	}
	g.log.Debug().Str("task_id", req.TaskID).Int("images", len(urls)).Msg("gemini images generated")
	return urls, nil
}

func inlineImages(resp *genai.GenerateContentResponse) []string {
	if resp == nil {
		return nil
	}
	var out []string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch {
			case part == nil || part.Thought:
			case part.InlineData != nil && len(part.InlineData.Data) > 0:
				mt := part.InlineData.MIMEType
				if mt == "" {
					mt = "image/png"
				}
				out = append(out, "data:"+mt+";base64,"+base64.StdEncoding.EncodeToString(part.InlineData.Data))
			case part.FileData != nil && part.FileData.FileURI != "":
				out = append(out, part.FileData.FileURI)
			}
		}
	}
	return out
}

func guessImageMIME(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if mt := mime.TypeByExtension(path.Ext(u)); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return "image/png"
}
