package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/rs/zerolog"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
)

var _ adapter.ImageGenerator = (*MultimodalClient)(nil)

// MultimodalClient calls a DashScope style multimodal-generation endpoint.
// Images come back as typed content parts inside chat-like choices.
type MultimodalClient struct {
	desc       model.ProviderDescriptor
	client     *http.Client
	normalizer *Normalizer
	log        *zerolog.Logger
}

func NewMultimodalClient(desc model.ProviderDescriptor, log *zerolog.Logger) *MultimodalClient {
	l := log.With().Str("component", "MultimodalClient").Str("provider", desc.Name).Logger()
	return &MultimodalClient{
		desc:       desc,
		client:     newHTTPClient(desc.Timeout),
		normalizer: NewNormalizer(Strategy{Name: "output.choices[].content[].image", Path: "output.choices.0.message.content.#.image"}),
		log:        &l,
	}
}

type mmContent struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type mmMessage struct {
	Role    string      `json:"role"`
	Content []mmContent `json:"content"`
}

type mmParameters struct {
	PromptExtend bool   `json:"prompt_extend"`
	Size         string `json:"size"`
	Seed         *int64 `json:"seed,omitempty"`
	Steps        *int   `json:"steps,omitempty"`
}

type mmRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []mmMessage `json:"messages"`
	} `json:"input"`
	Parameters mmParameters `json:"parameters"`
}

type mmResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []mmContent `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
}

func (c *MultimodalClient) Generate(ctx context.Context, req adapter.GenerateRequest) ([]string, error) {
	var body mmRequest
	body.Model = req.Model
	// the endpoint accepts exactly one text part; reference images are not sent
	body.Input.Messages = []mmMessage{{Role: "user", Content: []mmContent{{Text: req.Prompt}}}}
	body.Parameters = mmParameters{
		PromptExtend: false,
		Size:         ImageSize(req.Params.Width, req.Params.Height, req.AspectRatio, req.Resolution),
	}
	if s := req.Params.Seed; s != nil && *s != -1 {
		body.Parameters.Seed = s
	}
	if req.Params.Steps > 0 {
		steps := req.Params.Steps
		body.Parameters.Steps = &steps
	}
	c.log.Debug().Str("task_id", req.TaskID).Str("size", body.Parameters.Size).Msg("calling multimodal endpoint")

	code, raw, err := doJSON(ctx, c.client, http.MethodPost, c.desc.Endpoint, bearer(req.APIKey), body)
	if err != nil {
		return nil, transportError(c.desc.Name, err)
	}
	if !isSuccess(code) {
		return nil, httpError(c.desc.Name, code, raw)
	}

	var parsed mmResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &domain.ProviderError{Provider: c.desc.Name, Message: "malformed response", Err: err}
	}
	if len(parsed.Output.Choices) == 0 {
		if urls := c.normalizer.Normalize(raw); len(urls) > 0 {
			return urls, nil
		}
		return nil, &domain.NormalizationError{Provider: c.desc.Name}
	}
	var urls []string
	for _, part := range parsed.Output.Choices[0].Message.Content {
		if part.Image != "" {
			urls = append(urls, part.Image)
		}
	}
	if urls = dedupe(urls); len(urls) == 0 {
		return nil, &domain.NormalizationError{Provider: c.desc.Name}
	}
	return urls, nil
}

var resolutionBase = map[string]int{"1K": 1024, "2K": 1536, "4K": 2048}

// ratioScale maps an aspect ratio to width and height multipliers of the
// resolution base.
var ratioScale = map[string][2]float64{
	"1:1":  {1, 1},
	"2:3":  {0.82, 1.22},
	"3:2":  {1.22, 0.82},
	"3:4":  {0.86, 1.15},
	"4:3":  {1.15, 0.86},
	"9:16": {0.72, 1.28},
	"16:9": {1.28, 0.72},
}

// ImageSize renders the "W*H" size parameter. Explicit dimensions win;
// otherwise the ratio scales the resolution base (1K when unknown).
func ImageSize(width, height int, aspectRatio, resolution string) string {
	if width > 0 && height > 0 {
		return fmt.Sprintf("%d*%d", width, height)
	}
	b, ok := resolutionBase[resolution]
	if !ok {
		b = 1024
	}
	scale, ok := ratioScale[aspectRatio]
	if !ok {
		scale = ratioScale["1:1"]
	}
	w := int(math.Round(float64(b) * scale[0]))
	h := int(math.Round(float64(b) * scale[1]))
	return fmt.Sprintf("%d*%d", w, h)
}
