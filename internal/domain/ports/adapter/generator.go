package adapter

import (
	"context"

	"uniai-studio/internal/domain/model"
)

// GenerateRequest is everything a provider client needs for one call.
type GenerateRequest struct {
	TaskID          string
	Model           string
	Prompt          string
	Resolution      string
	AspectRatio     string
	ReferenceImages []string
	Params          model.GenerationParams
	APIKey          string
}

// ImageGenerator is the port every provider client implements. It returns
// image URLs in provider order or a typed error from the domain package.
type ImageGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]string, error)
}

// ProviderCatalog resolves descriptors and clients by model or provider name.
type ProviderCatalog interface {
	// Resolve picks the provider for modelName. preferred is honored when it
	// serves the model; an empty modelName selects the preferred provider's
	// default model.
	Resolve(modelName, preferred string) (model.ProviderDescriptor, error)
	Descriptor(provider string) (model.ProviderDescriptor, bool)
	Generator(provider string) (ImageGenerator, error)
	Catalog() []model.ModelEntry
}
