package provider

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"uniai-studio/internal/config"
	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
)

var _ adapter.ProviderCatalog = (*Registry)(nil)

// Registry maps models to providers and providers to clients. It is built
// once at startup and read concurrently afterwards.
type Registry struct {
	defaultProvider string
	order           []string
	descriptors     map[string]model.ProviderDescriptor
	generators      map[string]adapter.ImageGenerator
}

func NewRegistry(defaultProvider string) *Registry {
	return &Registry{
		defaultProvider: strings.ToLower(defaultProvider),
		descriptors:     map[string]model.ProviderDescriptor{},
		generators:      map[string]adapter.ImageGenerator{},
	}
}

// Register adds a provider. Later registrations with the same name replace
// the client but keep the original position.
func (r *Registry) Register(desc model.ProviderDescriptor, gen adapter.ImageGenerator) {
	name := strings.ToLower(desc.Name)
	desc.Name = name
	if _, ok := r.descriptors[name]; !ok {
		r.order = append(r.order, name)
	}
	r.descriptors[name] = desc
	r.generators[name] = gen
}

func (r *Registry) Resolve(modelName, preferred string) (model.ProviderDescriptor, error) {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	if modelName == "" {
		for _, name := range []string{preferred, r.defaultProvider} {
			if d, ok := r.descriptors[name]; ok {
				return d, nil
			}
		}
		if len(r.order) > 0 {
			return r.descriptors[r.order[0]], nil
		}
		return model.ProviderDescriptor{}, &domain.ValidationError{Field: "model", Reason: "no providers configured"}
	}

	var candidates []string
	for _, name := range r.order {
		if r.descriptors[name].Supports(modelName) {
			candidates = append(candidates, name)
		}
	}
	switch len(candidates) {
	case 0:
		return model.ProviderDescriptor{}, &domain.ValidationError{
			Field:  "model",
			Reason: fmt.Sprintf("unsupported model %q, valid models: %s", modelName, strings.Join(r.modelNames(), ", ")),
		}
	case 1:
		return r.descriptors[candidates[0]], nil
	}
	for _, want := range []string{preferred, r.defaultProvider} {
		for _, c := range candidates {
			if c == want {
				return r.descriptors[c], nil
			}
		}
	}
	return r.descriptors[candidates[0]], nil
}

func (r *Registry) Descriptor(provider string) (model.ProviderDescriptor, bool) {
	d, ok := r.descriptors[strings.ToLower(provider)]
	return d, ok
}

func (r *Registry) Generator(provider string) (adapter.ImageGenerator, error) {
	g, ok := r.generators[strings.ToLower(provider)]
	if !ok || g == nil {
		return nil, fmt.Errorf("provider %q: %w", provider, domain.ErrNotFound)
	}
	return g, nil
}

// Catalog lists every model once, attributed to the provider that serves it
// by default.
func (r *Registry) Catalog() []model.ModelEntry {
	var out []model.ModelEntry
	for _, m := range r.modelNames() {
		d, err := r.Resolve(m, "")
		if err != nil {
			continue
		}
		out = append(out, model.ModelEntry{
			Name:            m,
			Provider:        d.Name,
			Mode:            d.Mode,
			MaxPromptLength: d.MaxPromptLength,
		})
	}
	return out
}

func (r *Registry) modelNames() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, name := range r.order {
		for _, m := range r.descriptors[name].Models {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// DescriptorFromConfig converts one provider block.
func DescriptorFromConfig(pc config.ProviderConfig) model.ProviderDescriptor {
	return model.ProviderDescriptor{
		Name:            pc.Name,
		Mode:            model.DispatchMode(pc.Mode),
		Protocol:        model.ProviderProtocol(pc.Protocol),
		Endpoint:        pc.Endpoint,
		EditEndpoint:    pc.EditEndpoint,
		StatusEndpoint:  pc.StatusEndpoint,
		CredentialKey:   pc.CredentialKey,
		Models:          append([]string(nil), pc.Models...),
		MaxPromptLength: pc.MaxPromptLength,
		PollInterval:    pc.PollInterval,
		MaxPollAttempts: pc.MaxPollAttempts,
		StoragePrefix:   pc.StoragePrefix,
		Timeout:         pc.Timeout,
	}
}

// NewClient builds the client for a descriptor's protocol.
func NewClient(desc model.ProviderDescriptor, log *zerolog.Logger) (adapter.ImageGenerator, error) {
	switch desc.Protocol {
	case model.ProtocolImages:
		return NewImagesClient(desc, log), nil
	case model.ProtocolAsync:
		return NewAsyncPollClient(desc, log), nil
	case model.ProtocolMultimodal:
		return NewMultimodalClient(desc, log), nil
	case model.ProtocolGemini:
		return NewGeminiClient(desc, log), nil
	case model.ProtocolOpenAI:
		return NewOpenAIClient(desc, log), nil
	}
	return nil, fmt.Errorf("provider %q: unknown protocol %q", desc.Name, desc.Protocol)
}

// BuildRegistry wires every configured provider behind its limiter.
func BuildRegistry(cfg *config.Config, log *zerolog.Logger) (*Registry, error) {
	reg := NewRegistry(cfg.Generation.DefaultProvider)
	for _, pc := range cfg.Providers {
		desc := DescriptorFromConfig(pc)
		client, err := NewClient(desc, log)
		if err != nil {
			return nil, err
		}
		reg.Register(desc, NewLimited(desc.Name, client, pc.ConcurrentLimit, pc.RatePerSecond))
	}
	return reg, nil
}
