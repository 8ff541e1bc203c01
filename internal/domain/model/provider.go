package model

import "time"

type DispatchMode string

const (
	DispatchSync      DispatchMode = "sync"
	DispatchAsyncPoll DispatchMode = "async-poll"
)

type ProviderProtocol string

const (
	ProtocolImages     ProviderProtocol = "images"
	ProtocolAsync      ProviderProtocol = "async"
	ProtocolMultimodal ProviderProtocol = "multimodal"
	ProtocolGemini     ProviderProtocol = "gemini"
	ProtocolOpenAI     ProviderProtocol = "openai"
)

// ProviderDescriptor is the static description of one backend.
type ProviderDescriptor struct {
	Name            string
	Mode            DispatchMode
	Protocol        ProviderProtocol
	Endpoint        string
	EditEndpoint    string
	StatusEndpoint  string
	CredentialKey   string
	Models          []string
	MaxPromptLength int
	PollInterval    time.Duration
	MaxPollAttempts int
	StoragePrefix   string
	Timeout         time.Duration
}

func (d ProviderDescriptor) Supports(model string) bool {
	for _, m := range d.Models {
		if m == model {
			return true
		}
	}
	return false
}

func (d ProviderDescriptor) DefaultModel() string {
	if len(d.Models) == 0 {
		return ""
	}
	return d.Models[0]
}

// ModelEntry is one row of the public model catalog.
type ModelEntry struct {
	Name            string       `json:"name"`
	Provider        string       `json:"provider"`
	Mode            DispatchMode `json:"mode"`
	MaxPromptLength int          `json:"maxPromptLength"`
}
