package session

import (
	"context"
	"fmt"
)

// Message is one conversation turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider is a request/response LLM backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Ping(ctx context.Context) error
	Name() string
}

const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"

	DefaultOllamaURL = "http://localhost:11434"
)

// NewProvider builds the provider named by name.
func NewProvider(name, apiKey, baseURL string) (Provider, error) {
	switch name {
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, baseURL), nil
	case ProviderOllama:
		return NewOllamaProvider(baseURL), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
