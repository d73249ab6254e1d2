// Package ai talks to text-generation models: OpenAI, Anthropic, xAI Grok,
// Google Gemini and local Ollama. Every provider reports failures as a
// *ProviderError whose Kind says whether another provider is worth trying.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Prompt is a single-turn request to a model.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Completion is a model's answer to a Prompt.
type Completion struct {
	Text       string
	Model      string
	TokensUsed int
}

// Provider is a text-generation backend.
type Provider interface {
	// Name identifies the vendor, e.g. "openai".
	Name() string
	// Model is the model identifier requests are sent to.
	Model() string
	// Complete sends p and returns the model's answer. Errors are
	// *ProviderError values.
	Complete(ctx context.Context, p Prompt) (*Completion, error)
}

// ProviderConfig holds the configuration needed to create a provider.
type ProviderConfig struct {
	Provider string // "openai" | "anthropic" | "grok" | "gemini" | "ollama"
	APIKey   string
	Model    string
	BaseURL  string
}

// Default models per provider, used when the config leaves Model empty.
var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-haiku-4-5",
	"grok":      "grok-3-mini",
	"gemini":    "gemini-2.0-flash-lite",
	"ollama":    "llama3.2",
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	model := cfg.Model
	if model == "" {
		model = defaultModels[cfg.Provider]
	}

	var opts []Option
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, model, opts...), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, model, opts...), nil
	case "grok", "xai":
		return NewGrokProvider(cfg.APIKey, model, opts...), nil
	case "gemini":
		return NewGeminiProvider(cfg.APIKey, model, opts...), nil
	case "ollama":
		return NewOllamaProvider(model, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %q", cfg.Provider)
	}
}

// endpoint carries what every HTTP-backed provider needs.
type endpoint struct {
	name    string
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func newEndpoint(name, apiKey, model, baseURL string, opts []Option) endpoint {
	e := endpoint{
		name:    name,
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e *endpoint) Name() string  { return e.name }
func (e *endpoint) Model() string { return e.model }

// Option configures an HTTP-backed provider.
type Option func(*endpoint)

// WithBaseURL points the provider at a different API root (tests, proxies,
// self-hosted gateways).
func WithBaseURL(url string) Option {
	return func(e *endpoint) { e.baseURL = url }
}

// WithHTTPClient replaces the provider's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *endpoint) { e.client = c }
}
