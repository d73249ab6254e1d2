package ai

import (
	"context"
	"errors"
	"strings"
)

// Compile-time interface checks.
var (
	_ Provider = (*OpenAIProvider)(nil)
	_ Provider = (*AnthropicProvider)(nil)
	_ Provider = (*GeminiProvider)(nil)
	_ Provider = (*OllamaProvider)(nil)
	_ Provider = (*BreakerProvider)(nil)
)

const (
	openaiBaseURL = "https://api.openai.com/v1"
	grokBaseURL   = "https://api.x.ai/v1"
)

// OpenAIProvider implements Provider using the OpenAI Chat Completions API.
// xAI's Grok speaks the same protocol and uses this type too.
type OpenAIProvider struct {
	endpoint
}

// NewOpenAIProvider creates an OpenAIProvider with a 60-second timeout
// HTTP client.
func NewOpenAIProvider(apiKey, model string, opts ...Option) *OpenAIProvider {
	return &OpenAIProvider{endpoint: newEndpoint("openai", apiKey, model, openaiBaseURL, opts)}
}

// NewGrokProvider creates a provider for xAI's OpenAI-compatible endpoint.
func NewGrokProvider(apiKey, model string, opts ...Option) *OpenAIProvider {
	return &OpenAIProvider{endpoint: newEndpoint("grok", apiKey, model, grokBaseURL, opts)}
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends p to the chat completions endpoint.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	req := openaiRequest{
		Model:       p.model,
		Temperature: prompt.Temperature,
		MaxTokens:   prompt.MaxTokens,
	}
	if prompt.System != "" {
		req.Messages = append(req.Messages, openaiMessage{Role: "system", Content: prompt.System})
	}
	req.Messages = append(req.Messages, openaiMessage{Role: "user", Content: prompt.User})

	var resp openaiResponse
	err := p.postJSON(ctx, strings.TrimSuffix(p.baseURL, "/")+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + p.apiKey}, req, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, malformedError(p.name, errors.New("empty response: no choices returned"))
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &Completion{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
