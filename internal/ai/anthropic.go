package ai

import (
	"context"
	"errors"
	"strings"
)

const anthropicBaseURL = "https://api.anthropic.com/v1"

// AnthropicProvider implements Provider using the Anthropic Messages API.
type AnthropicProvider struct {
	endpoint
}

// NewAnthropicProvider creates an AnthropicProvider with a 60-second timeout
// HTTP client.
func NewAnthropicProvider(apiKey, model string, opts ...Option) *AnthropicProvider {
	return &AnthropicProvider{endpoint: newEndpoint("anthropic", apiKey, model, anthropicBaseURL, opts)}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends p to the messages endpoint.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	maxTokens := prompt.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	req := anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		System:      prompt.System,
		Temperature: prompt.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt.User}},
	}

	var resp anthropicResponse
	err := p.postJSON(ctx, strings.TrimSuffix(p.baseURL, "/")+"/messages", map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": "2023-06-01",
	}, req, &resp)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, malformedError(p.name, errors.New("empty response: no content blocks returned"))
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &Completion{
		Text:       text,
		Model:      model,
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}
