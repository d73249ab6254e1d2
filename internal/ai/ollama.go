package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const ollamaBaseURL = "http://localhost:11434"

// OllamaProvider implements Provider against a local Ollama server.
type OllamaProvider struct {
	endpoint
}

// NewOllamaProvider creates an OllamaProvider. Local models are slow to
// load, so the client timeout is longer than for hosted APIs.
func NewOllamaProvider(model string, opts ...Option) *OllamaProvider {
	opts = append([]Option{WithHTTPClient(&http.Client{Timeout: 120 * time.Second})}, opts...)
	return &OllamaProvider{endpoint: newEndpoint("ollama", "", model, ollamaBaseURL, opts)}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Complete sends p to /api/chat without streaming.
func (p *OllamaProvider) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	req := ollamaRequest{
		Model:  p.model,
		Stream: false,
		Options: ollamaOptions{
			NumPredict:  prompt.MaxTokens,
			Temperature: prompt.Temperature,
		},
	}
	if prompt.System != "" {
		req.Messages = append(req.Messages, openaiMessage{Role: "system", Content: prompt.System})
	}
	req.Messages = append(req.Messages, openaiMessage{Role: "user", Content: prompt.User})

	var resp ollamaResponse
	if err := p.postJSON(ctx, strings.TrimSuffix(p.baseURL, "/")+"/api/chat", nil, req, &resp); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return nil, malformedError(p.name, errors.New("empty message content"))
	}
	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &Completion{
		Text:       text,
		Model:      model,
		TokensUsed: resp.PromptEvalCount + resp.EvalCount,
	}, nil
}
