package ai

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider implements Provider using the Gemini generateContent API.
type GeminiProvider struct {
	endpoint
}

// NewGeminiProvider creates a GeminiProvider.
func NewGeminiProvider(apiKey, model string, opts ...Option) *GeminiProvider {
	return &GeminiProvider{endpoint: newEndpoint("gemini", apiKey, model, geminiBaseURL, opts)}
}

type geminiRequest struct {
	SystemInstruction *geminiContent        `json:"systemInstruction,omitempty"`
	Contents          []geminiContent       `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Complete sends p to the generateContent endpoint.
func (p *GeminiProvider) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt.User}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     prompt.Temperature,
			MaxOutputTokens: prompt.MaxTokens,
		},
	}
	if prompt.System != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: prompt.System}}}
	}

	endpointURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimSuffix(p.baseURL, "/"), url.PathEscape(p.model), url.QueryEscape(p.apiKey))

	var resp geminiResponse
	if err := p.postJSON(ctx, endpointURL, nil, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, malformedError(p.name, errors.New("no candidates in response"))
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, malformedError(p.name, errors.New("empty candidate text"))
	}

	return &Completion{
		Text:       text,
		Model:      p.model,
		TokensUsed: resp.UsageMetadata.TotalTokenCount,
	}, nil
}
