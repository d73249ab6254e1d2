package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaEmbedder generates embeddings via the Ollama /api/embed endpoint.
type OllamaEmbedder struct {
	model   string
	baseURL string
	dims    int
	client  *http.Client
}

// NewOllamaEmbedder creates an OllamaEmbedder. dims is the vector length the
// model is expected to return; responses of any other length are rejected.
func NewOllamaEmbedder(model, baseURL string, dims int) *OllamaEmbedder {
	return &OllamaEmbedder{
		model:   model,
		baseURL: baseURL,
		dims:    dims,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Dimensions returns the expected vector length.
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// Model returns the Ollama model name.
func (e *OllamaEmbedder) Model() string { return e.model }

// Embed generates embeddings for the given texts.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	body := map[string]any{
		"model": e.model,
		"input": texts,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embed returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding embeddings: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d texts", len(result.Embeddings), len(texts))
	}
	for i, v := range result.Embeddings {
		if len(v) != e.dims {
			return nil, fmt.Errorf("ollama embed vector %d has %d dimensions, want %d", i, len(v), e.dims)
		}
		Normalize(v)
	}
	return result.Embeddings, nil
}
