package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// postJSON sends reqBody to url and decodes a 200 response into respBody.
// Failures come back classified as *ProviderError.
func (e *endpoint) postJSON(ctx context.Context, url string, headers map[string]string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return &ProviderError{Provider: e.name, Kind: KindRejected, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ProviderError{Provider: e.name, Kind: KindRejected, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	slog.Debug("calling model API", "provider", e.name, "model", e.model)

	resp, err := e.client.Do(req)
	if err != nil {
		return transportError(e.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(e.name, fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(e.name, resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, respBody); err != nil {
		return malformedError(e.name, fmt.Errorf("parsing response: %w", err))
	}
	return nil
}
