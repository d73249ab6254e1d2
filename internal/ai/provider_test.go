package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ProviderConfig
		wantErr   bool
		wantName  string
		wantModel string
	}{
		{"anthropic", ProviderConfig{Provider: "anthropic", APIKey: "k", Model: "claude-haiku-4-5"}, false, "anthropic", "claude-haiku-4-5"},
		{"openai default model", ProviderConfig{Provider: "openai", APIKey: "k"}, false, "openai", "gpt-4o-mini"},
		{"grok", ProviderConfig{Provider: "grok", APIKey: "k"}, false, "grok", "grok-3-mini"},
		{"xai alias", ProviderConfig{Provider: "xai", APIKey: "k", Model: "grok-2"}, false, "grok", "grok-2"},
		{"gemini", ProviderConfig{Provider: "gemini", APIKey: "k"}, false, "gemini", "gemini-2.0-flash-lite"},
		{"ollama", ProviderConfig{Provider: "ollama", Model: "mistral"}, false, "ollama", "mistral"},
		{"unsupported", ProviderConfig{Provider: "invalid"}, true, "", ""},
		{"empty", ProviderConfig{}, true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if p != nil {
					t.Fatal("expected nil provider when error occurs")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.wantName || p.Model() != tt.wantModel {
				t.Errorf("got %s/%s, want %s/%s", p.Name(), p.Model(), tt.wantName, tt.wantModel)
			}
		})
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var gotReq openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"model":"gpt-4o-mini-2024","choices":[{"message":{"content":" Hello there. "}}],"usage":{"total_tokens":42}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "gpt-4o-mini", WithBaseURL(srv.URL))
	c, err := p.Complete(context.Background(), Prompt{System: "sys", User: "hi", Temperature: 0.3, MaxTokens: 100})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if c.Text != "Hello there." || c.Model != "gpt-4o-mini-2024" || c.TokensUsed != 42 {
		t.Errorf("completion = %+v", c)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.MaxTokens != 100 {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s, want /messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.System != "sys" || req.MaxTokens != 1024 {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"Answer."}],"usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-haiku-4-5", WithBaseURL(srv.URL))
	c, err := p.Complete(context.Background(), Prompt{System: "sys", User: "q"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if c.Text != "Answer." || c.TokensUsed != 15 || c.Model != "claude-haiku-4-5" {
		t.Errorf("completion = %+v", c)
	}
}

func TestGeminiProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash-lite:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Part one. "},{"text":"Part two."}]}}],"usageMetadata":{"totalTokenCount":7}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("test-key", "gemini-2.0-flash-lite", WithBaseURL(srv.URL))
	c, err := p.Complete(context.Background(), Prompt{User: "q"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if c.Text != "Part one. Part two." || c.TokensUsed != 7 {
		t.Errorf("completion = %+v", c)
	}
}

func TestOllamaProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s, want /api/chat", r.URL.Path)
		}
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("stream should be false")
		}
		w.Write([]byte(`{"model":"llama3.2","message":{"content":"Local answer."},"prompt_eval_count":3,"eval_count":4}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider("llama3.2", WithBaseURL(srv.URL))
	c, err := p.Complete(context.Background(), Prompt{User: "q"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if c.Text != "Local answer." || c.TokensUsed != 7 {
		t.Errorf("completion = %+v", c)
	}
}

func TestProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  ErrorKind
		retryable bool
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, KindRateLimit, true},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, KindServer, true},
		{"bad gateway", http.StatusBadGateway, ``, KindServer, true},
		{"unavailable", http.StatusServiceUnavailable, ``, KindUnavailable, true},
		{"gateway timeout", http.StatusGatewayTimeout, ``, KindTimeout, true},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, KindUnavailable, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid model"}}`, KindRejected, false},
		{"unavailable marker", http.StatusBadRequest, `{"error":{"message":"Service Unavailable, try later"}}`, KindUnavailable, true},
		{"malformed body", http.StatusOK, `not json`, KindMalformed, false},
		{"empty choices", http.StatusOK, `{"choices":[]}`, KindMalformed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOpenAIProvider("k", "m", WithBaseURL(srv.URL))
			_, err := p.Complete(context.Background(), Prompt{User: "q"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %q, want %q (err: %v)", got, tt.wantKind, err)
			}
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestProvider_TimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", "m", WithBaseURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, Prompt{User: "q"})
	if KindOf(err) != KindTimeout {
		t.Errorf("kind = %q, want timeout (err: %v)", KindOf(err), err)
	}
	if !IsRetryable(err) {
		t.Error("timeout should be retryable")
	}
}

func TestProvider_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewAnthropicProvider("k", "m", WithBaseURL(url))
	_, err := p.Complete(context.Background(), Prompt{User: "q"})
	if KindOf(err) != KindUnavailable || !IsRetryable(err) {
		t.Errorf("err = %v, want retryable unavailable", err)
	}
}

func TestIsRetryable_PlainErrors(t *testing.T) {
	if IsRetryable(errors.New("plain")) {
		t.Error("plain error should not be retryable")
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be retryable")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "  ok  ", n: 10, want: "ok"},
		{name: "ascii", in: "abcdef", n: 3, want: "abc..."},
		{name: "inside multibyte rune", in: "ab\u00e9cd", n: 3, want: "ab..."},
		{name: "inside wide rune", in: "\u65e5\u672c\u8a9e", n: 4, want: "\u65e5..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) = %q is not valid UTF-8", tt.in, tt.n, got)
			}
		})
	}
}
