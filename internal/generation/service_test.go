package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hoanghai1803/lumen/internal/ai"
	"github.com/hoanghai1803/lumen/internal/cache"
	"github.com/hoanghai1803/lumen/internal/models"
	"github.com/hoanghai1803/lumen/internal/storage"
)

func newTestService(t *testing.T, primary, fallback ai.Provider) (*Service, *storage.MemoryStore, *cache.Cache) {
	t.Helper()

	store := storage.NewMemoryStore()
	_, err := store.UpsertArticle(context.Background(), &models.Article{
		ID:          "a1",
		Title:       "Grid storage doubles",
		Description: "Battery storage on the grid doubled this year.",
		Content:     "Battery storage on the grid doubled this year. Prices fell sharply. Utilities expect more growth. Regulators are watching.",
		Category:    "energy",
		URL:         "https://example.com/a1",
		PublishedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("UpsertArticle error: %v", err)
	}

	c := cache.New(cache.NewMemoryBackend())
	return NewService(store, newChain(t, primary, fallback, ChainConfig{}), c, 0), store, c
}

func TestService_GenerateCachesProviderAnswers(t *testing.T) {
	primary := &mockProvider{name: "openai", model: "gpt-4o-mini", text: "Storage is booming."}
	svc, store, _ := newTestService(t, primary, nil)
	ctx := context.Background()

	req := models.GenerationRequest{Kind: models.KindSummarize, ArticleID: "a1", Length: "short"}
	first, err := svc.Generate(ctx, req)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if first.Text != "Storage is booming." || first.CacheHit || first.Confidence != models.ConfidenceHigh {
		t.Errorf("first response = %+v", first)
	}
	if len(first.Sources) != 1 || first.Sources[0].ArticleID != "a1" {
		t.Errorf("Sources = %+v", first.Sources)
	}
	if first.RequestID == "" {
		t.Error("RequestID should be set")
	}

	second, err := svc.Generate(ctx, req)
	if err != nil {
		t.Fatalf("second Generate error: %v", err)
	}
	if !second.CacheHit || second.Text != first.Text {
		t.Errorf("second response = %+v, want cache hit", second)
	}
	if second.RequestID == first.RequestID {
		t.Error("each request should get its own request id")
	}
	if primary.calls.Load() != 1 {
		t.Errorf("provider called %d times, want 1", primary.calls.Load())
	}

	rec, err := store.GetGeneration(ctx, first.RequestID)
	if err != nil {
		t.Fatalf("GetGeneration error: %v", err)
	}
	if rec.Response.Text != first.Text || rec.Request.ArticleID != "a1" {
		t.Errorf("record = %+v", rec)
	}
}

func TestService_GenerateCoalescesConcurrentRequests(t *testing.T) {
	primary := &mockProvider{name: "openai", model: "gpt-4o-mini", text: "Shared.", delay: 50 * time.Millisecond}
	svc, _, _ := newTestService(t, primary, nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Generate(context.Background(), models.GenerationRequest{Kind: models.KindSummarize, ArticleID: "a1"}); err != nil {
				t.Errorf("Generate error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := primary.calls.Load(); got != 1 {
		t.Errorf("provider called %d times for identical concurrent requests, want 1", got)
	}
}

func TestService_GenerateFallbackModel(t *testing.T) {
	primary := &mockProvider{name: "openai", model: "gpt-4o-mini", err: providerErr(ai.KindServer)}
	fallback := &mockProvider{name: "gemini", model: "gemini-2.0-flash-lite", text: "From Gemini."}
	svc, _, _ := newTestService(t, primary, fallback)

	resp, err := svc.Generate(context.Background(), models.GenerationRequest{Kind: models.KindSummarize, ArticleID: "a1"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if !resp.ProviderFallbackUsed || resp.ModelUsed != "gemini-2.0-flash-lite" {
		t.Errorf("response = %+v", resp)
	}
}

func TestService_ExtractiveAnswersAreNotCached(t *testing.T) {
	primary := &mockProvider{name: "openai", err: providerErr(ai.KindServer)}
	fallback := &mockProvider{name: "grok", err: providerErr(ai.KindTimeout)}
	svc, _, _ := newTestService(t, primary, fallback)
	ctx := context.Background()

	req := models.GenerationRequest{Kind: models.KindSummarize, ArticleID: "a1"}
	resp, err := svc.Generate(ctx, req)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Confidence != models.ConfidenceLow || resp.Text == "" || resp.TokensUsed != 0 {
		t.Errorf("response = %+v", resp)
	}
	want := "Battery storage on the grid doubled this year. Prices fell sharply. Utilities expect more growth."
	if resp.Text != want {
		t.Errorf("Text = %q, want %q", resp.Text, want)
	}

	if _, err := svc.Generate(ctx, req); err != nil {
		t.Fatalf("second Generate error: %v", err)
	}
	if primary.calls.Load() != 2 {
		t.Errorf("primary called %d times, want 2 (degraded answers are retried)", primary.calls.Load())
	}
}

func TestService_GenerateRejected(t *testing.T) {
	primary := &mockProvider{name: "openai", err: providerErr(ai.KindRejected)}
	svc, _, _ := newTestService(t, primary, nil)

	_, err := svc.Generate(context.Background(), models.GenerationRequest{Kind: models.KindSummarize, ArticleID: "a1"})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}

func TestService_GenerateMissingArticle(t *testing.T) {
	primary := &mockProvider{name: "openai", text: "unused"}
	svc, _, _ := newTestService(t, primary, nil)

	resp, err := svc.Generate(context.Background(), models.GenerationRequest{Kind: models.KindSummarize, ArticleID: "nope"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text != "" || resp.ModelUsed != NoModel || resp.Confidence != models.ConfidenceLow {
		t.Errorf("response = %+v, want neutral", resp)
	}
	if primary.calls.Load() != 0 {
		t.Error("provider should not be called for a missing article")
	}
}

func TestService_GenerateValidation(t *testing.T) {
	svc, _, _ := newTestService(t, &mockProvider{name: "openai", text: "x"}, nil)

	tests := []struct {
		name string
		req  models.GenerationRequest
	}{
		{"missing article", models.GenerationRequest{Kind: models.KindSummarize}},
		{"unknown kind", models.GenerationRequest{Kind: "poem", ArticleID: "a1"}},
		{"qa without question", models.GenerationRequest{Kind: models.KindQA, ArticleID: "a1", Question: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Generate(context.Background(), tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestService_QuestionsCachedSeparately(t *testing.T) {
	primary := &mockProvider{name: "openai", model: "gpt-4o-mini", text: "An answer."}
	svc, _, _ := newTestService(t, primary, nil)
	ctx := context.Background()

	for _, q := range []string{"Why did prices fall?", "why did  prices fall?", "Who regulates this?"} {
		if _, err := svc.Generate(ctx, models.GenerationRequest{Kind: models.KindQA, ArticleID: "a1", Question: q}); err != nil {
			t.Fatalf("Generate(%q) error: %v", q, err)
		}
	}
	if got := primary.calls.Load(); got != 2 {
		t.Errorf("provider called %d times, want 2 (normalised duplicate question should hit)", got)
	}
}

func TestService_InvalidationByArticle(t *testing.T) {
	primary := &mockProvider{name: "openai", model: "gpt-4o-mini", text: "Summary."}
	svc, _, c := newTestService(t, primary, nil)
	ctx := context.Background()
	req := models.GenerationRequest{Kind: models.KindSummarize, ArticleID: "a1"}

	if _, err := svc.Generate(ctx, req); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if _, err := c.Invalidate(ctx, models.InvalidationScope{ArticleID: "a1"}); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}
	resp, err := svc.Generate(ctx, req)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.CacheHit {
		t.Error("response after invalidation should not be a cache hit")
	}
	if primary.calls.Load() != 2 {
		t.Errorf("provider called %d times, want 2", primary.calls.Load())
	}
}

func TestService_Lookup(t *testing.T) {
	svc, _, _ := newTestService(t, &mockProvider{name: "openai", model: "m", text: "Text."}, nil)
	ctx := context.Background()

	resp, err := svc.Generate(ctx, models.GenerationRequest{Kind: models.KindReason, ArticleID: "a1", UserID: "u1"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	rec, err := svc.Lookup(ctx, resp.RequestID)
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if rec.Request.Kind != models.KindReason || rec.Response.RequestID != resp.RequestID {
		t.Errorf("record = %+v", rec)
	}
	if _, err := svc.Lookup(ctx, "unknown"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Lookup(unknown) err = %v, want ErrNotFound", err)
	}
}
