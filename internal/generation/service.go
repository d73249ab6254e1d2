package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hoanghai1803/lumen/internal/ai"
	"github.com/hoanghai1803/lumen/internal/cache"
	"github.com/hoanghai1803/lumen/internal/models"
	"github.com/hoanghai1803/lumen/internal/storage"
)

// ErrInvalidRequest is wrapped by validation failures.
var ErrInvalidRequest = errors.New("invalid generation request")

// NoModel is reported when nothing was generated.
const NoModel = "none"

// maxSourceChars bounds the article text placed in a prompt.
const maxSourceChars = 12000

// Store is what the service reads and writes.
type Store interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	SaveGeneration(ctx context.Context, rec *models.GenerationRecord) error
	GetGeneration(ctx context.Context, requestID string) (*models.GenerationRecord, error)
}

// Runner executes a prompt with fallback. *Chain implements it.
type Runner interface {
	Run(ctx context.Context, p ai.Prompt, excerpts []string) (*Result, error)
}

// Service answers generation requests through the response cache.
type Service struct {
	store Store
	chain Runner
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates a Service. A zero ttl selects cache.GenerationTTL.
func NewService(store Store, chain Runner, c *cache.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = cache.GenerationTTL
	}
	return &Service{store: store, chain: chain, cache: c, ttl: ttl, now: time.Now}
}

// degraded carries an extractive answer out of a cache computation so that
// it reaches every coalesced caller without being memoised.
type degraded struct {
	resp models.GenerationResponse
}

func (d *degraded) Error() string { return "degraded generation result" }

// Generate serves req. Provider failures degrade to an extractive answer
// and are never returned; only validation failures and ErrRejected are.
// A missing article yields an empty Low-confidence response.
func (s *Service) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	resp, err := s.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	resp.RequestID = uuid.NewString()
	if err := s.store.SaveGeneration(ctx, &models.GenerationRecord{
		RequestID: resp.RequestID,
		Request:   req,
		Response:  *resp,
		CreatedAt: s.now(),
	}); err != nil {
		slog.Warn("recording generation", "request_id", resp.RequestID, "error", err)
	}
	return resp, nil
}

func (s *Service) generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	article, err := s.store.GetArticle(ctx, req.ArticleID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Info("generation for unknown article", "article_id", req.ArticleID)
		return &models.GenerationResponse{
			ModelUsed:  NoModel,
			Sources:    []models.SourceCitation{},
			Confidence: models.ConfidenceLow,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading article %s: %w", req.ArticleID, err)
	}

	prompt, scope, keyParts := s.build(ctx, req, article)
	key := cache.Key(models.ResultGeneration, keyParts...)

	resp, hit, err := cache.Fetch(ctx, s.cache, key, s.ttl, scope,
		func(ctx context.Context) (models.GenerationResponse, error) {
			res, err := s.chain.Run(ctx, prompt, excerpts(article))
			if err != nil {
				return models.GenerationResponse{}, err
			}
			out := models.GenerationResponse{
				Text:                 res.Text,
				ModelUsed:            res.Model,
				TokensUsed:           res.TokensUsed,
				Sources:              []models.SourceCitation{citation(article)},
				Confidence:           res.Confidence,
				ProviderFallbackUsed: res.FallbackUsed,
			}
			if res.Stage == StageExtractive {
				return out, &degraded{resp: out}
			}
			return out, nil
		})

	var d *degraded
	if errors.As(err, &d) {
		return &d.resp, nil
	}
	if err != nil {
		return nil, err
	}
	resp.CacheHit = hit
	return &resp, nil
}

// build assembles the prompt, cache scope and cache key parts for req.
func (s *Service) build(ctx context.Context, req models.GenerationRequest, a *models.Article) (ai.Prompt, models.CacheScope, []string) {
	scope := models.CacheScope{Kind: models.ResultGeneration, ArticleIDs: []string{a.ID}}
	parts := []string{string(req.Kind), a.ID, a.ContentHash}
	content := sourceText(a)

	switch req.Kind {
	case models.KindQA:
		question := strings.Join(strings.Fields(strings.ToLower(req.Question)), " ")
		parts = append(parts, question)
		return ai.QuestionPrompt(req.Question, a.Title, content), scope, parts

	case models.KindReason:
		interests := s.interests(ctx, req.UserID, a.Category)
		scope.UserID = req.UserID
		parts = append(parts, req.UserID, strings.Join(interests, ","))
		return ai.ReasonPrompt(interests, a.Title, a.Category, a.Description), scope, parts

	default:
		length := ai.SummaryLength(req.Length)
		parts = append(parts, length)
		return ai.SummarizePrompt(a.Title, a.Source, content, length), scope, parts
	}
}

// interests returns the user's preferred categories, or the article's own
// category when the user is unknown.
func (s *Service) interests(ctx context.Context, userID, fallback string) []string {
	if userID != "" {
		p, err := s.store.GetProfile(ctx, userID)
		switch {
		case err == nil && len(p.PreferredCategories) > 0:
			return p.PreferredCategories
		case err == nil && p.Demographics != nil && len(p.Demographics.Interests) > 0:
			return p.Demographics.Interests
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			slog.Warn("loading profile for reason prompt", "user_id", userID, "error", err)
		}
	}
	return []string{fallback}
}

// Lookup returns the recorded generation for requestID.
func (s *Service) Lookup(ctx context.Context, requestID string) (*models.GenerationRecord, error) {
	return s.store.GetGeneration(ctx, requestID)
}

func validate(req *models.GenerationRequest) error {
	req.ArticleID = strings.TrimSpace(req.ArticleID)
	if req.ArticleID == "" {
		return fmt.Errorf("%w: article_id is required", ErrInvalidRequest)
	}
	switch req.Kind {
	case models.KindSummarize, models.KindReason:
	case models.KindQA:
		if strings.TrimSpace(req.Question) == "" {
			return fmt.Errorf("%w: question is required for qa", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	return nil
}

func sourceText(a *models.Article) string {
	text := a.Content
	if strings.TrimSpace(text) == "" {
		text = a.Description
	}
	if r := []rune(text); len(r) > maxSourceChars {
		text = string(r[:maxSourceChars])
	}
	return text
}

func excerpts(a *models.Article) []string {
	desc := strings.TrimSpace(a.Description)
	if desc == "" || strings.Contains(a.Content, desc) {
		return []string{a.Content}
	}
	return []string{desc, a.Content}
}

func citation(a *models.Article) models.SourceCitation {
	return models.SourceCitation{ArticleID: a.ID, Title: a.Title, URL: a.URL}
}
