// Package recommend ranks articles for a user and keeps user state current
// as interactions arrive.
//
// Users with a confident embedding are scored against every candidate by
// Scorer; everyone else goes through the cold-start handler. Results are
// cached per user and profile version for an hour and tagged with the
// returned articles, so content changes and material interactions
// invalidate them.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hoanghai1803/lumen/internal/cache"
	"github.com/hoanghai1803/lumen/internal/coldstart"
	"github.com/hoanghai1803/lumen/internal/embedding"
	"github.com/hoanghai1803/lumen/internal/metrics"
	"github.com/hoanghai1803/lumen/internal/models"
	"github.com/hoanghai1803/lumen/internal/storage"
)

// ErrInvalidRequest is returned for requests with missing or malformed
// fields.
var ErrInvalidRequest = errors.New("invalid recommendation request")

// Pipelines reported in recommendation metadata.
const (
	PipelinePersonalized = "personalized"
	PipelineTrending     = "trending_fallback"
	pipelineColdStart    = "cold_start:"
)

const (
	defaultMaxResults = 10
	maxMaxResults     = 100
	lockStripes       = 64
)

// Publisher carries events to whoever applies their cache consequences.
type Publisher interface {
	PublishInteraction(ctx context.Context, ev models.InteractionEvent) error
	PublishArticleChanged(ctx context.Context, ev models.ArticleEvent) error
}

// Config tunes an Engine.
type Config struct {
	Weights Weights
	// MinScore excludes results scoring at or below it.
	MinScore float64
	// MinConfidence is the user-embedding confidence at or below which a
	// user is treated as cold-start.
	MinConfidence  float64
	PreferredTopN  int
	MaxHistory     int
	CandidateLimit int
	CacheTTL       time.Duration
	Workers        int
}

func (c *Config) applyDefaults() {
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.MinScore == 0 {
		c.MinScore = 0.3
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.2
	}
	if c.PreferredTopN <= 0 {
		c.PreferredTopN = 5
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 500
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 500
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = cache.RecommendationTTL
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
}

// Request is a recommendation request.
type Request struct {
	UserID      string
	MaxResults  int
	Categories  []string
	ExcludeRead bool
}

// Engine serves recommendations and tracks interactions.
type Engine struct {
	store     storage.Store
	generator *embedding.Generator
	scorer    *Scorer
	coldstart *coldstart.Handler
	cache     *cache.Cache
	publisher Publisher
	cfg       Config
	now       func() time.Time

	// Profile updates are read-modify-write; same-user updates serialise
	// on a stripe.
	locks [lockStripes]sync.Mutex
}

// NewEngine creates an Engine. publisher may be nil, in which case cache
// invalidations run inline.
func NewEngine(store storage.Store, gen *embedding.Generator, cs *coldstart.Handler, c *cache.Cache, publisher Publisher, cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store:     store,
		generator: gen,
		scorer:    NewScorer(cfg.Weights),
		coldstart: cs,
		cache:     c,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// SetClock overrides the time source for the engine and its scorer.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.scorer.now = now
	e.coldstart.SetClock(now)
}

// Recommend returns up to req.MaxResults articles for req.UserID, best
// first. Users without a confident embedding get cold-start results.
func (e *Engine) Recommend(ctx context.Context, req Request) (*models.RecommendationSet, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if req.MaxResults < 0 {
		return nil, fmt.Errorf("%w: max results must not be negative", ErrInvalidRequest)
	}
	if req.MaxResults == 0 {
		req.MaxResults = defaultMaxResults
	}
	req.MaxResults = min(req.MaxResults, maxMaxResults)

	profile, err := e.profile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	cats := make([]string, 0, len(req.Categories))
	for _, c := range req.Categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			cats = append(cats, c)
		}
	}
	slices.Sort(cats)
	req.Categories = slices.Compact(cats)

	key := cache.Key(models.ResultRecommendation,
		req.UserID,
		profileVersion(profile),
		strconv.Itoa(req.MaxResults),
		strings.Join(req.Categories, ","),
		strconv.FormatBool(req.ExcludeRead),
	)
	set, hit, err := cache.FetchScoped(ctx, e.cache, key, e.cfg.CacheTTL,
		func(ctx context.Context) (models.RecommendationSet, models.CacheScope, error) {
			scope := models.CacheScope{Kind: models.ResultRecommendation, UserID: req.UserID}
			set, err := e.compute(ctx, req, profile)
			if err != nil {
				return models.RecommendationSet{}, scope, err
			}
			for _, r := range set.Recommendations {
				scope.ArticleIDs = append(scope.ArticleIDs, r.ArticleID)
			}
			return *set, scope, nil
		})
	if err != nil {
		return nil, err
	}

	if set.Recommendations == nil {
		set.Recommendations = []models.RecommendationResult{}
	}
	set.Metadata.CacheHit = hit
	metrics.RecommendPipelines.WithLabelValues(set.Metadata.Pipeline).Inc()
	return &set, nil
}

func (e *Engine) compute(ctx context.Context, req Request, profile *models.UserProfile) (*models.RecommendationSet, error) {
	candidates, err := e.store.ListArticles(ctx, models.ArticleFilter{
		Categories: req.Categories,
		Limit:      e.cfg.CandidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}
	if req.ExcludeRead && profile != nil {
		candidates = slices.DeleteFunc(candidates, func(a models.Article) bool {
			return profile.HasRead(a.ID)
		})
	}

	var (
		demographics *models.Demographics
		observed     []string
	)
	if profile != nil {
		demographics = profile.Demographics
		observed = profile.PreferredCategories
	}

	ue, err := e.store.GetUserEmbedding(ctx, req.UserID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading user embedding: %w", err)
	}
	if ue == nil || embedding.IsZero(ue.Vector) || ue.Confidence <= e.cfg.MinConfidence {
		results, priors := e.coldstart.Recommend(ctx, req.UserID, demographics, observed, candidates, req.MaxResults)
		slog.Debug("cold-start recommendation", "user_id", req.UserID, "strategy", priors.Strategy, "results", len(results))
		return &models.RecommendationSet{
			Recommendations: results,
			Metadata: models.RecommendationMetadata{
				Pipeline:   pipelineColdStart + string(priors.Strategy),
				Confidence: priors.Confidence,
			},
		}, nil
	}

	reader := NewReader(profile, ue, e.planCategories(profile)...)
	results, err := e.rank(ctx, reader, candidates, req.MaxResults)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && len(candidates) > 0 {
		priors := e.coldstart.Trending(demographics)
		return &models.RecommendationSet{
			Recommendations: e.coldstart.Rank(priors, demographics, candidates, req.MaxResults),
			Metadata: models.RecommendationMetadata{
				Pipeline:   PipelineTrending,
				Confidence: priors.Confidence,
			},
		}, nil
	}

	for i := range results {
		results[i].Confidence = ue.Confidence
	}
	return &models.RecommendationSet{
		Recommendations: results,
		Metadata: models.RecommendationMetadata{
			Pipeline:   PipelinePersonalized,
			Confidence: ue.Confidence,
		},
	}, nil
}

// planCategories returns the learning-plan categories for users still in
// their first weeks.
func (e *Engine) planCategories(p *models.UserProfile) []string {
	if p == nil || p.Demographics == nil || p.Demographics.OnboardedAt.IsZero() {
		return nil
	}
	plan := e.coldstart.LearningPlan(p.UserID, p.Demographics, p.Demographics.OnboardedAt)
	return plan.ActiveCategories(e.now())
}

// rank scores candidates in parallel chunks and returns the best limit
// results above the minimum score.
func (e *Engine) rank(ctx context.Context, r *Reader, candidates []models.Article, limit int) ([]models.RecommendationResult, error) {
	ids := make([]string, len(candidates))
	for i, a := range candidates {
		ids[i] = a.ID
	}
	vectors, err := e.store.GetArticleEmbeddings(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading article embeddings: %w", err)
	}

	scores := make([]Breakdown, len(candidates))
	chunk := (len(candidates) + e.cfg.Workers - 1) / e.cfg.Workers
	chunk = max(chunk, 1)

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(candidates); start += chunk {
		end := min(start+chunk, len(candidates))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				scores[i] = e.scorer.Score(r, &candidates[i], vectors[candidates[i].ID])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	order := make([]int, 0, len(candidates))
	for i, s := range scores {
		if s.Total > e.cfg.MinScore {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(x, y int) bool {
		a, b := order[x], order[y]
		if scores[a].Total != scores[b].Total {
			return scores[a].Total > scores[b].Total
		}
		return candidates[a].PublishedAt.After(candidates[b].PublishedAt)
	})
	if len(order) > limit {
		order = order[:limit]
	}

	results := make([]models.RecommendationResult, len(order))
	for i, idx := range order {
		a := &candidates[idx]
		results[i] = models.RecommendationResult{
			ArticleID: a.ID,
			Score:     scores[idx].Total,
			Reason:    scores[idx].Reason(a.Category),
			Category:  a.Category,
		}
	}
	return results, nil
}

func (e *Engine) profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	p, err := e.store.GetProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile %s: %w", userID, err)
	}
	return p, nil
}

// profileVersion changes whenever anything recommendations depend on in
// the profile changes.
func profileVersion(p *models.UserProfile) string {
	if p == nil {
		return "new"
	}
	v := strconv.Itoa(len(p.History)) + "/" + strconv.FormatInt(p.LastActive.UnixNano(), 36)
	if p.Demographics != nil {
		v += "/" + strconv.FormatInt(p.Demographics.OnboardedAt.UnixNano(), 36)
	}
	return v
}

func (e *Engine) lock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &e.locks[h.Sum32()%lockStripes]
}

// invalidate applies scopes, logging failures.
func (e *Engine) invalidate(ctx context.Context, scopes []models.InvalidationScope) {
	for _, s := range scopes {
		if _, err := e.cache.Invalidate(ctx, s); err != nil {
			slog.Warn("cache invalidation failed",
				"user_id", s.UserID, "article_id", s.ArticleID, "type", s.Kind, "error", err)
		}
	}
}
