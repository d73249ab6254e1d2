package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/hoanghai1803/lumen/internal/coldstart"
	"github.com/hoanghai1803/lumen/internal/metrics"
	"github.com/hoanghai1803/lumen/internal/models"
	"github.com/hoanghai1803/lumen/internal/storage"
)

// popularityDelta is how much each action raises an article's popularity.
var popularityDelta = map[models.ActionKind]float64{
	models.ActionView:  1,
	models.ActionRead:  2,
	models.ActionLike:  3,
	models.ActionSave:  4,
	models.ActionShare: 5,
}

// affinity is how much each action says about interest in a category.
var affinity = map[models.ActionKind]float64{
	models.ActionView:  1,
	models.ActionRead:  2,
	models.ActionLike:  3,
	models.ActionSave:  4,
	models.ActionShare: 5,
	models.ActionSkip:  -1,
}

// TrackRequest records one user interaction.
type TrackRequest struct {
	UserID          string
	ArticleID       string
	Action          models.ActionKind
	DurationSeconds float64
	ScrollDepth     float64
}

// Track appends the interaction to the user's history, refreshes their
// preferred categories and, for engaged actions, their embedding. Cache
// invalidation is handed to the publisher and not waited on. Tracking an
// unknown article returns storage.ErrNotFound.
func (e *Engine) Track(ctx context.Context, req TrackRequest) error {
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	case strings.TrimSpace(req.ArticleID) == "":
		return fmt.Errorf("%w: article id is required", ErrInvalidRequest)
	case !req.Action.Valid():
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, req.Action)
	case req.DurationSeconds < 0:
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidRequest)
	}

	article, err := e.store.GetArticle(ctx, req.ArticleID)
	if err != nil {
		return fmt.Errorf("loading article %s: %w", req.ArticleID, err)
	}

	mu := e.lock(req.UserID)
	mu.Lock()
	profile, err := e.recordInteraction(ctx, req, article)
	if err == nil && req.Action.Engaged() {
		err = e.refreshUserEmbedding(ctx, profile, article)
	}
	mu.Unlock()
	if err != nil {
		return err
	}

	if delta := popularityDelta[req.Action]; delta > 0 {
		if err := e.store.AddPopularity(ctx, req.ArticleID, delta); err != nil {
			slog.Warn("updating popularity", "article_id", req.ArticleID, "error", err)
		}
	}
	metrics.InteractionsTracked.WithLabelValues(string(req.Action)).Inc()

	ev := models.InteractionEvent{
		UserID:     req.UserID,
		ArticleID:  req.ArticleID,
		Action:     req.Action,
		Material:   req.Action.Engaged(),
		OccurredAt: e.now(),
	}
	if e.publisher == nil {
		e.invalidate(ctx, ev.Invalidations())
		return nil
	}
	if err := e.publisher.PublishInteraction(ctx, ev); err != nil {
		slog.Warn("publishing interaction", "user_id", req.UserID, "error", err)
		e.invalidate(ctx, ev.Invalidations())
	}
	return nil
}

func (e *Engine) recordInteraction(ctx context.Context, req TrackRequest, article *models.Article) (*models.UserProfile, error) {
	now := e.now()
	profile, err := e.profile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		profile = &models.UserProfile{UserID: req.UserID, CreatedAt: now}
	}
	if profile.CategoryTime == nil {
		profile.CategoryTime = make(map[string]float64)
	}

	profile.History = append(profile.History, models.Interaction{
		ArticleID:       req.ArticleID,
		Action:          req.Action,
		Category:        article.Category,
		OccurredAt:      now,
		DurationSeconds: req.DurationSeconds,
		ScrollDepth:     req.ScrollDepth,
	})
	if over := len(profile.History) - e.cfg.MaxHistory; over > 0 {
		profile.History = profile.History[over:]
	}
	if req.DurationSeconds > 0 && article.Category != "" {
		profile.CategoryTime[strings.ToLower(article.Category)] += req.DurationSeconds
	}
	profile.PreferredCategories = preferredCategories(profile, e.cfg.PreferredTopN)
	profile.LastActive = now

	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("saving profile %s: %w", req.UserID, err)
	}
	return profile, nil
}

// preferredCategories ranks categories by the affinity of the user's
// history, with a bonus for time spent reading, and fills any remaining
// slots with stated interests.
func preferredCategories(p *models.UserProfile, n int) []string {
	scores := make(map[string]float64)
	for _, it := range p.History {
		if it.Category == "" {
			continue
		}
		c := strings.ToLower(it.Category)
		scores[c] += affinity[it.Action] + math.Min(it.DurationSeconds/60, 5)
	}

	cats := make([]string, 0, len(scores))
	for c, s := range scores {
		if s > 0 {
			cats = append(cats, c)
		}
	}
	sort.Slice(cats, func(i, j int) bool {
		if scores[cats[i]] != scores[cats[j]] {
			return scores[cats[i]] > scores[cats[j]]
		}
		return cats[i] < cats[j]
	})
	if len(cats) > n {
		cats = cats[:n]
	}

	if p.Demographics != nil {
		for _, c := range p.Demographics.Interests {
			if len(cats) >= n {
				break
			}
			c = strings.ToLower(strings.TrimSpace(c))
			if c != "" && scores[c] >= 0 && !slices.Contains(cats, c) {
				cats = append(cats, c)
			}
		}
	}
	return cats
}

// refreshUserEmbedding recomputes the user's vector from their engaged
// history. The just-engaged article is embedded on the spot if it has no
// embedding yet.
func (e *Engine) refreshUserEmbedding(ctx context.Context, p *models.UserProfile, article *models.Article) error {
	var ids []string
	for _, it := range p.History {
		if it.Action.Engaged() && !slices.Contains(ids, it.ArticleID) {
			ids = append(ids, it.ArticleID)
		}
	}
	vectors, err := e.store.GetArticleEmbeddings(ctx, ids)
	if err != nil {
		return fmt.Errorf("loading article embeddings: %w", err)
	}
	if _, ok := vectors[article.ID]; !ok {
		ae, err := e.embedArticle(ctx, article)
		if err != nil {
			slog.Warn("embedding engaged article", "article_id", article.ID, "error", err)
		} else {
			vectors[article.ID] = ae
		}
	}

	ue, coldStart := e.generator.UserEmbedding(p.UserID, p.History, vectors)
	if err := e.store.PutUserEmbedding(ctx, ue); err != nil {
		return fmt.Errorf("saving user embedding %s: %w", p.UserID, err)
	}
	slog.Debug("user embedding refreshed", "user_id", p.UserID, "confidence", ue.Confidence, "cold_start", coldStart)
	return nil
}

func (e *Engine) embedArticle(ctx context.Context, a *models.Article) (*models.ArticleEmbedding, error) {
	ae, err := e.generator.ArticleEmbedding(ctx, a)
	if err != nil {
		return nil, err
	}
	if err := e.store.PutArticleEmbedding(ctx, ae); err != nil {
		return nil, fmt.Errorf("saving article embedding %s: %w", a.ID, err)
	}
	return ae, nil
}

// RefreshArticle stores a, re-embeds it when its content changed or it has
// no embedding yet, and invalidates cached results that include it.
// Categories are stored lowercased.
func (e *Engine) RefreshArticle(ctx context.Context, a *models.Article) (changed bool, err error) {
	switch {
	case strings.TrimSpace(a.ID) == "":
		return false, fmt.Errorf("%w: article id is required", ErrInvalidRequest)
	case strings.TrimSpace(a.Title) == "":
		return false, fmt.Errorf("%w: article title is required", ErrInvalidRequest)
	}
	a.Category = strings.ToLower(strings.TrimSpace(a.Category))
	if a.PublishedAt.IsZero() {
		a.PublishedAt = e.now()
	}

	changed, err = e.store.UpsertArticle(ctx, a)
	if err != nil {
		return false, fmt.Errorf("storing article %s: %w", a.ID, err)
	}

	if !changed {
		_, err := e.store.GetArticleEmbedding(ctx, a.ID)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return false, fmt.Errorf("loading article embedding %s: %w", a.ID, err)
		}
	}

	stored, err := e.store.GetArticle(ctx, a.ID)
	if err != nil {
		return changed, fmt.Errorf("reloading article %s: %w", a.ID, err)
	}
	if _, err := e.embedArticle(ctx, stored); err != nil {
		return changed, err
	}

	if changed {
		ev := models.ArticleEvent{ArticleID: a.ID, ChangedAt: e.now()}
		if e.publisher == nil {
			e.invalidate(ctx, ev.Invalidations())
		} else if err := e.publisher.PublishArticleChanged(ctx, ev); err != nil {
			slog.Warn("publishing article change", "article_id", a.ID, "error", err)
			e.invalidate(ctx, ev.Invalidations())
		}
	}
	return changed, nil
}

// Onboard stores what a user stated at onboarding and starts their
// learning plan.
func (e *Engine) Onboard(ctx context.Context, userID string, d models.Demographics) (*models.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}

	mu := e.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := e.now()
	profile, err := e.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		profile = &models.UserProfile{UserID: userID, CreatedAt: now}
	}
	if profile.Demographics != nil && !profile.Demographics.OnboardedAt.IsZero() {
		d.OnboardedAt = profile.Demographics.OnboardedAt
	} else {
		d.OnboardedAt = now
	}
	profile.Demographics = &d
	profile.PreferredCategories = preferredCategories(profile, e.cfg.PreferredTopN)
	profile.LastActive = now

	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("saving profile %s: %w", userID, err)
	}
	e.invalidate(ctx, []models.InvalidationScope{{UserID: userID}})
	return profile, nil
}

// Priors returns the cold-start priors for a user, adjusted by the
// categories they have engaged with.
func (e *Engine) Priors(ctx context.Context, userID string) (*coldstart.Priors, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	profile, err := e.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return e.coldstart.Priors(ctx, userID, nil), nil
	}
	return e.coldstart.Priors(ctx, userID, profile.Demographics).WithObserved(profile.PreferredCategories), nil
}

// LearningPlan returns a user's learning plan, starting now for users who
// never onboarded.
func (e *Engine) LearningPlan(ctx context.Context, userID string) (*coldstart.LearningPlan, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	profile, err := e.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	started := e.now()
	var d *models.Demographics
	if profile != nil && profile.Demographics != nil {
		d = profile.Demographics
		if !d.OnboardedAt.IsZero() {
			started = d.OnboardedAt
		}
	}
	return e.coldstart.LearningPlan(userID, d, started), nil
}
