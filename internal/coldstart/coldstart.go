// Package coldstart recommends articles to readers who have too little
// history for similarity scoring.
//
// Each user is assigned one of three strategies by hashing their ID, so
// the assignment is stable across requests and replicas without stored
// state:
//
//   - Demographic maps age bracket, profession and locale to category
//     priors (confidence at most 0.8).
//   - Trending favours configured trending categories and keywords, recent
//     articles and an optional location match (confidence 0.4).
//   - LLM asks a text-generation model for the priors and falls back to
//     Demographic when that fails.
//
// A three-phase learning plan widens the category set over a user's first
// weeks.
package coldstart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hoanghai1803/lumen/internal/ai"
	"github.com/hoanghai1803/lumen/internal/cache"
	"github.com/hoanghai1803/lumen/internal/embedding"
	"github.com/hoanghai1803/lumen/internal/generation"
	"github.com/hoanghai1803/lumen/internal/models"
)

// Strategy is a cold-start recommendation strategy.
type Strategy string

const (
	StrategyDemographic Strategy = "demographic"
	StrategyTrending    Strategy = "trending"
	StrategyLLM         Strategy = "llm"
)

var strategies = []Strategy{StrategyDemographic, StrategyTrending, StrategyLLM}

const (
	demographicMaxConfidence = 0.8
	trendingConfidence       = 0.4
	llmMaxConfidence         = 0.8
	maxPriorCategories       = 6
	priorsTTL                = 24 * time.Hour
)

// SelectStrategy returns the strategy assigned to userID.
func SelectStrategy(userID string) Strategy {
	return strategies[userHash(userID)%uint32(len(strategies))]
}

// Priors are inferred preferences for a user without history.
type Priors struct {
	Strategy      Strategy `json:"strategy"`
	Categories    []string `json:"categories"`
	TimeOfDay     string   `json:"time_of_day"`
	ReadingLevel  string   `json:"reading_level"`
	ContentLength string   `json:"content_length"`
	Reasoning     string   `json:"reasoning"`
	Confidence    float64  `json:"confidence"`
	// Observed are categories the user has already engaged with. They
	// rank ahead of inferred categories.
	Observed []string `json:"observed_categories,omitempty"`
}

// WithObserved returns a copy of p with observed categories moved to the
// front of its category list.
func (p *Priors) WithObserved(observed []string) *Priors {
	out := *p
	out.Observed = topUnique(observed, maxPriorCategories)
	if len(out.Observed) == 0 {
		out.Observed = nil
		return &out
	}
	out.Categories = topUnique(append(slices.Clone(out.Observed), p.Categories...), maxPriorCategories)
	out.Reasoning = strings.TrimSpace(p.Reasoning + "; adjusted by " + strings.Join(out.Observed, ", ") + " engagement")
	return &out
}

// Config configures a Handler.
type Config struct {
	TrendingCategories []string
	TrendingKeywords   []string
	// MinScore excludes candidates scoring at or below it.
	MinScore float64
}

// Handler produces cold-start priors and recommendations.
type Handler struct {
	taxonomy *Taxonomy
	cfg      Config
	llm      generation.Runner
	cache    *cache.Cache
	now      func() time.Time
}

// NewHandler creates a Handler. llm and c may be nil; without llm the LLM
// strategy always falls back to Demographic, and without c priors are
// recomputed on every call.
func NewHandler(taxonomy *Taxonomy, cfg Config, llm generation.Runner, c *cache.Cache) *Handler {
	cfg.TrendingCategories = topUnique(cfg.TrendingCategories, len(cfg.TrendingCategories))
	cfg.TrendingKeywords = topUnique(cfg.TrendingKeywords, len(cfg.TrendingKeywords))
	return &Handler{taxonomy: taxonomy, cfg: cfg, llm: llm, cache: c, now: time.Now}
}

// SetClock overrides the time source used for recency.
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
}

// Priors returns the preference priors for userID under its assigned
// strategy. d may be nil.
func (h *Handler) Priors(ctx context.Context, userID string, d *models.Demographics) *Priors {
	strategy := SelectStrategy(userID)
	switch strategy {
	case StrategyTrending:
		return h.Trending(d)
	case StrategyLLM:
		return h.LLM(ctx, userID, d)
	default:
		return h.Demographic(d)
	}
}

// Demographic merges stated interests with the taxonomy's profession, age
// and locale priors, in that order.
func (h *Handler) Demographic(d *models.Demographics) *Priors {
	t := h.taxonomy
	p := &Priors{
		Strategy:      StrategyDemographic,
		TimeOfDay:     t.Default.TimeOfDay,
		ReadingLevel:  t.Default.ReadingLevel,
		ContentLength: t.Default.ContentLength,
		Confidence:    0.3,
	}
	if d == nil {
		p.Categories = slices.Clone(t.Default.Categories)
		p.Reasoning = "no onboarding answers; using general interest categories"
		return p
	}

	var (
		cats    []string
		reasons []string
	)
	if len(d.Interests) > 0 {
		cats = append(cats, d.Interests...)
		reasons = append(reasons, "stated interests")
		p.Confidence += 0.2
	}
	if pc := t.profession(d.Profession); len(pc) > 0 {
		cats = append(cats, pc...)
		reasons = append(reasons, "profession")
		p.Confidence += 0.15
	}
	if age, ok := t.AgeBrackets[d.AgeBracket]; ok {
		cats = append(cats, age.Categories...)
		p.ReadingLevel = age.ReadingLevel
		p.ContentLength = age.ContentLength
		p.TimeOfDay = age.TimeOfDay
		reasons = append(reasons, "age bracket")
		p.Confidence += 0.15
	}
	if lc := t.locale(d.Locale); len(lc) > 0 {
		cats = append(cats, lc...)
		reasons = append(reasons, "locale")
		p.Confidence += 0.1
	}
	cats = append(cats, t.Default.Categories...)

	p.Categories = topUnique(cats, maxPriorCategories)
	p.Confidence = math.Min(p.Confidence, demographicMaxConfidence)
	if len(reasons) == 0 {
		p.Reasoning = "onboarding answers matched nothing known; using general interest categories"
	} else {
		p.Reasoning = "inferred from " + strings.Join(reasons, ", ")
	}
	return p
}

// Trending puts the configured trending categories ahead of the
// demographic ones.
func (h *Handler) Trending(d *models.Demographics) *Priors {
	p := h.Demographic(d)
	p.Strategy = StrategyTrending
	p.Categories = topUnique(append(slices.Clone(h.cfg.TrendingCategories), p.Categories...), maxPriorCategories)
	p.Confidence = trendingConfidence
	p.Reasoning = "following what is trending now"
	return p
}

// LLM asks the model for priors, memoised per user and onboarding answers.
// Any failure falls back to demographic priors.
func (h *Handler) LLM(ctx context.Context, userID string, d *models.Demographics) *Priors {
	if h.llm == nil {
		return h.Demographic(d)
	}

	infer := func(ctx context.Context) (*Priors, error) { return h.inferPriors(ctx, d) }

	var (
		p   *Priors
		err error
	)
	if h.cache != nil {
		key := cache.Key(models.ResultPriors, userID, demographicsKey(d))
		scope := models.CacheScope{Kind: models.ResultPriors, UserID: userID}
		p, _, err = cache.Fetch(ctx, h.cache, key, priorsTTL, scope, infer)
	} else {
		p, err = infer(ctx)
	}
	if err != nil {
		slog.Warn("llm cold-start inference failed, using demographic priors", "user_id", userID, "error", err)
		fallback := h.Demographic(d)
		fallback.Reasoning += " (model inference unavailable)"
		return fallback
	}
	return p
}

var errLowConfidence = errors.New("model answer unavailable or low confidence")

func (h *Handler) inferPriors(ctx context.Context, d *models.Demographics) (*Priors, error) {
	var dd models.Demographics
	if d != nil {
		dd = *d
	}
	res, err := h.llm.Run(ctx, ai.PreferencePrompt(dd.AgeBracket, dd.Profession, dd.Locale, dd.Location, dd.Interests), nil)
	if err != nil {
		return nil, err
	}
	if res.Confidence == models.ConfidenceLow {
		return nil, errLowConfidence
	}
	profile, err := ai.ParsePreferenceProfile(res.Text)
	if err != nil {
		return nil, err
	}

	conf := profile.Confidence
	if conf == 0 {
		conf = 0.5
	}
	return &Priors{
		Strategy:      StrategyLLM,
		Categories:    topUnique(profile.Categories, maxPriorCategories),
		TimeOfDay:     profile.TimeOfDay,
		ReadingLevel:  profile.ReadingLevel,
		ContentLength: profile.ContentLength,
		Reasoning:     profile.Reasoning,
		Confidence:    math.Min(conf, llmMaxConfidence),
	}, nil
}

// Recommend ranks candidates for a cold-start user and returns at most
// limit results scoring above the minimum, best first. observed holds the
// categories the user has engaged with so far, strongest first.
func (h *Handler) Recommend(ctx context.Context, userID string, d *models.Demographics, observed []string,
	candidates []models.Article, limit int) ([]models.RecommendationResult, *Priors) {
	priors := h.Priors(ctx, userID, d).WithObserved(observed)
	return h.Rank(priors, d, candidates, limit), priors
}

// Rank scores candidates against priors.
func (h *Handler) Rank(priors *Priors, d *models.Demographics, candidates []models.Article, limit int) []models.RecommendationResult {
	now := h.now()

	type scored struct {
		result    models.RecommendationResult
		published time.Time
	}
	var out []scored
	for i := range candidates {
		a := &candidates[i]
		var score float64
		var reason string
		if priors.Strategy == StrategyTrending {
			score, reason = h.trendingScore(a, priors, d, now)
		} else {
			score, reason = priorScore(a, priors, now)
		}
		score = math.Min(math.Max(score, 0), 1)
		if score <= h.cfg.MinScore {
			continue
		}
		out = append(out, scored{
			result: models.RecommendationResult{
				ArticleID:  a.ID,
				Score:      score,
				Reason:     reason,
				Category:   a.Category,
				Confidence: priors.Confidence,
			},
			published: a.PublishedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].result.Score != out[j].result.Score {
			return out[i].result.Score > out[j].result.Score
		}
		return out[i].published.After(out[j].published)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	results := make([]models.RecommendationResult, len(out))
	for i, s := range out {
		results[i] = s.result
	}
	return results
}

// priorScore rewards articles in the prior categories, earlier categories
// more, and blends in recency and popularity.
func priorScore(a *models.Article, p *Priors, now time.Time) (float64, string) {
	category := strings.ToLower(a.Category)
	cat := 0.2
	reason := "recent pick for new readers"
	if idx := slices.Index(p.Categories, category); idx >= 0 {
		cat = 1 - 0.1*float64(idx)
		reason = "picked for readers interested in " + a.Category
	}
	if slices.Contains(p.Observed, category) {
		cat = 1
		reason = "matches your interest in " + a.Category
	}
	return 0.55*cat + 0.3*Recency(a.PublishedAt, now) + 0.15*Popularity(a.Popularity), reason
}

// trendingScore combines trending category and keyword membership,
// recency and a location match.
func (h *Handler) trendingScore(a *models.Article, p *Priors, d *models.Demographics, now time.Time) (float64, string) {
	category := strings.ToLower(a.Category)

	var cat float64
	switch {
	case slices.Contains(p.Observed, category), slices.Contains(h.cfg.TrendingCategories, category):
		cat = 1
	case slices.Contains(p.Categories, category):
		cat = 0.6
	}

	hits := 0
	tokens := embedding.Tokenize(a.Title + " " + a.Description)
	for _, kw := range h.cfg.TrendingKeywords {
		if slices.Contains(tokens, kw) {
			hits++
		}
	}
	keyword := math.Min(float64(hits)/2, 1)

	var location float64
	if d != nil && d.Location != "" {
		text := strings.ToLower(a.Title + " " + a.Description + " " + a.Content)
		if strings.Contains(text, strings.ToLower(d.Location)) {
			location = 1
		}
	}

	score := 0.35*cat + 0.25*keyword + 0.3*Recency(a.PublishedAt, now) + 0.1*location

	reason := "trending"
	switch {
	case location > 0:
		reason = "trending near " + d.Location
	case slices.Contains(p.Observed, category):
		reason = "trending in " + a.Category + ", which you read"
	case cat == 1:
		reason = "trending in " + a.Category
	}
	return score, reason
}

// Recency decays with article age: exp(-hours/24), floored at 0.1.
// Articles dated in the future count as brand new.
func Recency(published, now time.Time) float64 {
	hours := math.Max(now.Sub(published).Hours(), 0)
	return math.Max(0.1, math.Exp(-hours/24))
}

// Popularity scales a raw popularity score into [0,1].
func Popularity(p float64) float64 {
	return math.Min(math.Max(p, 0)/100, 1)
}

// topUnique lowercases, de-duplicates and truncates cats, keeping order.
func topUnique(cats []string, n int) []string {
	seen := make(map[string]bool, len(cats))
	out := make([]string, 0, n)
	for _, c := range cats {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == n {
			break
		}
	}
	return out
}

func demographicsKey(d *models.Demographics) string {
	if d == nil {
		return ""
	}
	b, _ := json.Marshal(struct {
		Age, Profession, Locale, Location string
		Interests                         []string
	}{d.AgeBracket, d.Profession, d.Locale, d.Location, d.Interests})
	return string(b)
}
