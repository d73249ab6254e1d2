package recommend

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/hoanghai1803/lumen/internal/coldstart"
	"github.com/hoanghai1803/lumen/internal/embedding"
	"github.com/hoanghai1803/lumen/internal/models"
)

// Weights is the linear scoring policy. The terms need not sum to one;
// the final score is clamped to [0,1] either way.
type Weights struct {
	Semantic   float64 `toml:"semantic"`
	Category   float64 `toml:"category"`
	Recency    float64 `toml:"recency"`
	Popularity float64 `toml:"popularity"`
	Diversity  float64 `toml:"diversity"`
}

// DefaultWeights returns the stock policy.
func DefaultWeights() Weights {
	return Weights{
		Semantic:   0.40,
		Category:   0.25,
		Recency:    0.20,
		Popularity: 0.10,
		Diversity:  0.05,
	}
}

// Validate rejects negative weights and an all-zero policy.
func (w Weights) Validate() error {
	terms := []float64{w.Semantic, w.Category, w.Recency, w.Popularity, w.Diversity}
	var sum float64
	for _, t := range terms {
		if t < 0 || math.IsNaN(t) {
			return fmt.Errorf("scoring weights must be non-negative: %+v", w)
		}
		sum += t
	}
	if sum == 0 {
		return fmt.Errorf("scoring weights are all zero")
	}
	return nil
}

const (
	matchedCategory   = 1.0
	unmatchedCategory = 0.3
	diversityWindow   = 10
	minDiversity      = 0.3
)

// Breakdown is a scored article with the weighted contribution of each
// term.
type Breakdown struct {
	Semantic   float64
	Category   float64
	Recency    float64
	Popularity float64
	Diversity  float64
	Total      float64
}

// Reader is what the scorer knows about the user.
type Reader struct {
	Vector []float64
	// Preferred categories, lowercased.
	Preferred []string
	// Recent categories of the last interactions, newest first.
	Recent []string
}

// NewReader builds a Reader from a profile and embedding, either of which
// may be nil. extra categories count as preferred too.
func NewReader(p *models.UserProfile, e *models.UserEmbedding, extra ...string) *Reader {
	r := &Reader{}
	if e != nil {
		r.Vector = e.Vector
	}
	var preferred []string
	if p != nil {
		preferred = append(preferred, p.PreferredCategories...)
		for _, c := range p.RecentCategories(diversityWindow) {
			r.Recent = append(r.Recent, strings.ToLower(c))
		}
	}
	preferred = append(preferred, extra...)
	for _, c := range preferred {
		c = strings.ToLower(c)
		if c != "" && !slices.Contains(r.Preferred, c) {
			r.Preferred = append(r.Preferred, c)
		}
	}
	return r
}

// Scorer scores candidate articles for a reader.
type Scorer struct {
	weights Weights
	now     func() time.Time
}

// NewScorer creates a Scorer with the given policy.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w, now: time.Now}
}

// Score computes the score of article a, embedded as ae (which may be
// nil), for reader r.
func (s *Scorer) Score(r *Reader, a *models.Article, ae *models.ArticleEmbedding) Breakdown {
	var semantic float64
	if ae != nil {
		semantic = embedding.Cosine(r.Vector, ae.Vector)
	}

	category := strings.ToLower(a.Category)
	cat := unmatchedCategory
	if slices.Contains(r.Preferred, category) {
		cat = matchedCategory
	}

	same := 0
	for _, c := range r.Recent {
		if c == category {
			same++
		}
	}
	diversity := math.Max(minDiversity, 1-float64(same)/diversityWindow)

	w := s.weights
	b := Breakdown{
		Semantic:   w.Semantic * semantic,
		Category:   w.Category * cat,
		Recency:    w.Recency * coldstart.Recency(a.PublishedAt, s.now()),
		Popularity: w.Popularity * coldstart.Popularity(a.Popularity),
		Diversity:  w.Diversity * diversity,
	}
	b.Total = b.Semantic + b.Category + b.Recency + b.Popularity + b.Diversity
	b.Total = math.Min(math.Max(b.Total, 0), 1)
	return b
}

// Reason describes the term that contributed most to b.
func (b Breakdown) Reason(category string) string {
	best, reason := b.Semantic, "similar to articles you've enjoyed"
	if b.Category > best {
		best, reason = b.Category, "matches your interest in "+category
	}
	if b.Recency+b.Popularity > best {
		best, reason = b.Recency+b.Popularity, "trending"
	}
	if b.Diversity > best {
		reason = "something different from your usual reading"
	}
	return reason
}
