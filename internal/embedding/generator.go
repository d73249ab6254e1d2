// Package embedding turns article text and interaction history into
// fixed-length vectors, keywords and sentiment.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hoanghai1803/lumen/internal/models"
)

const (
	defaultMaxTextChars = 4000
	keywordCount        = 10

	// ColdStartConfidence is the highest confidence a user embedding can
	// carry while the user is still considered cold.
	ColdStartConfidence = 0.2
)

// Generator builds article and user embeddings of a single dimensionality.
type Generator struct {
	embedder     Embedder
	maxTextChars int
	now          func() time.Time
}

// NewGenerator creates a Generator. maxTextChars bounds the text handed to
// the embedder; zero selects the default.
func NewGenerator(embedder Embedder, maxTextChars int) *Generator {
	if maxTextChars <= 0 {
		maxTextChars = defaultMaxTextChars
	}
	return &Generator{
		embedder:     embedder,
		maxTextChars: maxTextChars,
		now:          time.Now,
	}
}

// Dimensions returns the vector length every embedding from g has.
func (g *Generator) Dimensions() int {
	return g.embedder.Dimensions()
}

// ArticleText joins the fields of an article that carry meaning, title
// first, truncated to maxChars runes.
func ArticleText(a *models.Article, maxChars int) string {
	parts := []string{a.Title, a.Title, a.Category, a.Description, a.Content}
	text := strings.Join(parts, " ")
	runes := []rune(text)
	if maxChars > 0 && len(runes) > maxChars {
		text = string(runes[:maxChars])
	}
	return text
}

// ArticleEmbedding computes the embedding and metadata for a.
func (g *Generator) ArticleEmbedding(ctx context.Context, a *models.Article) (*models.ArticleEmbedding, error) {
	text := ArticleText(a, g.maxTextChars)

	vectors, err := g.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding article %s: %w", a.ID, err)
	}
	if len(vectors) != 1 || len(vectors[0]) != g.embedder.Dimensions() {
		return nil, fmt.Errorf("embedding article %s: unexpected vector shape", a.ID)
	}

	return &models.ArticleEmbedding{
		ArticleID:   a.ID,
		Vector:      vectors[0],
		Category:    a.Category,
		Keywords:    Keywords(text, keywordCount),
		Sentiment:   Sentiment(text),
		Popularity:  a.Popularity,
		PublishedAt: a.PublishedAt,
		ContentHash: a.ContentHash,
		UpdatedAt:   g.now(),
	}, nil
}

// UserEmbedding derives a user's vector from the engaged interactions in
// history (ordered oldest first). The i-th engaged article in chronological
// order weighs 1 + 0.1*i, so newer engagement dominates. Articles with no
// embedding, or one of the wrong length, are skipped.
//
// When nothing usable is engaged the result is a zero vector with zero
// confidence and coldStart is true.
func (g *Generator) UserEmbedding(userID string, history []models.Interaction, articles map[string]*models.ArticleEmbedding) (emb *models.UserEmbedding, coldStart bool) {
	dims := g.embedder.Dimensions()
	sum := make([]float64, dims)

	var (
		totalWeight float64
		engaged     int
		categories  = make(map[string]bool)
	)
	for _, it := range history {
		if !it.Action.Engaged() {
			continue
		}
		ae, ok := articles[it.ArticleID]
		if !ok || len(ae.Vector) != dims {
			continue
		}

		w := 1 + 0.1*float64(engaged)
		for d, x := range ae.Vector {
			sum[d] += w * x
		}
		totalWeight += w
		engaged++
		if ae.Category != "" {
			categories[ae.Category] = true
		}
	}

	emb = &models.UserEmbedding{
		UserID:    userID,
		Vector:    sum,
		UpdatedAt: g.now(),
	}
	if engaged == 0 {
		return emb, true
	}

	for d := range sum {
		sum[d] /= totalWeight
	}
	Normalize(sum)
	emb.Confidence = UserConfidence(engaged, len(categories))
	return emb, false
}

// UserConfidence grows with interaction volume (saturating at 20) and
// category diversity (saturating at 5).
func UserConfidence(engaged, distinctCategories int) float64 {
	if engaged == 0 {
		return 0
	}
	volume := math.Min(float64(engaged)/20, 1)
	diversity := math.Min(float64(distinctCategories)/5, 1)
	return math.Min(1, 0.6*volume+0.4*diversity)
}
