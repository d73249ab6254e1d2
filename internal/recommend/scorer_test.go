package recommend

import (
	"math"
	"slices"
	"testing"
	"time"

	"github.com/hoanghai1803/lumen/internal/models"
)

var baseTime = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestScorer() *Scorer {
	s := NewScorer(DefaultWeights())
	s.now = func() time.Time { return baseTime }
	return s
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		w       Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"semantic only", Weights{Semantic: 1}, false},
		{"negative", Weights{Semantic: 0.5, Category: -0.1}, true},
		{"all zero", Weights{}, true},
		{"nan", Weights{Semantic: math.NaN()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.w.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScorer_Terms(t *testing.T) {
	s := newTestScorer()
	vec := []float64{0.6, 0.8}

	r := &Reader{Vector: vec, Preferred: []string{"technology"}}
	a := &models.Article{ID: "a", Category: "Technology", PublishedAt: baseTime, Popularity: 50}
	b := s.Score(r, a, &models.ArticleEmbedding{ArticleID: "a", Vector: vec})

	want := Breakdown{
		Semantic:   0.40,
		Category:   0.25,
		Recency:    0.20,
		Popularity: 0.05,
		Diversity:  0.05,
	}
	for name, pair := range map[string][2]float64{
		"semantic":   {b.Semantic, want.Semantic},
		"category":   {b.Category, want.Category},
		"recency":    {b.Recency, want.Recency},
		"popularity": {b.Popularity, want.Popularity},
		"diversity":  {b.Diversity, want.Diversity},
	} {
		if math.Abs(pair[0]-pair[1]) > 1e-9 {
			t.Errorf("%s = %v, want %v", name, pair[0], pair[1])
		}
	}
	if math.Abs(b.Total-0.95) > 1e-9 {
		t.Errorf("Total = %v, want 0.95", b.Total)
	}
}

func TestScorer_MissingEmbeddingAndUnmatchedCategory(t *testing.T) {
	s := newTestScorer()
	r := &Reader{Vector: []float64{1, 0}, Preferred: []string{"science"}}
	a := &models.Article{Category: "sports", PublishedAt: baseTime.Add(-30 * 24 * time.Hour)}

	b := s.Score(r, a, nil)
	if b.Semantic != 0 {
		t.Errorf("Semantic = %v, want 0 without an embedding", b.Semantic)
	}
	if math.Abs(b.Category-0.25*0.3) > 1e-9 {
		t.Errorf("Category = %v, want %v", b.Category, 0.25*0.3)
	}
	if math.Abs(b.Recency-0.20*0.1) > 1e-9 {
		t.Errorf("Recency = %v, want floor %v", b.Recency, 0.20*0.1)
	}
}

func TestScorer_DiversityFloor(t *testing.T) {
	s := newTestScorer()
	tests := []struct {
		same int
		want float64
	}{
		{0, 1},
		{3, 0.7},
		{7, 0.3},
		{10, 0.3},
	}
	for _, tt := range tests {
		r := &Reader{}
		for i := 0; i < tt.same; i++ {
			r.Recent = append(r.Recent, "world")
		}
		b := s.Score(r, &models.Article{Category: "world", PublishedAt: baseTime}, nil)
		if math.Abs(b.Diversity-0.05*tt.want) > 1e-9 {
			t.Errorf("same=%d: Diversity = %v, want %v", tt.same, b.Diversity, 0.05*tt.want)
		}
	}
}

func TestScorer_TotalClamped(t *testing.T) {
	s := NewScorer(Weights{Semantic: 1, Category: 1, Recency: 1, Popularity: 1, Diversity: 1})
	s.now = func() time.Time { return baseTime }
	vec := []float64{1}
	r := &Reader{Vector: vec, Preferred: []string{"world"}}

	b := s.Score(r, &models.Article{Category: "world", PublishedAt: baseTime, Popularity: 500},
		&models.ArticleEmbedding{Vector: vec})
	if b.Total != 1 {
		t.Errorf("Total = %v, want clamped to 1", b.Total)
	}

	b = s.Score(r, &models.Article{Category: "x", PublishedAt: baseTime},
		&models.ArticleEmbedding{Vector: []float64{-1}})
	if b.Total < 0 || b.Total > 1 {
		t.Errorf("Total = %v out of [0,1]", b.Total)
	}
}

func TestBreakdown_Reason(t *testing.T) {
	tests := []struct {
		name string
		b    Breakdown
		want string
	}{
		{"semantic", Breakdown{Semantic: 0.4, Category: 0.1}, "similar to articles you've enjoyed"},
		{"category", Breakdown{Semantic: 0.1, Category: 0.25}, "matches your interest in science"},
		{"trending", Breakdown{Semantic: 0.1, Recency: 0.2, Popularity: 0.1}, "trending"},
		{"diversity", Breakdown{Diversity: 0.05}, "something different from your usual reading"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Reason("science"); got != tt.want {
				t.Errorf("Reason = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewReader(t *testing.T) {
	p := &models.UserProfile{
		PreferredCategories: []string{"Technology", "science"},
		History: []models.Interaction{
			{Category: "World"},
			{Category: "Technology"},
		},
	}
	r := NewReader(p, nil, "science", "Health")

	if got, want := r.Preferred, []string{"technology", "science", "health"}; !slices.Equal(got, want) {
		t.Errorf("Preferred = %v, want %v", got, want)
	}
	if got, want := r.Recent, []string{"technology", "world"}; !slices.Equal(got, want) {
		t.Errorf("Recent = %v, want %v", got, want)
	}
	if r.Vector != nil {
		t.Errorf("Vector = %v, want nil", r.Vector)
	}
}
