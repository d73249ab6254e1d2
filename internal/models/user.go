package models

import "time"

// ActionKind is the kind of a tracked user interaction.
type ActionKind string

const (
	ActionView  ActionKind = "view"
	ActionRead  ActionKind = "read"
	ActionLike  ActionKind = "like"
	ActionSave  ActionKind = "save"
	ActionShare ActionKind = "share"
	ActionSkip  ActionKind = "skip"
)

// Valid reports whether a is a known action kind.
func (a ActionKind) Valid() bool {
	switch a {
	case ActionView, ActionRead, ActionLike, ActionSave, ActionShare, ActionSkip:
		return true
	}
	return false
}

// Engaged reports whether the action counts towards the user embedding.
func (a ActionKind) Engaged() bool {
	switch a {
	case ActionRead, ActionLike, ActionSave, ActionShare:
		return true
	}
	return false
}

// Interaction is a single tracked event in a user's history.
type Interaction struct {
	ArticleID       string     `json:"article_id"`
	Action          ActionKind `json:"action"`
	Category        string     `json:"category,omitempty"`
	OccurredAt      time.Time  `json:"occurred_at"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
	ScrollDepth     float64    `json:"scroll_depth,omitempty"`
}

// Demographics holds what a user stated during onboarding.
type Demographics struct {
	AgeBracket  string    `json:"age_bracket,omitempty"`
	Profession  string    `json:"profession,omitempty"`
	Locale      string    `json:"locale,omitempty"`
	Location    string    `json:"location,omitempty"`
	Interests   []string  `json:"interests,omitempty"`
	OnboardedAt time.Time `json:"onboarded_at"`
}

// UserProfile is the per-user interaction state. History is ordered oldest
// first and is trimmed to the configured retention.
type UserProfile struct {
	UserID              string             `json:"user_id"`
	History             []Interaction      `json:"history"`
	CategoryTime        map[string]float64 `json:"category_time"`
	PreferredCategories []string           `json:"preferred_categories"`
	Demographics        *Demographics      `json:"demographics,omitempty"`
	LastActive          time.Time          `json:"last_active"`
	CreatedAt           time.Time          `json:"created_at"`
}

// RecentCategories returns the categories of the last n interactions, most
// recent first.
func (p *UserProfile) RecentCategories(n int) []string {
	out := make([]string, 0, n)
	for i := len(p.History) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, p.History[i].Category)
	}
	return out
}

// HasRead reports whether the user has any recorded interaction with the
// given article.
func (p *UserProfile) HasRead(articleID string) bool {
	for _, it := range p.History {
		if it.ArticleID == articleID && it.Action != ActionSkip {
			return true
		}
	}
	return false
}

// UserEmbedding is the preference vector derived from engaged articles.
type UserEmbedding struct {
	UserID     string    `json:"user_id"`
	Vector     []float64 `json:"vector"`
	Confidence float64   `json:"confidence"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RecommendationResult is one scored article returned to the client.
type RecommendationResult struct {
	ArticleID  string  `json:"article_id"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// RecommendationMetadata describes how a recommendation list was produced.
type RecommendationMetadata struct {
	Pipeline   string  `json:"pipeline"`
	Confidence float64 `json:"confidence"`
	CacheHit   bool    `json:"cache_hit"`
}

// RecommendationSet is the payload of a recommend call.
type RecommendationSet struct {
	Recommendations []RecommendationResult `json:"recommendations"`
	Metadata        RecommendationMetadata `json:"metadata"`
}
