package models

import "time"

// InteractionEvent announces a tracked interaction. Material is set when
// the interaction changes what the user's cached results depend on.
type InteractionEvent struct {
	UserID     string     `json:"user_id"`
	ArticleID  string     `json:"article_id"`
	Action     ActionKind `json:"action"`
	Material   bool       `json:"material"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// ArticleEvent announces that an article's content changed.
type ArticleEvent struct {
	ArticleID string    `json:"article_id"`
	ChangedAt time.Time `json:"changed_at"`
}

// Invalidations returns the cache scopes the event makes stale. Only
// material interactions affect cached results.
func (e InteractionEvent) Invalidations() []InvalidationScope {
	if !e.Material || e.UserID == "" {
		return nil
	}
	return []InvalidationScope{
		{UserID: e.UserID, Kind: ResultRecommendation},
		{UserID: e.UserID, Kind: ResultGeneration},
	}
}

// Invalidations returns the cache scopes the event makes stale.
func (e ArticleEvent) Invalidations() []InvalidationScope {
	if e.ArticleID == "" {
		return nil
	}
	return []InvalidationScope{{ArticleID: e.ArticleID}}
}
