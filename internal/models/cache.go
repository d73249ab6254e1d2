package models

import (
	"slices"
	"time"
)

// Result kinds a cache entry can hold.
const (
	ResultGeneration     = "generation"
	ResultRecommendation = "recommendation"
	ResultPriors         = "priors"
)

// CacheScope tags a cache entry with what it depends on.
type CacheScope struct {
	Kind       string   `json:"kind"`
	UserID     string   `json:"user_id,omitempty"`
	ArticleIDs []string `json:"article_ids,omitempty"`
}

// InvalidationScope selects entries to drop. Set fields combine with AND.
type InvalidationScope struct {
	ArticleID string `json:"article_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Kind      string `json:"type,omitempty"`
}

// Empty reports whether no field is set.
func (s InvalidationScope) Empty() bool {
	return s.ArticleID == "" && s.UserID == "" && s.Kind == ""
}

// Matches reports whether an entry tagged with c falls under s. An empty
// invalidation scope matches nothing.
func (s InvalidationScope) Matches(c CacheScope) bool {
	if s.Empty() {
		return false
	}
	if s.Kind != "" && s.Kind != c.Kind {
		return false
	}
	if s.UserID != "" && s.UserID != c.UserID {
		return false
	}
	if s.ArticleID != "" && !slices.Contains(c.ArticleIDs, s.ArticleID) {
		return false
	}
	return true
}

// CacheEntry is a memoised payload. ExpiresAt is always after CreatedAt.
type CacheEntry struct {
	Key       string     `json:"key"`
	Payload   []byte     `json:"payload"`
	Scope     CacheScope `json:"scope"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Expired reports whether the entry is stale at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
