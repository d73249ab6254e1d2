package models

import "time"

// ConfidenceTier grades a generated answer.
type ConfidenceTier string

const (
	ConfidenceHigh ConfidenceTier = "High"
	ConfidenceMed  ConfidenceTier = "Med"
	ConfidenceLow  ConfidenceTier = "Low"
)

// GenerationKind selects the prompt family.
type GenerationKind string

const (
	KindSummarize GenerationKind = "summarize"
	KindQA        GenerationKind = "qa"
	KindReason    GenerationKind = "reason"
)

// GenerationRequest is an article-level generation call.
type GenerationRequest struct {
	Kind      GenerationKind `json:"kind"`
	ArticleID string         `json:"article_id"`
	UserID    string         `json:"user_id,omitempty"`
	Question  string         `json:"question,omitempty"`
	Length    string         `json:"length,omitempty"`
}

// SourceCitation points at the article material a response was built from.
type SourceCitation struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
}

// GenerationResponse is returned by the generation endpoint.
type GenerationResponse struct {
	Text                 string           `json:"text"`
	ModelUsed            string           `json:"model_used"`
	TokensUsed           int              `json:"tokens_used"`
	Sources              []SourceCitation `json:"sources"`
	RequestID            string           `json:"request_id"`
	Confidence           ConfidenceTier   `json:"confidence"`
	ProviderFallbackUsed bool             `json:"provider_fallback_used"`
	CacheHit             bool             `json:"cache_hit"`
}

// GenerationRecord is the persisted audit row behind status polling.
type GenerationRecord struct {
	RequestID string             `json:"request_id"`
	Request   GenerationRequest  `json:"request"`
	Response  GenerationResponse `json:"response"`
	CreatedAt time.Time          `json:"created_at"`
}
