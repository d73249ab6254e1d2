package models

import "time"

// Article is a content record supplied by the article source.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	Category    string    `json:"category"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Popularity  float64   `json:"popularity"`
	ContentHash string    `json:"content_hash,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ArticleFilter narrows an article listing. Zero values mean "no constraint".
type ArticleFilter struct {
	IDs        []string
	Categories []string
	Since      time.Time
	Limit      int
}

// ArticleEmbedding is the vector representation of an article plus the
// metadata the scorer needs.
type ArticleEmbedding struct {
	ArticleID   string    `json:"article_id"`
	Vector      []float64 `json:"vector"`
	Category    string    `json:"category"`
	Keywords    []string  `json:"keywords"`
	Sentiment   float64   `json:"sentiment"`
	Popularity  float64   `json:"popularity"`
	PublishedAt time.Time `json:"published_at"`
	ContentHash string    `json:"content_hash,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
