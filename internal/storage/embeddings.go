package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hoanghai1803/lumen/internal/models"
)

const articleEmbeddingColumns = `article_id, vector, category, keywords, sentiment,
	popularity, published_at, content_hash, updated_at`

// GetArticleEmbedding returns the embedding for articleID, or ErrNotFound.
func (s *SQLStore) GetArticleEmbedding(ctx context.Context, articleID string) (*models.ArticleEmbedding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+articleEmbeddingColumns+` FROM article_embeddings WHERE article_id = ?`, articleID)

	e, err := scanArticleEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting embedding for %s: %w", articleID, err)
	}
	return e, nil
}

// GetArticleEmbeddings returns the stored embeddings among articleIDs keyed
// by article ID. Missing IDs are absent from the map.
func (s *SQLStore) GetArticleEmbeddings(ctx context.Context, articleIDs []string) (map[string]*models.ArticleEmbedding, error) {
	out := make(map[string]*models.ArticleEmbedding, len(articleIDs))
	if len(articleIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(articleIDs))
	for i, id := range articleIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+articleEmbeddingColumns+` FROM article_embeddings
		 WHERE article_id IN (`+placeholders(len(articleIDs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying article embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanArticleEmbedding(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning article embedding: %w", err)
		}
		out[e.ArticleID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating article embeddings: %w", err)
	}
	return out, nil
}

// PutArticleEmbedding inserts or replaces an article embedding.
func (s *SQLStore) PutArticleEmbedding(ctx context.Context, e *models.ArticleEmbedding) error {
	vec, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("encoding vector for %s: %w", e.ArticleID, err)
	}
	kw, err := json.Marshal(nonNil(e.Keywords))
	if err != nil {
		return fmt.Errorf("encoding keywords for %s: %w", e.ArticleID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO article_embeddings (`+articleEmbeddingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ArticleID, string(vec), e.Category, string(kw), e.Sentiment, e.Popularity,
		formatTime(e.PublishedAt), e.ContentHash, formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving embedding for %s: %w", e.ArticleID, err)
	}
	return nil
}

// GetUserEmbedding returns the embedding for userID, or ErrNotFound.
func (s *SQLStore) GetUserEmbedding(ctx context.Context, userID string) (*models.UserEmbedding, error) {
	var (
		e              models.UserEmbedding
		vec, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, vector, confidence, updated_at FROM user_embeddings WHERE user_id = ?`,
		userID).Scan(&e.UserID, &vec, &e.Confidence, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user embedding %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(vec), &e.Vector); err != nil {
		return nil, fmt.Errorf("decoding user vector %s: %w", userID, err)
	}
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// PutUserEmbedding inserts or replaces a user embedding.
func (s *SQLStore) PutUserEmbedding(ctx context.Context, e *models.UserEmbedding) error {
	vec, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("encoding user vector %s: %w", e.UserID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO user_embeddings (user_id, vector, confidence, updated_at)
		 VALUES (?, ?, ?, ?)`,
		e.UserID, string(vec), e.Confidence, formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving user embedding %s: %w", e.UserID, err)
	}
	return nil
}

func scanArticleEmbedding(r rowScanner) (*models.ArticleEmbedding, error) {
	var (
		e                      models.ArticleEmbedding
		vec, kw                string
		publishedAt, updatedAt string
	)
	if err := r.Scan(&e.ArticleID, &vec, &e.Category, &kw, &e.Sentiment, &e.Popularity,
		&publishedAt, &e.ContentHash, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(vec), &e.Vector); err != nil {
		return nil, fmt.Errorf("decoding vector: %w", err)
	}
	if err := json.Unmarshal([]byte(kw), &e.Keywords); err != nil {
		return nil, fmt.Errorf("decoding keywords: %w", err)
	}
	e.PublishedAt = parseTime(publishedAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}
