package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hoanghai1803/lumen/internal/models"
)

const articleColumns = `id, title, description, content, category, url, source,
	published_at, popularity, content_hash, updated_at`

// UpsertArticle inserts a or updates the stored copy. Popularity on an
// existing row is kept, since it accrues from tracked interactions. changed
// reports whether the content hash differs from what was stored before.
func (s *SQLStore) UpsertArticle(ctx context.Context, a *models.Article) (bool, error) {
	a.ContentHash = ContentHash(a)
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}

	var prevHash string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM articles WHERE id = ?`, a.ID).Scan(&prevHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO articles (`+articleColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Title, a.Description, a.Content, a.Category, a.URL, a.Source,
			formatTime(a.PublishedAt), a.Popularity, a.ContentHash, formatTime(a.UpdatedAt))
		if err != nil {
			return false, fmt.Errorf("inserting article %s: %w", a.ID, err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("looking up article %s: %w", a.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE articles SET title = ?, description = ?, content = ?, category = ?,
		 url = ?, source = ?, published_at = ?, content_hash = ?, updated_at = ?
		 WHERE id = ?`,
		a.Title, a.Description, a.Content, a.Category, a.URL, a.Source,
		formatTime(a.PublishedAt), a.ContentHash, formatTime(a.UpdatedAt), a.ID)
	if err != nil {
		return false, fmt.Errorf("updating article %s: %w", a.ID, err)
	}
	return prevHash != a.ContentHash, nil
}

// GetArticle returns the article with the given ID, or ErrNotFound.
func (s *SQLStore) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)

	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting article %s: %w", id, err)
	}
	return a, nil
}

// ListArticles returns articles matching f, newest first.
func (s *SQLStore) ListArticles(ctx context.Context, f models.ArticleFilter) ([]models.Article, error) {
	var (
		where []string
		args  []any
	)
	if len(f.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if len(f.Categories) > 0 {
		where = append(where, "category IN ("+placeholders(len(f.Categories))+")")
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if !f.Since.IsZero() {
		where = append(where, "published_at >= ?")
		args = append(args, formatTime(f.Since))
	}

	query := `SELECT ` + articleColumns + ` FROM articles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY published_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning article row: %w", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating article rows: %w", err)
	}
	return articles, nil
}

// AddPopularity adds delta to the article's popularity and mirrors the new
// value onto its embedding row.
func (s *SQLStore) AddPopularity(ctx context.Context, articleID string, delta float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET popularity = popularity + ? WHERE id = ?`, delta, articleID)
	if err != nil {
		return fmt.Errorf("updating popularity for %s: %w", articleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for %s: %w", articleID, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE article_embeddings
		 SET popularity = (SELECT popularity FROM articles WHERE id = ?)
		 WHERE article_id = ?`, articleID, articleID); err != nil {
		return fmt.Errorf("syncing embedding popularity for %s: %w", articleID, err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(r rowScanner) (*models.Article, error) {
	var (
		a                      models.Article
		publishedAt, updatedAt string
	)
	if err := r.Scan(&a.ID, &a.Title, &a.Description, &a.Content, &a.Category,
		&a.URL, &a.Source, &publishedAt, &a.Popularity, &a.ContentHash, &updatedAt); err != nil {
		return nil, err
	}
	a.PublishedAt = parseTime(publishedAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}
