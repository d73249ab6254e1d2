package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/hoanghai1803/lumen/internal/models"
)

// Store is the persistence capability the core depends on. Lookups of
// missing records return ErrNotFound.
type Store interface {
	UpsertArticle(ctx context.Context, a *models.Article) (changed bool, err error)
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	ListArticles(ctx context.Context, f models.ArticleFilter) ([]models.Article, error)
	AddPopularity(ctx context.Context, articleID string, delta float64) error

	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, p *models.UserProfile) error

	GetArticleEmbedding(ctx context.Context, articleID string) (*models.ArticleEmbedding, error)
	GetArticleEmbeddings(ctx context.Context, articleIDs []string) (map[string]*models.ArticleEmbedding, error)
	PutArticleEmbedding(ctx context.Context, e *models.ArticleEmbedding) error
	GetUserEmbedding(ctx context.Context, userID string) (*models.UserEmbedding, error)
	PutUserEmbedding(ctx context.Context, e *models.UserEmbedding) error

	SaveGeneration(ctx context.Context, rec *models.GenerationRecord) error
	GetGeneration(ctx context.Context, requestID string) (*models.GenerationRecord, error)

	Close() error
}

// Compile-time interface checks.
var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// SQLStore implements Store on a SQLite database.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQLStore backed by the given database connection.
// Migrations must already be applied.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// ContentHash fingerprints the fields of an article that feed its embedding.
func ContentHash(a *models.Article) string {
	h := sha256.New()
	for _, part := range []string{a.Title, a.Description, a.Content, a.Category} {
		h.Write([]byte(strings.TrimSpace(part)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
