package storage

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hoanghai1803/lumen/internal/models"
)

// MemoryStore is an in-process Store. Values are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	articles    map[string]models.Article
	profiles    map[string]*models.UserProfile
	articleEmbs map[string]*models.ArticleEmbedding
	userEmbs    map[string]*models.UserEmbedding
	generations map[string]models.GenerationRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles:    make(map[string]models.Article),
		profiles:    make(map[string]*models.UserProfile),
		articleEmbs: make(map[string]*models.ArticleEmbedding),
		userEmbs:    make(map[string]*models.UserEmbedding),
		generations: make(map[string]models.GenerationRecord),
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// UpsertArticle stores a, keeping the popularity of an existing copy.
func (m *MemoryStore) UpsertArticle(_ context.Context, a *models.Article) (bool, error) {
	a.ContentHash = ContentHash(a)
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.articles[a.ID]
	stored := *a
	if ok {
		stored.Popularity = prev.Popularity
	}
	m.articles[a.ID] = stored
	return !ok || prev.ContentHash != a.ContentHash, nil
}

// GetArticle returns the article with the given ID, or ErrNotFound.
func (m *MemoryStore) GetArticle(_ context.Context, id string) (*models.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// ListArticles returns articles matching f, newest first.
func (m *MemoryStore) ListArticles(_ context.Context, f models.ArticleFilter) ([]models.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Article
	for _, a := range m.articles {
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, a.ID) {
			continue
		}
		if len(f.Categories) > 0 && !slices.Contains(f.Categories, a.Category) {
			continue
		}
		if !f.Since.IsZero() && a.PublishedAt.Before(f.Since) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// AddPopularity adds delta to the article's popularity.
func (m *MemoryStore) AddPopularity(_ context.Context, articleID string, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[articleID]
	if !ok {
		return ErrNotFound
	}
	a.Popularity += delta
	m.articles[articleID] = a
	if e, ok := m.articleEmbs[articleID]; ok {
		e.Popularity = a.Popularity
	}
	return nil
}

// GetProfile returns the profile for userID, or ErrNotFound.
func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProfile(p), nil
}

// SaveProfile inserts or replaces the profile.
func (m *MemoryStore) SaveProfile(_ context.Context, p *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := cloneProfile(p)
	if prev, ok := m.profiles[p.UserID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	m.profiles[p.UserID] = stored
	return nil
}

// GetArticleEmbedding returns the embedding for articleID, or ErrNotFound.
func (m *MemoryStore) GetArticleEmbedding(_ context.Context, articleID string) (*models.ArticleEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.articleEmbs[articleID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneArticleEmbedding(e), nil
}

// GetArticleEmbeddings returns the stored embeddings among articleIDs.
func (m *MemoryStore) GetArticleEmbeddings(_ context.Context, articleIDs []string) (map[string]*models.ArticleEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*models.ArticleEmbedding, len(articleIDs))
	for _, id := range articleIDs {
		if e, ok := m.articleEmbs[id]; ok {
			out[id] = cloneArticleEmbedding(e)
		}
	}
	return out, nil
}

// PutArticleEmbedding inserts or replaces an article embedding.
func (m *MemoryStore) PutArticleEmbedding(_ context.Context, e *models.ArticleEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.articleEmbs[e.ArticleID] = cloneArticleEmbedding(e)
	return nil
}

// GetUserEmbedding returns the embedding for userID, or ErrNotFound.
func (m *MemoryStore) GetUserEmbedding(_ context.Context, userID string) (*models.UserEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.userEmbs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *e
	c.Vector = slices.Clone(e.Vector)
	return &c, nil
}

// PutUserEmbedding inserts or replaces a user embedding.
func (m *MemoryStore) PutUserEmbedding(_ context.Context, e *models.UserEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *e
	c.Vector = slices.Clone(e.Vector)
	m.userEmbs[e.UserID] = &c
	return nil
}

// SaveGeneration records rec unless its request ID is already known.
func (m *MemoryStore) SaveGeneration(_ context.Context, rec *models.GenerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.generations[rec.RequestID]; ok {
		return nil
	}
	c := *rec
	c.Response.Sources = slices.Clone(rec.Response.Sources)
	m.generations[rec.RequestID] = c
	return nil
}

// GetGeneration returns the record for requestID, or ErrNotFound.
func (m *MemoryStore) GetGeneration(_ context.Context, requestID string) (*models.GenerationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.generations[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Response.Sources = slices.Clone(rec.Response.Sources)
	return &rec, nil
}

func cloneProfile(p *models.UserProfile) *models.UserProfile {
	c := *p
	c.History = slices.Clone(p.History)
	c.PreferredCategories = slices.Clone(p.PreferredCategories)
	c.CategoryTime = maps.Clone(p.CategoryTime)
	if c.CategoryTime == nil {
		c.CategoryTime = make(map[string]float64)
	}
	if p.Demographics != nil {
		d := *p.Demographics
		d.Interests = slices.Clone(p.Demographics.Interests)
		c.Demographics = &d
	}
	return &c
}

func cloneArticleEmbedding(e *models.ArticleEmbedding) *models.ArticleEmbedding {
	c := *e
	c.Vector = slices.Clone(e.Vector)
	c.Keywords = slices.Clone(e.Keywords)
	return &c
}
