package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hoanghai1803/lumen/internal/models"
)

// MemoryBackend keeps entries in a process-local map.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]*models.CacheEntry)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (*models.CacheEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	c := *e
	return &c, true, nil
}

func (m *MemoryBackend) Put(_ context.Context, e *models.CacheEntry) error {
	c := *e
	c.Payload = slices.Clone(e.Payload)
	c.Scope.ArticleIDs = slices.Clone(e.Scope.ArticleIDs)

	m.mu.Lock()
	m.entries[e.Key] = &c
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) DeleteMatching(_ context.Context, scope models.InvalidationScope) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, e := range m.entries {
		if scope.Matches(e.Scope) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
