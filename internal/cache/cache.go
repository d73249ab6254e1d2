// Package cache memoises generation and recommendation results by key.
//
// Entries carry an absolute expiry and are treated as misses once the clock
// reaches it; stale entries are deleted when next read, and Sweep can drop
// them in bulk. Concurrent ComputeOrWait calls for the same key share one
// computation through a singleflight group, so identical requests reach the
// upstream at most once. Entries are tagged with a scope (result kind, user,
// articles) and Invalidate removes every entry a scope selects.
//
// Storage is pluggable: MemoryBackend for a single process, RedisBackend
// for replicas sharing one cache, or the SQLite cache table.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hoanghai1803/lumen/internal/metrics"
	"github.com/hoanghai1803/lumen/internal/models"
)

// Default lifetimes per result kind.
const (
	GenerationTTL     = 24 * time.Hour
	RecommendationTTL = time.Hour
)

// maxInvalidationLog bounds the invalidations remembered for in-flight
// computations. A computation older than the log is not stored.
const maxInvalidationLog = 1024

var (
	// ErrEmptyScope is returned by Invalidate when no scope field is set.
	ErrEmptyScope = errors.New("invalidation scope has no fields set")

	// ErrUnavailable wraps backend failures surfaced by Invalidate and Sweep.
	ErrUnavailable = errors.New("cache unavailable")
)

// Backend stores cache entries. Implementations must be safe for
// concurrent use and need not check expiry.
type Backend interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, bool, error)
	Put(ctx context.Context, e *models.CacheEntry) error
	Delete(ctx context.Context, key string) error
	DeleteMatching(ctx context.Context, scope models.InvalidationScope) (int, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Cache is the response cache.
type Cache struct {
	backend Backend
	group   singleflight.Group
	now     func() time.Time

	// invalidations holds recent scopes in sequence order. A computation
	// is returned to its callers but not stored when an invalidation issued
	// after it started selects its scope.
	mu            sync.Mutex
	seq           uint64
	invalidations []invalidation
}

type invalidation struct {
	seq   uint64
	scope models.InvalidationScope
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives a deterministic cache key for kind from parts.
func Key(kind string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return kind + ":" + hex.EncodeToString(sum[:])
}

// Get returns the payload stored under key. Expired entries are deleted and
// reported as misses; backend failures are logged and reported as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	e, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		metrics.CacheUnavailable.WithLabelValues("get").Inc()
		slog.Warn("cache get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	if e.Expired(c.now()) {
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		if err := c.backend.Delete(ctx, key); err != nil {
			slog.Warn("deleting expired cache entry", "key", key, "error", err)
		}
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return e.Payload, true
}

type computed struct {
	payload []byte
	hit     bool
}

// ComputeOrWait returns the payload under key, running compute on a miss.
// While one compute for key is running, other callers for key wait for it
// and receive its result. A successful result is stored with expiry
// now+ttl and tagged with scope. hit reports whether the payload came from
// the cache rather than a computation.
//
// Compute errors are returned to every waiting caller and nothing is
// stored. The computation runs detached from the caller's cancellation so
// that one caller going away does not fail the others waiting on it.
func (c *Cache) ComputeOrWait(ctx context.Context, key string, ttl time.Duration, scope models.CacheScope,
	compute func(ctx context.Context) ([]byte, error)) (payload []byte, hit bool, err error) {
	return c.ComputeScoped(ctx, key, ttl, func(ctx context.Context) ([]byte, models.CacheScope, error) {
		p, err := compute(ctx)
		return p, scope, err
	})
}

// ComputeScoped is ComputeOrWait for results whose scope is only known once
// computed, such as a recommendation list tagged with the articles in it.
func (c *Cache) ComputeScoped(ctx context.Context, key string, ttl time.Duration,
	compute func(ctx context.Context) ([]byte, models.CacheScope, error)) (payload []byte, hit bool, err error) {
	if ttl <= 0 {
		return nil, false, fmt.Errorf("cache ttl must be positive, got %v", ttl)
	}

	if p, ok := c.Get(ctx, key); ok {
		return p, true, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// Another flight may have stored the key since our lookup.
		if p, ok := c.Get(ctx, key); ok {
			return computed{payload: p, hit: true}, nil
		}

		started := c.sequence()
		p, scope, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		if c.invalidatedSince(started, scope) {
			slog.Debug("cache invalidated during computation, not storing", "key", key)
			return computed{payload: p}, nil
		}

		now := c.now()
		entry := &models.CacheEntry{
			Key:       key,
			Payload:   p,
			Scope:     scope,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		if err := c.backend.Put(context.WithoutCancel(ctx), entry); err != nil {
			metrics.CacheUnavailable.WithLabelValues("put").Inc()
			slog.Warn("cache put failed, result not memoised", "key", key, "error", err)
		}
		return computed{payload: p}, nil
	})
	if shared {
		metrics.CacheCoalesced.Inc()
	}
	if err != nil {
		return nil, false, err
	}
	r := v.(computed)
	return r.payload, r.hit, nil
}

// Invalidate removes every entry selected by scope and returns how many
// were removed.
func (c *Cache) Invalidate(ctx context.Context, scope models.InvalidationScope) (int, error) {
	if scope.Empty() {
		return 0, ErrEmptyScope
	}
	c.record(scope)

	n, err := c.backend.DeleteMatching(ctx, scope)
	if err != nil {
		metrics.CacheUnavailable.WithLabelValues("invalidate").Inc()
		return 0, fmt.Errorf("%w: invalidating: %v", ErrUnavailable, err)
	}
	metrics.CacheInvalidated.Add(float64(n))
	slog.Debug("cache invalidated",
		"article_id", scope.ArticleID, "user_id", scope.UserID, "type", scope.Kind, "removed", n)
	return n, nil
}

func (c *Cache) sequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *Cache) record(scope models.InvalidationScope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.invalidations = append(c.invalidations, invalidation{seq: c.seq, scope: scope})
	if n := len(c.invalidations) - maxInvalidationLog; n > 0 {
		c.invalidations = append(c.invalidations[:0:0], c.invalidations[n:]...)
	}
}

// invalidatedSince reports whether an invalidation recorded after seq
// selects scope.
func (c *Cache) invalidatedSince(seq uint64, scope models.CacheScope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == seq {
		return false
	}
	if len(c.invalidations) == 0 || c.invalidations[0].seq > seq+1 {
		// Part of the window was dropped from the log.
		return true
	}
	for i := len(c.invalidations) - 1; i >= 0 && c.invalidations[i].seq > seq; i-- {
		if c.invalidations[i].scope.Matches(scope) {
			return true
		}
	}
	return false
}

// Sweep removes entries that have expired and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	n, err := c.backend.Sweep(ctx, c.now())
	if err != nil {
		metrics.CacheUnavailable.WithLabelValues("sweep").Inc()
		return 0, fmt.Errorf("%w: sweeping: %v", ErrUnavailable, err)
	}
	metrics.CacheSwept.Add(float64(n))
	return n, nil
}

// Fetch is ComputeOrWait for JSON-encodable values.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, scope models.CacheScope,
	compute func(ctx context.Context) (T, error)) (T, bool, error) {
	return FetchScoped(ctx, c, key, ttl, func(ctx context.Context) (T, models.CacheScope, error) {
		v, err := compute(ctx)
		return v, scope, err
	})
}

// FetchScoped is ComputeScoped for JSON-encodable values.
func FetchScoped[T any](ctx context.Context, c *Cache, key string, ttl time.Duration,
	compute func(ctx context.Context) (T, models.CacheScope, error)) (T, bool, error) {
	var zero T

	payload, hit, err := c.ComputeScoped(ctx, key, ttl, func(ctx context.Context) ([]byte, models.CacheScope, error) {
		v, scope, err := compute(ctx)
		if err != nil {
			return nil, scope, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, scope, fmt.Errorf("encoding cached value: %w", err)
		}
		return b, scope, nil
	})
	if err != nil {
		return zero, false, err
	}

	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return zero, false, fmt.Errorf("decoding cached value for %s: %w", key, err)
	}
	return out, hit, nil
}
