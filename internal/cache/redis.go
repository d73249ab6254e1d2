package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hoanghai1803/lumen/internal/models"
)

const (
	redisEntryPrefix = "lumen:cache:"
	redisScopePrefix = "lumen:scope:"
)

// RedisBackend stores entries in Redis so that replicas share one cache.
// Entries expire natively at their TTL. Each entry key is also added to
// index sets per kind, user and article, which invalidation intersects.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend creates a RedisBackend on client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// DialRedis parses a redis:// URL and returns a connected client.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func entryKey(key string) string { return redisEntryPrefix + key }

func scopeSets(s models.CacheScope) []string {
	var sets []string
	if s.Kind != "" {
		sets = append(sets, redisScopePrefix+"kind:"+s.Kind)
	}
	if s.UserID != "" {
		sets = append(sets, redisScopePrefix+"user:"+s.UserID)
	}
	for _, id := range s.ArticleIDs {
		sets = append(sets, redisScopePrefix+"article:"+id)
	}
	return sets
}

func (r *RedisBackend) Get(ctx context.Context, key string) (*models.CacheEntry, bool, error) {
	data, err := r.client.Get(ctx, entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var e models.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("decoding redis entry: %w", err)
	}
	return &e, true, nil
}

func (r *RedisBackend) Put(ctx context.Context, e *models.CacheEntry) error {
	ttl := e.ExpiresAt.Sub(e.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("entry %s expires before it is created", e.Key)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding redis entry: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey(e.Key), data, ttl)
		for _, set := range scopeSets(e.Scope) {
			pipe.SAdd(ctx, set, e.Key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, entryKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteMatching intersects the index sets named by scope, then re-checks
// each candidate against its stored scope before deleting it. Index members
// whose entry is gone or no longer matches are pruned.
func (r *RedisBackend) DeleteMatching(ctx context.Context, scope models.InvalidationScope) (int, error) {
	if scope.Empty() {
		return 0, nil
	}

	var sets []string
	if scope.Kind != "" {
		sets = append(sets, redisScopePrefix+"kind:"+scope.Kind)
	}
	if scope.UserID != "" {
		sets = append(sets, redisScopePrefix+"user:"+scope.UserID)
	}
	if scope.ArticleID != "" {
		sets = append(sets, redisScopePrefix+"article:"+scope.ArticleID)
	}

	candidates, err := r.client.SInter(ctx, sets...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis sinter: %w", err)
	}

	removed := 0
	for _, key := range candidates {
		e, ok, err := r.Get(ctx, key)
		if err != nil {
			return removed, err
		}
		if ok && scope.Matches(e.Scope) {
			if err := r.Delete(ctx, key); err != nil {
				return removed, err
			}
			removed++
			for _, set := range scopeSets(e.Scope) {
				r.unindex(ctx, set, key)
			}
			continue
		}
		for _, set := range sets {
			r.unindex(ctx, set, key)
		}
	}
	return removed, nil
}

// Sweep prunes index set members whose entry Redis has already expired and
// returns how many members were pruned. Entries themselves expire natively.
func (r *RedisBackend) Sweep(ctx context.Context, _ time.Time) (int, error) {
	pruned := 0
	iter := r.client.Scan(ctx, 0, redisScopePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		set := iter.Val()
		members, err := r.client.SMembers(ctx, set).Result()
		if err != nil {
			return pruned, fmt.Errorf("redis smembers %s: %w", set, err)
		}
		for _, key := range members {
			n, err := r.client.Exists(ctx, entryKey(key)).Result()
			if err != nil {
				return pruned, fmt.Errorf("redis exists: %w", err)
			}
			if n == 0 && r.unindex(ctx, set, key) {
				pruned++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("redis scan: %w", err)
	}
	return pruned, nil
}

// unindex removes key from an index set. A failure leaves a stale member
// that the next sweep retries, so it is logged rather than returned.
func (r *RedisBackend) unindex(ctx context.Context, set, key string) bool {
	if err := r.client.SRem(ctx, set, key).Err(); err != nil {
		slog.Warn("removing cache index member", "set", set, "key", key, "error", err)
		return false
	}
	return true
}
