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

// CacheTable persists response cache entries in the cache_entries table so
// that memoised results survive restarts. Expiry is evaluated by the caller;
// Get returns stale rows as stored.
type CacheTable struct {
	db *sql.DB
}

// CacheTable returns the cache entry table of s.
func (s *SQLStore) CacheTable() *CacheTable {
	return &CacheTable{db: s.db}
}

// Get returns the entry stored under key. ok is false when there is none.
func (c *CacheTable) Get(ctx context.Context, key string) (*models.CacheEntry, bool, error) {
	var (
		e                    models.CacheEntry
		createdAt, expiresAt string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT cache_key, payload, kind, user_id, created_at, expires_at
		 FROM cache_entries WHERE cache_key = ?`, key).
		Scan(&e.Key, &e.Payload, &e.Scope.Kind, &e.Scope.UserID, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting cache entry: %w", err)
	}
	e.CreatedAt = parseTime(createdAt)
	e.ExpiresAt = parseTime(expiresAt)

	rows, err := c.db.QueryContext(ctx,
		`SELECT article_id FROM cache_entry_articles WHERE cache_key = ? ORDER BY article_id`, key)
	if err != nil {
		return nil, false, fmt.Errorf("getting cache entry articles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, false, fmt.Errorf("scanning cache entry article: %w", err)
		}
		e.Scope.ArticleIDs = append(e.Scope.ArticleIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterating cache entry articles: %w", err)
	}
	return &e, true, nil
}

// Put stores e, replacing any entry under the same key.
func (c *CacheTable) Put(ctx context.Context, e *models.CacheEntry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cache put: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cache_entry_articles WHERE cache_key = ?`, e.Key); err != nil {
		return fmt.Errorf("clearing cache entry articles: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, payload, kind, user_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   payload = excluded.payload,
		   kind = excluded.kind,
		   user_id = excluded.user_id,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`,
		e.Key, e.Payload, e.Scope.Kind, e.Scope.UserID,
		formatTime(e.CreatedAt), formatTime(e.ExpiresAt)); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	for _, id := range e.Scope.ArticleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO cache_entry_articles (cache_key, article_id) VALUES (?, ?)`,
			e.Key, id); err != nil {
			return fmt.Errorf("writing cache entry article: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache put: %w", err)
	}
	return nil
}

// Delete removes the entry under key, if any.
func (c *CacheTable) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// DeleteMatching removes every entry selected by scope and returns how many
// were removed. An empty scope removes nothing.
func (c *CacheTable) DeleteMatching(ctx context.Context, scope models.InvalidationScope) (int, error) {
	if scope.Empty() {
		return 0, nil
	}

	var (
		where []string
		args  []any
	)
	if scope.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, scope.Kind)
	}
	if scope.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, scope.UserID)
	}
	if scope.ArticleID != "" {
		where = append(where, "cache_key IN (SELECT cache_key FROM cache_entry_articles WHERE article_id = ?)")
		args = append(args, scope.ArticleID)
	}

	res, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return 0, fmt.Errorf("invalidating cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking invalidated rows: %w", err)
	}
	return int(n), c.dropOrphans(ctx)
}

// Sweep removes entries expired at now and returns how many were removed.
func (c *CacheTable) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("sweeping cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking swept rows: %w", err)
	}
	return int(n), c.dropOrphans(ctx)
}

func (c *CacheTable) dropOrphans(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entry_articles WHERE cache_key NOT IN (SELECT cache_key FROM cache_entries)`); err != nil {
		return fmt.Errorf("dropping orphaned cache entry articles: %w", err)
	}
	return nil
}
