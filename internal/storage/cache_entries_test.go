package storage

import (
	"context"
	"testing"
	"time"

	"github.com/hoanghai1803/lumen/internal/models"
)

func putEntry(t *testing.T, c *CacheTable, key string, scope models.CacheScope, expires time.Time) {
	t.Helper()
	err := c.Put(context.Background(), &models.CacheEntry{
		Key:       key,
		Payload:   []byte(`{"v":"` + key + `"}`),
		Scope:     scope,
		CreatedAt: baseTime,
		ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("Put(%s) error: %v", key, err)
	}
}

func TestCacheTable_PutGet(t *testing.T) {
	c := newTestStore(t).CacheTable()
	ctx := context.Background()

	scope := models.CacheScope{Kind: "generation", UserID: "u1", ArticleIDs: []string{"a2", "a1"}}
	putEntry(t, c, "k1", scope, baseTime.Add(time.Hour))

	got, ok, err := c.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get(k1) = %v, %v; want hit", ok, err)
	}
	if string(got.Payload) != `{"v":"k1"}` {
		t.Errorf("Payload = %s", got.Payload)
	}
	if got.Scope.Kind != "generation" || got.Scope.UserID != "u1" {
		t.Errorf("Scope = %+v", got.Scope)
	}
	if len(got.Scope.ArticleIDs) != 2 || got.Scope.ArticleIDs[0] != "a1" {
		t.Errorf("ArticleIDs = %v, want [a1 a2]", got.Scope.ArticleIDs)
	}
	if !got.ExpiresAt.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", got.ExpiresAt)
	}

	// Replacing drops the old article links.
	putEntry(t, c, "k1", models.CacheScope{Kind: "generation", ArticleIDs: []string{"a3"}}, baseTime.Add(time.Hour))
	got, _, _ = c.Get(ctx, "k1")
	if len(got.Scope.ArticleIDs) != 1 || got.Scope.ArticleIDs[0] != "a3" {
		t.Errorf("ArticleIDs after replace = %v, want [a3]", got.Scope.ArticleIDs)
	}

	if _, ok, err := c.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("Get(missing) = %v, %v; want miss", ok, err)
	}
}

func TestCacheTable_DeleteMatching(t *testing.T) {
	c := newTestStore(t).CacheTable()
	ctx := context.Background()
	exp := baseTime.Add(time.Hour)

	putEntry(t, c, "gen-a1", models.CacheScope{Kind: "generation", ArticleIDs: []string{"a1"}}, exp)
	putEntry(t, c, "gen-a2", models.CacheScope{Kind: "generation", ArticleIDs: []string{"a2"}}, exp)
	putEntry(t, c, "rec-u1", models.CacheScope{Kind: "recommendation", UserID: "u1", ArticleIDs: []string{"a1", "a2"}}, exp)
	putEntry(t, c, "rec-u2", models.CacheScope{Kind: "recommendation", UserID: "u2", ArticleIDs: []string{"a2"}}, exp)

	tests := []struct {
		name  string
		scope models.InvalidationScope
		gone  []string
		kept  []string
	}{
		{"empty scope removes nothing", models.InvalidationScope{}, nil, []string{"gen-a1", "gen-a2", "rec-u1", "rec-u2"}},
		{"article and kind", models.InvalidationScope{ArticleID: "a1", Kind: "generation"}, []string{"gen-a1"}, []string{"gen-a2", "rec-u1", "rec-u2"}},
		{"article", models.InvalidationScope{ArticleID: "a1"}, []string{"rec-u1"}, []string{"gen-a2", "rec-u2"}},
		{"user", models.InvalidationScope{UserID: "u2"}, []string{"rec-u2"}, []string{"gen-a2"}},
	}
	for _, tt := range tests {
		n, err := c.DeleteMatching(ctx, tt.scope)
		if err != nil {
			t.Fatalf("%s: DeleteMatching error: %v", tt.name, err)
		}
		if n != len(tt.gone) {
			t.Errorf("%s: removed %d, want %d", tt.name, n, len(tt.gone))
		}
		for _, k := range tt.gone {
			if _, ok, _ := c.Get(ctx, k); ok {
				t.Errorf("%s: %s should be gone", tt.name, k)
			}
		}
		for _, k := range tt.kept {
			if _, ok, _ := c.Get(ctx, k); !ok {
				t.Errorf("%s: %s should be kept", tt.name, k)
			}
		}
	}
}

func TestCacheTable_Sweep(t *testing.T) {
	c := newTestStore(t).CacheTable()
	ctx := context.Background()

	putEntry(t, c, "expired", models.CacheScope{Kind: "generation"}, baseTime)
	putEntry(t, c, "fresh", models.CacheScope{Kind: "generation"}, baseTime.Add(time.Second))

	n, err := c.Sweep(ctx, baseTime)
	if err != nil {
		t.Fatalf("Sweep error: %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if _, ok, _ := c.Get(ctx, "expired"); ok {
		t.Error("entry expiring exactly at now should be swept")
	}
	if _, ok, _ := c.Get(ctx, "fresh"); !ok {
		t.Error("fresh entry should survive sweep")
	}
}
