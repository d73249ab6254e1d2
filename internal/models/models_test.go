package models

import (
	"testing"
	"time"
)

func TestInvalidationScope_Matches(t *testing.T) {
	entry := CacheScope{Kind: ResultRecommendation, UserID: "u1", ArticleIDs: []string{"a1", "a2"}}

	tests := []struct {
		name  string
		scope InvalidationScope
		want  bool
	}{
		{name: "empty matches nothing", scope: InvalidationScope{}, want: false},
		{name: "article", scope: InvalidationScope{ArticleID: "a2"}, want: true},
		{name: "other article", scope: InvalidationScope{ArticleID: "a9"}, want: false},
		{name: "user", scope: InvalidationScope{UserID: "u1"}, want: true},
		{name: "other user", scope: InvalidationScope{UserID: "u2"}, want: false},
		{name: "kind", scope: InvalidationScope{Kind: ResultRecommendation}, want: true},
		{name: "other kind", scope: InvalidationScope{Kind: ResultGeneration}, want: false},
		{name: "user and kind", scope: InvalidationScope{UserID: "u1", Kind: ResultRecommendation}, want: true},
		{name: "fields combine with AND", scope: InvalidationScope{UserID: "u1", Kind: ResultGeneration}, want: false},
		{name: "all three", scope: InvalidationScope{ArticleID: "a1", UserID: "u1", Kind: ResultRecommendation}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.Matches(entry); got != tt.want {
				t.Errorf("Matches(%+v) = %v, want %v", tt.scope, got, tt.want)
			}
		})
	}
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	e := &CacheEntry{CreatedAt: now.Add(-time.Hour), ExpiresAt: now}

	if e.Expired(now.Add(-time.Nanosecond)) {
		t.Error("entry expired before its expiry")
	}
	if !e.Expired(now) {
		t.Error("entry not expired at its expiry")
	}
}

func TestActionKind(t *testing.T) {
	tests := []struct {
		action  ActionKind
		valid   bool
		engaged bool
	}{
		{ActionView, true, false},
		{ActionRead, true, true},
		{ActionLike, true, true},
		{ActionSave, true, true},
		{ActionShare, true, true},
		{ActionSkip, true, false},
		{"stare", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		if got := tt.action.Valid(); got != tt.valid {
			t.Errorf("%q.Valid() = %v, want %v", tt.action, got, tt.valid)
		}
		if got := tt.action.Engaged(); got != tt.engaged {
			t.Errorf("%q.Engaged() = %v, want %v", tt.action, got, tt.engaged)
		}
	}
}

func TestUserProfile_History(t *testing.T) {
	p := &UserProfile{History: []Interaction{
		{ArticleID: "a1", Action: ActionRead, Category: "tech"},
		{ArticleID: "a2", Action: ActionSkip, Category: "sports"},
		{ArticleID: "a3", Action: ActionView, Category: "science"},
	}}

	got := p.RecentCategories(2)
	if len(got) != 2 || got[0] != "science" || got[1] != "sports" {
		t.Errorf("RecentCategories(2) = %v, want [science sports]", got)
	}
	if got := p.RecentCategories(10); len(got) != 3 {
		t.Errorf("RecentCategories(10) returned %d, want 3", len(got))
	}

	if !p.HasRead("a1") || !p.HasRead("a3") {
		t.Error("HasRead false for a read or viewed article")
	}
	if p.HasRead("a2") {
		t.Error("HasRead true for a skipped article")
	}
	if p.HasRead("a9") {
		t.Error("HasRead true for an unseen article")
	}
}

func TestEventInvalidations(t *testing.T) {
	material := InteractionEvent{UserID: "u1", ArticleID: "a1", Action: ActionSave, Material: true}
	got := material.Invalidations()
	if len(got) != 2 {
		t.Fatalf("material interaction: %d scopes, want 2", len(got))
	}
	for _, s := range got {
		if s.UserID != "u1" || s.ArticleID != "" {
			t.Errorf("scope %+v, want user-only scope", s)
		}
	}
	if got[0].Kind != ResultRecommendation || got[1].Kind != ResultGeneration {
		t.Errorf("kinds = %q, %q", got[0].Kind, got[1].Kind)
	}

	view := InteractionEvent{UserID: "u1", ArticleID: "a1", Action: ActionView}
	if got := view.Invalidations(); len(got) != 0 {
		t.Errorf("view interaction: %v, want none", got)
	}

	article := ArticleEvent{ArticleID: "a1"}
	if got := article.Invalidations(); len(got) != 1 || got[0] != (InvalidationScope{ArticleID: "a1"}) {
		t.Errorf("article event: %v", got)
	}
	if got := (ArticleEvent{}).Invalidations(); got != nil {
		t.Errorf("empty article event: %v, want nil", got)
	}
}
