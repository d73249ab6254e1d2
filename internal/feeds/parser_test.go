package feeds

import (
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

func TestParseFeedItems(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	recentTime := now.Add(-12 * time.Hour)
	oldTime := now.Add(-60 * 24 * time.Hour) // 60 days ago

	source := Source{Name: "Test Feed", Category: "science"}

	tests := []struct {
		name         string
		items        []*gofeed.Item
		lookbackDays int
		wantCount    int
		desc         string
	}{
		{
			name: "recent item within lookback window",
			items: []*gofeed.Item{
				{Title: "Recent Post", Link: "https://example.com/recent", Description: "A recent post", PublishedParsed: &recentTime},
			},
			lookbackDays: 7,
			wantCount:    1,
			desc:         "items within the lookback window should be included",
		},
		{
			name: "old item filtered by lookback",
			items: []*gofeed.Item{
				{Title: "Old Post", Link: "https://example.com/old", Description: "An old post", PublishedParsed: &oldTime},
			},
			lookbackDays: 30,
			wantCount:    0,
			desc:         "items older than lookback window should be excluded",
		},
		{
			name: "no lookback keeps old items",
			items: []*gofeed.Item{
				{Title: "Old Post", Link: "https://example.com/old", PublishedParsed: &oldTime},
			},
			lookbackDays: 0,
			wantCount:    1,
			desc:         "a zero lookback disables the filter",
		},
		{
			name: "nil published date is included",
			items: []*gofeed.Item{
				{Title: "No Date Post", Link: "https://example.com/nodate", Description: "No date"},
			},
			lookbackDays: 7,
			wantCount:    1,
			desc:         "items with nil PublishedParsed should always be included",
		},
		{
			name: "empty title is skipped",
			items: []*gofeed.Item{
				{Title: "", Link: "https://example.com/notitle", PublishedParsed: &recentTime},
			},
			lookbackDays: 7,
			wantCount:    0,
			desc:         "items with empty title should be skipped",
		},
		{
			name: "empty URL is skipped",
			items: []*gofeed.Item{
				{Title: "No URL Post", Link: "", PublishedParsed: &recentTime},
			},
			lookbackDays: 7,
			wantCount:    0,
			desc:         "items with empty URL should be skipped",
		},
		{
			name: "mixed items with some valid some invalid",
			items: []*gofeed.Item{
				{Title: "Good Post", Link: "https://example.com/good", PublishedParsed: &recentTime},
				{Title: "", Link: "https://example.com/notitle", PublishedParsed: &recentTime},
				{Title: "Old Post", Link: "https://example.com/old", PublishedParsed: &oldTime},
				{Title: "No Date", Link: "https://example.com/nodate"},
			},
			lookbackDays: 7,
			wantCount:    2, // Good Post + No Date
			desc:         "mix of valid and invalid items should filter correctly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &gofeed.Feed{Items: tt.items}
			articles := parseFeedItems(source, feed, FetchOptions{LookbackDays: tt.lookbackDays}, now)

			if got := len(articles); got != tt.wantCount {
				t.Errorf("%s: got %d articles, want %d", tt.desc, got, tt.wantCount)
			}
		})
	}
}

func TestParseFeedItems_FieldMapping(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	pubTime := now.Add(-24 * time.Hour)
	source := Source{Name: "Engineering Blog", Category: " Technology "}

	feed := &gofeed.Feed{
		Items: []*gofeed.Item{
			{
				Title:           "Test Article",
				Link:            "https://example.com/article",
				Description:     "A <b>bold</b> description",
				Content:         "<p>Body &amp; soul</p>",
				PublishedParsed: &pubTime,
			},
		},
	}

	articles := parseFeedItems(source, feed, FetchOptions{}, now)
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}

	a := articles[0]

	if a.Title != "Test Article" {
		t.Errorf("Title = %q, want %q", a.Title, "Test Article")
	}
	if a.URL != "https://example.com/article" {
		t.Errorf("URL = %q, want %q", a.URL, "https://example.com/article")
	}
	if a.Description != "A bold description" {
		t.Errorf("Description = %q, want %q", a.Description, "A bold description")
	}
	if a.Content != "Body & soul" {
		t.Errorf("Content = %q, want %q", a.Content, "Body & soul")
	}
	if a.Source != "Engineering Blog" {
		t.Errorf("Source = %q, want %q", a.Source, "Engineering Blog")
	}
	if a.Category != "technology" {
		t.Errorf("Category = %q, want %q", a.Category, "technology")
	}
	if !a.PublishedAt.Equal(pubTime) {
		t.Errorf("PublishedAt = %v, want %v", a.PublishedAt, pubTime)
	}
	if a.ID != articleID("https://example.com/article") || len(a.ID) != len("feed-")+16 {
		t.Errorf("ID = %q", a.ID)
	}
}

func TestParseFeedItems_CategoryFallbackAndOrder(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	older := now.Add(-3 * time.Hour)
	newer := now.Add(-time.Hour)
	updated := now.Add(-2 * time.Hour)

	feed := &gofeed.Feed{Items: []*gofeed.Item{
		{Title: "Older", Link: "https://example.com/1", PublishedParsed: &older, Categories: []string{"Sports"}},
		{Title: "Newer", Link: "https://example.com/2", PublishedParsed: &newer},
		{Title: "Updated", Link: "https://example.com/3", UpdatedParsed: &updated},
	}}

	articles := parseFeedItems(Source{Name: "Mixed"}, feed, FetchOptions{MaxArticles: 2}, now)
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
	if articles[0].Title != "Newer" || articles[1].Title != "Updated" {
		t.Errorf("order = %q, %q; want Newer, Updated", articles[0].Title, articles[1].Title)
	}

	all := parseFeedItems(Source{Name: "Mixed"}, feed, FetchOptions{}, now)
	if all[2].Category != "sports" {
		t.Errorf("Category = %q, want item category fallback sports", all[2].Category)
	}
}

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "non-empty string", input: "https://example.com/post"},
		{name: "empty string", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := computeHash(tt.input)
			h2 := computeHash(tt.input)

			if h1 != h2 {
				t.Errorf("computeHash not deterministic: %q != %q", h1, h2)
			}
			if len(h1) != 64 {
				t.Errorf("expected 64-char hex string, got %d chars: %q", len(h1), h1)
			}
		})
	}

	if computeHash("a") == computeHash("b") {
		t.Error("different inputs should produce different hashes")
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "removes simple tags",
			input: "<p>Hello <b>world</b></p>",
			want:  "Hello world",
		},
		{
			name:  "unescapes HTML entities",
			input: "Tom &amp; Jerry &lt;3",
			want:  "Tom & Jerry <3",
		},
		{
			name:  "plain text unchanged",
			input: "no tags here",
			want:  "no tags here",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripHTML(tt.input)
			if got != tt.want {
				t.Errorf("stripHTML(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
