package feeds

import (
	"crypto/sha256"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hoanghai1803/lumen/internal/models"
)

var htmlTagPattern = regexp.MustCompile("<[^>]*>")

// parseFeedItems converts gofeed items into articles, newest first. Items
// without a title or link are skipped; items with no date are stamped now
// and always kept.
func parseFeedItems(source Source, feed *gofeed.Feed, opts FetchOptions, now time.Time) []models.Article {
	var cutoff time.Time
	if opts.LookbackDays > 0 {
		cutoff = now.AddDate(0, 0, -opts.LookbackDays)
	}

	var articles []models.Article
	for _, item := range feed.Items {
		if item.Title == "" || item.Link == "" {
			continue
		}

		published := now
		switch {
		case item.PublishedParsed != nil:
			published = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			published = *item.UpdatedParsed
		}
		if published.Before(cutoff) {
			continue
		}

		category := source.Category
		if category == "" && len(item.Categories) > 0 {
			category = item.Categories[0]
		}

		articles = append(articles, models.Article{
			ID:          articleID(item.Link),
			Title:       strings.TrimSpace(stripHTML(item.Title)),
			Description: strings.TrimSpace(stripHTML(item.Description)),
			Content:     strings.TrimSpace(stripHTML(item.Content)),
			Category:    strings.ToLower(strings.TrimSpace(category)),
			URL:         item.Link,
			Source:      source.Name,
			PublishedAt: published.UTC(),
		})
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	if opts.MaxArticles > 0 && len(articles) > opts.MaxArticles {
		articles = articles[:opts.MaxArticles]
	}
	return articles
}

// articleID derives a stable article ID from its link.
func articleID(link string) string {
	return "feed-" + computeHash(link)[:16]
}

// computeHash returns the SHA-256 hex digest of the given string.
func computeHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}

// stripHTML removes HTML tags from s and unescapes HTML entities.
func stripHTML(s string) string {
	clean := htmlTagPattern.ReplaceAllString(s, "")
	return html.UnescapeString(clean)
}
