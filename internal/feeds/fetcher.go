// Package feeds pulls articles from RSS and Atom feeds. Each configured
// source carries the category its articles are filed under; items with
// thin bodies get their full text through readability extraction.
package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/hoanghai1803/lumen/internal/models"
)

const (
	httpTimeout    = 30 * time.Second
	maxConcurrent  = 10
	rateLimitDelay = 1 * time.Second
	maxWords       = 5000
)

// Source is a feed and the category its articles belong to.
type Source struct {
	Name     string
	URL      string
	Category string
}

// FetchOptions controls how feeds are fetched.
type FetchOptions struct {
	// MaxArticles caps items taken per feed, newest first. Zero means no cap.
	MaxArticles int

	// LookbackDays drops items published earlier than this many days ago.
	// Zero disables the filter.
	LookbackDays int

	// ExtractThin fetches the full page for items whose feed body has
	// fewer than MinWords words.
	ExtractThin bool
	MinWords    int
}

// FailedFeed records a feed that could not be fetched.
type FailedFeed struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// FetchResult contains the fetched articles and any failures.
type FetchResult struct {
	Articles []models.Article
	Failed   []FailedFeed
}

// Fetcher handles feed fetching with per-domain rate limiting and bounded
// concurrency.
type Fetcher struct {
	client      *http.Client
	rateLimiter map[string]time.Time // per-domain last request time
	mu          sync.Mutex           // protects rateLimiter
	extract     func(ctx context.Context, pageURL string) (string, error)
	now         func() time.Time
}

// NewFetcher creates a Fetcher with a 30-second timeout and a browser-like
// user agent.
func NewFetcher() *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: httpTimeout,
			Transport: &userAgentTransport{
				base: http.DefaultTransport,
			},
		},
		rateLimiter: make(map[string]time.Time),
		now:         time.Now,
	}
	f.extract = f.ExtractArticle
	return f
}

// userAgentTransport wraps an http.RoundTripper to inject a custom User-Agent
// header on every request.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	browserHeaders(req)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	return t.base.RoundTrip(req)
}

// FetchAll fetches every source concurrently, at most 10 at a time.
// Individual source failures are collected in FetchResult.Failed rather
// than failing the batch.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source, opts FetchOptions) (*FetchResult, error) {
	var (
		result FetchResult
		mu     sync.Mutex
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for _, src := range sources {
		g.Go(func() error {
			articles, err := f.fetchSingleFeed(ctx, src, opts)
			if err != nil {
				slog.Warn("failed to fetch feed",
					"source", src.Name,
					"url", src.URL,
					"error", err,
				)

				mu.Lock()
				result.Failed = append(result.Failed, FailedFeed{
					Source: src.Name,
					Error:  err.Error(),
				})
				mu.Unlock()

				return nil
			}

			mu.Lock()
			result.Articles = append(result.Articles, articles...)
			mu.Unlock()

			slog.Info("fetched feed",
				"source", src.Name,
				"items", len(articles),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching feeds: %w", err)
	}

	return &result, nil
}

// fetchSingleFeed retrieves and parses one feed, then fills in thin
// article bodies when asked to.
func (f *Fetcher) fetchSingleFeed(ctx context.Context, source Source, opts FetchOptions) ([]models.Article, error) {
	f.waitForRateLimit(extractDomain(source.URL))

	fp := gofeed.NewParser()
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %q: %w", source.URL, err)
	}

	articles := parseFeedItems(source, feed, opts, f.now())
	if opts.ExtractThin {
		for i := range articles {
			a := &articles[i]
			if countWords(a.Content) >= opts.MinWords || a.URL == "" {
				continue
			}
			text, err := f.extract(ctx, a.URL)
			if err != nil {
				slog.Debug("full-text extraction failed, keeping feed body", "url", a.URL, "error", err)
				continue
			}
			a.Content = text
		}
	}
	return articles, nil
}

// ExtractArticle fetches the full article text from the given URL using
// go-readability. The returned text is truncated to 5000 words maximum.
func (f *Fetcher) ExtractArticle(ctx context.Context, articleURL string) (string, error) {
	f.waitForRateLimit(extractDomain(articleURL))

	text, err := extractFullText(ctx, articleURL, httpTimeout)
	if err != nil {
		return "", fmt.Errorf("extracting article from %q: %w", articleURL, err)
	}

	return truncateWords(text, maxWords), nil
}

// waitForRateLimit enforces a minimum delay of 1 second between requests to
// the same domain. It blocks until the delay has elapsed.
func (f *Fetcher) waitForRateLimit(domain string) {
	f.mu.Lock()
	lastReq, ok := f.rateLimiter[domain]
	if ok {
		elapsed := time.Since(lastReq)
		if elapsed < rateLimitDelay {
			f.mu.Unlock()
			time.Sleep(rateLimitDelay - elapsed)
			f.mu.Lock()
		}
	}
	f.rateLimiter[domain] = time.Now()
	f.mu.Unlock()
}

// extractDomain parses a URL and returns its hostname. If parsing fails, it
// returns the raw URL as a fallback key.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
