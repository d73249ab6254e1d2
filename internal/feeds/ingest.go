package feeds

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hoanghai1803/lumen/internal/models"
)

// Sink stores an ingested article and reports whether its content changed.
type Sink interface {
	RefreshArticle(ctx context.Context, a *models.Article) (changed bool, err error)
}

// Fetch is the fetching half of an Ingester. *Fetcher implements it.
type Fetch interface {
	FetchAll(ctx context.Context, sources []Source, opts FetchOptions) (*FetchResult, error)
}

// IngestStats summarises one ingestion run.
type IngestStats struct {
	Fetched int          `json:"fetched"`
	Changed int          `json:"changed"`
	Errors  int          `json:"errors"`
	Failed  []FailedFeed `json:"failed,omitempty"`
}

// Ingester pulls the configured sources into a Sink.
type Ingester struct {
	fetch   Fetch
	sink    Sink
	sources []Source
	opts    FetchOptions
}

// NewIngester creates an Ingester.
func NewIngester(fetch Fetch, sink Sink, sources []Source, opts FetchOptions) *Ingester {
	return &Ingester{fetch: fetch, sink: sink, sources: sources, opts: opts}
}

// Run fetches every source once and stores what it finds. Articles that
// fail to store are counted and skipped.
func (in *Ingester) Run(ctx context.Context) (*IngestStats, error) {
	if len(in.sources) == 0 {
		return &IngestStats{}, nil
	}

	res, err := in.fetch.FetchAll(ctx, in.sources, in.opts)
	if err != nil {
		return nil, fmt.Errorf("ingesting feeds: %w", err)
	}

	stats := &IngestStats{Fetched: len(res.Articles), Failed: res.Failed}
	for i := range res.Articles {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		a := &res.Articles[i]
		changed, err := in.sink.RefreshArticle(ctx, a)
		if err != nil {
			stats.Errors++
			slog.Warn("storing ingested article", "article_id", a.ID, "url", a.URL, "error", err)
			continue
		}
		if changed {
			stats.Changed++
		}
	}

	slog.Info("feed ingestion finished",
		"sources", len(in.sources),
		"fetched", stats.Fetched,
		"changed", stats.Changed,
		"errors", stats.Errors,
		"failed_feeds", len(stats.Failed),
	)
	return stats, nil
}
