package scheduler

import (
	"context"
	"log/slog"

	"github.com/hoanghai1803/lumen/internal/feeds"
)

// Job names.
const (
	JobCacheSweep = "cache-sweep"
	JobFeedIngest = "feed-ingest"
)

// Sweeper drops expired cache entries. *cache.Cache implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Ingester pulls feeds into the article store. *feeds.Ingester implements it.
type Ingester interface {
	Run(ctx context.Context) (*feeds.IngestStats, error)
}

// CacheSweep returns a job that removes expired cache entries.
func CacheSweep(s Sweeper) Job {
	return func(ctx context.Context) error {
		n, err := s.Sweep(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("cache sweep", "removed", n)
		}
		return nil
	}
}

// FeedIngest returns a job that runs one feed ingestion pass.
func FeedIngest(in Ingester) Job {
	return func(ctx context.Context) error {
		_, err := in.Run(ctx)
		return err
	}
}
