// Package metrics holds the Prometheus collectors shared across Lumen.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Response cache
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumen_cache_lookups_total",
			Help: "Response cache lookups by result (hit, miss, expired)",
		},
		[]string{"result"},
	)

	CacheCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lumen_cache_coalesced_total",
			Help: "Computations whose result was shared with concurrent callers",
		},
	)

	CacheInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lumen_cache_invalidated_entries_total",
			Help: "Entries removed by explicit invalidation",
		},
	)

	CacheSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lumen_cache_swept_entries_total",
			Help: "Expired entries removed by the background sweep",
		},
	)

	CacheUnavailable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumen_cache_unavailable_total",
			Help: "Cache backend failures by operation; the request proceeds unmemoised",
		},
		[]string{"operation"},
	)

	// Generation
	GenerationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumen_generation_outcomes_total",
			Help: "Generation requests by the stage that produced the answer",
		},
		[]string{"stage"}, // "primary", "fallback", "extractive", "rejected"
	)

	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumen_provider_failures_total",
			Help: "Text-generation provider failures by provider and kind",
		},
		[]string{"provider", "kind"},
	)

	ProviderMemoHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lumen_provider_memo_hits_total",
			Help: "Provider calls answered from the in-process response memo",
		},
	)

	// Recommendation
	RecommendPipelines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumen_recommend_pipeline_total",
			Help: "Recommendation requests by pipeline",
		},
		[]string{"pipeline"},
	)

	InteractionsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumen_interactions_tracked_total",
			Help: "Tracked interactions by action",
		},
		[]string{"action"},
	)

	// Background jobs
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lumen_job_runs_total",
			Help: "Scheduled job runs by job and result (ok, error)",
		},
		[]string{"job", "result"},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lumen_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
