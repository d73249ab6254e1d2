package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/hoanghai1803/lumen/internal/ai"
	"github.com/hoanghai1803/lumen/internal/api"
	"github.com/hoanghai1803/lumen/internal/api/handlers"
	"github.com/hoanghai1803/lumen/internal/cache"
	"github.com/hoanghai1803/lumen/internal/coldstart"
	"github.com/hoanghai1803/lumen/internal/config"
	"github.com/hoanghai1803/lumen/internal/embedding"
	"github.com/hoanghai1803/lumen/internal/events"
	"github.com/hoanghai1803/lumen/internal/feeds"
	"github.com/hoanghai1803/lumen/internal/generation"
	"github.com/hoanghai1803/lumen/internal/recommend"
	"github.com/hoanghai1803/lumen/internal/storage"
)

// app holds the wired components shared by every command.
type app struct {
	store      storage.Store
	cache      *cache.Cache
	chain      *generation.Chain
	generation *generation.Service
	engine     *recommend.Engine
	bus        *events.Bus
	ingester   *feeds.Ingester
	checks     map[string]handlers.Check
	closers    []func() error
}

func newApp(ctx context.Context, cfg *config.Config, dataDir string) (*app, error) {
	a := &app{checks: make(map[string]handlers.Check)}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openStore(cfg, dataDir); err != nil {
		return nil, err
	}
	if err := a.openCache(ctx, cfg); err != nil {
		return nil, err
	}

	primary, err := newProvider(cfg.AI.Primary, cfg.AI)
	if err != nil {
		return nil, err
	}
	fallback, err := newProvider(cfg.AI.Fallback, cfg.AI)
	if err != nil {
		return nil, err
	}
	a.chain, err = generation.NewChain(primary, fallback, generation.ChainConfig{
		CallTimeout:     cfg.AI.CallTimeout(),
		MemoPrefixChars: cfg.AI.MemoPrefixChars,
		MemoMaxEntries:  cfg.AI.MemoMaxEntries,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.chain.Close(); return nil })
	a.generation = generation.NewService(a.store, a.chain, a.cache, cfg.Cache.GenerationTTL())

	tax, err := coldstart.LoadTaxonomy(cfg.ColdStart.TaxonomyPath)
	if err != nil {
		return nil, err
	}
	cs := coldstart.NewHandler(tax, coldstart.Config{
		TrendingCategories: cfg.ColdStart.TrendingCategories,
		TrendingKeywords:   cfg.ColdStart.TrendingKeywords,
		MinScore:           cfg.Scoring.MinScore,
	}, a.chain, a.cache)

	a.bus = events.NewBus(a.cache, 0)
	if err := a.bus.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting event bus: %w", err)
	}
	a.closers = append(a.closers, a.bus.Close)

	w := cfg.Scoring.Weights
	a.engine, err = recommend.NewEngine(a.store, newEmbeddingGenerator(cfg.Embedding), cs, a.cache, a.bus, recommend.Config{
		Weights: recommend.Weights{
			Semantic:   w.Semantic,
			Category:   w.Category,
			Recency:    w.Recency,
			Popularity: w.Popularity,
			Diversity:  w.Diversity,
		},
		MinScore:       cfg.Scoring.MinScore,
		MinConfidence:  cfg.ColdStart.MinConfidence,
		PreferredTopN:  cfg.Scoring.PreferredTopN,
		MaxHistory:     cfg.Scoring.MaxHistory,
		CandidateLimit: cfg.Scoring.CandidateLimit,
		CacheTTL:       cfg.Cache.RecommendationTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating recommendation engine: %w", err)
	}

	sources := make([]feeds.Source, 0, len(cfg.Feeds.Sources))
	for _, s := range cfg.Feeds.Sources {
		sources = append(sources, feeds.Source{Name: s.Name, URL: s.URL, Category: s.Category})
	}
	a.ingester = feeds.NewIngester(feeds.NewFetcher(), a.engine, sources, feeds.FetchOptions{
		MaxArticles:  cfg.Feeds.MaxArticlesPerFeed,
		LookbackDays: cfg.Feeds.LookbackDays,
		ExtractThin:  cfg.Feeds.ExtractThin,
		MinWords:     cfg.Feeds.MinWords,
	})

	ok = true
	return a, nil
}

func (a *app) openStore(cfg *config.Config, dataDir string) error {
	switch cfg.Storage.Driver {
	case "memory":
		a.store = storage.NewMemoryStore()
		slog.Warn("using in-memory store; state is lost on exit")
	default:
		path := cfg.Storage.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		s, err := storage.OpenSQLStore(path)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		a.store = s
		a.checks["store"] = func(ctx context.Context) error { return s.DB().PingContext(ctx) }
	}
	a.closers = append(a.closers, a.store.Close)
	return nil
}

func (a *app) openCache(ctx context.Context, cfg *config.Config) error {
	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "redis":
		client, err := cache.DialRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		a.checks["cache"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		backend = cache.NewRedisBackend(client)
	case "sqlite":
		s, ok := a.store.(*storage.SQLStore)
		if !ok {
			return fmt.Errorf("cache backend sqlite needs the sqlite store")
		}
		backend = s.CacheTable()
	default:
		backend = cache.NewMemoryBackend()
	}
	a.cache = cache.New(backend)
	slog.Info("response cache ready", "backend", cfg.Cache.Backend)
	return nil
}

// newProvider builds one provider behind its circuit breaker. An unset
// provider, or a hosted one without a key, yields nil so its stage is
// skipped.
func newProvider(pc config.ProviderConfig, aic config.AIConfig) (ai.Provider, error) {
	if !pc.Enabled() {
		return nil, nil
	}
	if pc.APIKey == "" && pc.Provider != "ollama" {
		slog.Warn("AI provider has no API key, skipping it", "provider", pc.Provider)
		return nil, nil
	}
	p, err := ai.NewProvider(ai.ProviderConfig{
		Provider: pc.Provider,
		APIKey:   pc.APIKey,
		Model:    pc.Model,
		BaseURL:  pc.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating AI provider: %w", err)
	}
	slog.Info("AI provider configured", "provider", p.Name(), "model", p.Model())
	return ai.WithBreaker(p, ai.BreakerSettings{
		FailureThreshold: aic.BreakerFailures,
		OpenTimeout:      aic.BreakerOpen(),
	}), nil
}

func newEmbeddingGenerator(ec config.EmbeddingConfig) *embedding.Generator {
	var e embedding.Embedder
	switch ec.Provider {
	case "ollama":
		e = embedding.NewOllamaEmbedder(ec.Model, ec.OllamaURL, ec.Dimensions)
	default:
		e = embedding.NewHashEmbedder(ec.Dimensions)
	}
	return embedding.NewGenerator(e, ec.MaxTextChars)
}

func (a *app) services() api.Services {
	return api.Services{
		Recommender: a.engine,
		Tracker:     a.engine,
		Articles:    a.engine,
		Users:       a.engine,
		Generator:   a.generation,
		Cache:       a.cache,
		Checks:      a.checks,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closing resource", "error", err)
		}
	}
	a.closers = nil
}
