// Package config loads the service configuration from a TOML file, applies
// defaults and environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	AI        AIConfig        `toml:"ai"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Cache     CacheConfig     `toml:"cache"`
	Scoring   ScoringConfig   `toml:"scoring"`
	ColdStart ColdStartConfig `toml:"coldstart"`
	Feeds     FeedsConfig     `toml:"feeds"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// CacheSecret is the bearer token required by POST /cache/invalidate.
	// When empty the endpoint rejects every request.
	CacheSecret        string `toml:"cache_secret"`
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "memory"
	// Path is the SQLite file. Relative paths resolve against the data
	// directory.
	Path string `toml:"path"`
}

// ProviderConfig configures one text-generation provider.
type ProviderConfig struct {
	Provider string `toml:"provider"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url"`
}

// Enabled reports whether a provider is configured.
func (p ProviderConfig) Enabled() bool {
	return p.Provider != ""
}

// AIConfig holds generation settings.
type AIConfig struct {
	CallTimeoutSeconds int            `toml:"call_timeout_seconds"`
	MemoPrefixChars    int            `toml:"memo_prefix_chars"`
	MemoMaxEntries     int64          `toml:"memo_max_entries"`
	BreakerFailures    uint32         `toml:"breaker_failures"`
	BreakerOpenSeconds int            `toml:"breaker_open_seconds"`
	Primary            ProviderConfig `toml:"primary"`
	Fallback           ProviderConfig `toml:"fallback"`
}

// CallTimeout returns the per-provider-call timeout.
func (a AIConfig) CallTimeout() time.Duration {
	return time.Duration(a.CallTimeoutSeconds) * time.Second
}

// BreakerOpen returns how long an open circuit stays open.
func (a AIConfig) BreakerOpen() time.Duration {
	return time.Duration(a.BreakerOpenSeconds) * time.Second
}

// EmbeddingConfig selects how article embeddings are produced.
type EmbeddingConfig struct {
	Provider     string `toml:"provider"` // "hash" or "ollama"
	Dimensions   int    `toml:"dimensions"`
	MaxTextChars int    `toml:"max_text_chars"`
	OllamaURL    string `toml:"ollama_url"`
	Model        string `toml:"model"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Backend                  string `toml:"backend"` // "memory", "sqlite" or "redis"
	RedisURL                 string `toml:"redis_url"`
	GenerationTTLMinutes     int    `toml:"generation_ttl_minutes"`
	RecommendationTTLMinutes int    `toml:"recommendation_ttl_minutes"`
	SweepSchedule            string `toml:"sweep_schedule"`
}

// GenerationTTL returns the lifetime of generation entries.
func (c CacheConfig) GenerationTTL() time.Duration {
	return time.Duration(c.GenerationTTLMinutes) * time.Minute
}

// RecommendationTTL returns the lifetime of recommendation entries.
func (c CacheConfig) RecommendationTTL() time.Duration {
	return time.Duration(c.RecommendationTTLMinutes) * time.Minute
}

// WeightsConfig is the scoring policy.
type WeightsConfig struct {
	Semantic   float64 `toml:"semantic"`
	Category   float64 `toml:"category"`
	Recency    float64 `toml:"recency"`
	Popularity float64 `toml:"popularity"`
	Diversity  float64 `toml:"diversity"`
}

// ScoringConfig tunes personalised ranking.
type ScoringConfig struct {
	Weights        WeightsConfig `toml:"weights"`
	MinScore       float64       `toml:"min_score"`
	PreferredTopN  int           `toml:"preferred_top_n"`
	MaxHistory     int           `toml:"max_history"`
	CandidateLimit int           `toml:"candidate_limit"`
}

// ColdStartConfig tunes recommendations for users without history.
type ColdStartConfig struct {
	MinConfidence      float64  `toml:"min_confidence"`
	TrendingCategories []string `toml:"trending_categories"`
	TrendingKeywords   []string `toml:"trending_keywords"`
	// TaxonomyPath overrides the built-in demographic taxonomy.
	TaxonomyPath string `toml:"taxonomy_path"`
}

// FeedSource is one RSS or Atom feed.
type FeedSource struct {
	Name     string `toml:"name"`
	URL      string `toml:"url"`
	Category string `toml:"category"`
}

// FeedsConfig holds article ingestion settings.
type FeedsConfig struct {
	RefreshSchedule    string       `toml:"refresh_schedule"`
	MaxArticlesPerFeed int          `toml:"max_articles_per_feed"`
	LookbackDays       int          `toml:"lookback_days"`
	ExtractThin        bool         `toml:"extract_thin"`
	MinWords           int          `toml:"min_words"`
	Sources            []FeedSource `toml:"sources"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// Handler returns a slog handler writing to w.
func (l LoggingConfig) Handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(l.Level)}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultConfigContent = `[server]
host = "localhost"
port = 8080
cache_secret = ""                 # Bearer token for POST /cache/invalidate (or LUMEN_CACHE_SECRET)
rate_limit_per_minute = 60        # Per-IP limit on /generate

[storage]
driver = "sqlite"                 # "sqlite" or "memory"
path = "lumen.db"                 # Relative to --data-dir

[ai]
call_timeout_seconds = 30
memo_prefix_chars = 1024
memo_max_entries = 10000
breaker_failures = 5              # 0 disables the circuit breaker
breaker_open_seconds = 30

[ai.primary]
provider = "openai"               # openai, anthropic, grok, gemini, ollama
api_key = ""                      # Or AI_API_KEY / OPENAI_API_KEY
model = "gpt-4o-mini"

[ai.fallback]
provider = "grok"                 # Leave empty to go straight to extractive answers
api_key = ""                      # Or XAI_API_KEY
model = "grok-3-mini"

[embedding]
provider = "hash"                 # "hash" or "ollama"
dimensions = 256
max_text_chars = 8000

[cache]
backend = "memory"                # "memory", "sqlite" or "redis"
redis_url = ""                    # Or REDIS_URL
generation_ttl_minutes = 1440
recommendation_ttl_minutes = 60
sweep_schedule = "*/10 * * * *"

[scoring]
min_score = 0.3
preferred_top_n = 5
max_history = 500
candidate_limit = 500

[scoring.weights]
semantic = 0.40
category = 0.25
recency = 0.20
popularity = 0.10
diversity = 0.05

[coldstart]
min_confidence = 0.2
trending_categories = []
trending_keywords = []
taxonomy_path = ""

[feeds]
refresh_schedule = "@every 1h"
max_articles_per_feed = 20
lookback_days = 7
extract_thin = true
min_words = 80

[logging]
level = "info"
format = "text"
`

// Load reads and parses the TOML config from the given path. If the file does
// not exist, it creates a default config file at that path. Environment
// variables override values from the file with highest priority.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
		slog.Info("created default config file", "path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("ignoring unknown config keys", "keys", fmt.Sprint(undecoded))
	}

	// Validate explicitly-set values before applying defaults, so that
	// explicitly writing "port = 0" is an error rather than silently
	// being replaced with the default.
	if err := validateExplicit(&cfg, md); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// createDefault writes the default config content to the given path,
// creating any parent directories as needed.
func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// validateExplicit checks values that were explicitly set in the TOML file.
// This catches cases like "port = 0" which would otherwise be silently
// replaced by the default value.
func validateExplicit(cfg *Config, md toml.MetaData) error {
	if md.IsDefined("server", "port") {
		if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
		}
	}
	if md.IsDefined("feeds", "lookback_days") && cfg.Feeds.LookbackDays < 1 {
		return fmt.Errorf("invalid feeds.lookback_days %d: must be >= 1", cfg.Feeds.LookbackDays)
	}
	if md.IsDefined("cache", "generation_ttl_minutes") && cfg.Cache.GenerationTTLMinutes < 1 {
		return fmt.Errorf("invalid cache.generation_ttl_minutes %d: must be >= 1", cfg.Cache.GenerationTTLMinutes)
	}
	if md.IsDefined("cache", "recommendation_ttl_minutes") && cfg.Cache.RecommendationTTLMinutes < 1 {
		return fmt.Errorf("invalid cache.recommendation_ttl_minutes %d: must be >= 1", cfg.Cache.RecommendationTTLMinutes)
	}
	if md.IsDefined("embedding", "dimensions") && cfg.Embedding.Dimensions < 1 {
		return fmt.Errorf("invalid embedding.dimensions %d: must be >= 1", cfg.Embedding.Dimensions)
	}
	return nil
}

// applyDefaults sets default values for any zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerMinute == 0 {
		cfg.Server.RateLimitPerMinute = 60
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "lumen.db"
	}

	if cfg.AI.CallTimeoutSeconds == 0 {
		cfg.AI.CallTimeoutSeconds = 30
	}
	if cfg.AI.MemoPrefixChars == 0 {
		cfg.AI.MemoPrefixChars = 1024
	}
	if cfg.AI.MemoMaxEntries == 0 {
		cfg.AI.MemoMaxEntries = 10000
	}
	if cfg.AI.BreakerOpenSeconds == 0 {
		cfg.AI.BreakerOpenSeconds = 30
	}
	if cfg.AI.Primary.Provider == "" {
		cfg.AI.Primary.Provider = "openai"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 256
	}
	if cfg.Embedding.MaxTextChars == 0 {
		cfg.Embedding.MaxTextChars = 8000
	}
	if cfg.Embedding.Provider == "ollama" {
		if cfg.Embedding.OllamaURL == "" {
			cfg.Embedding.OllamaURL = "http://localhost:11434"
		}
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = "nomic-embed-text"
		}
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.GenerationTTLMinutes == 0 {
		cfg.Cache.GenerationTTLMinutes = 24 * 60
	}
	if cfg.Cache.RecommendationTTLMinutes == 0 {
		cfg.Cache.RecommendationTTLMinutes = 60
	}
	if cfg.Cache.SweepSchedule == "" {
		cfg.Cache.SweepSchedule = "*/10 * * * *"
	}

	if cfg.Scoring.Weights == (WeightsConfig{}) {
		cfg.Scoring.Weights = WeightsConfig{
			Semantic:   0.40,
			Category:   0.25,
			Recency:    0.20,
			Popularity: 0.10,
			Diversity:  0.05,
		}
	}
	if cfg.Scoring.MinScore == 0 {
		cfg.Scoring.MinScore = 0.3
	}
	if cfg.Scoring.PreferredTopN == 0 {
		cfg.Scoring.PreferredTopN = 5
	}
	if cfg.Scoring.MaxHistory == 0 {
		cfg.Scoring.MaxHistory = 500
	}
	if cfg.Scoring.CandidateLimit == 0 {
		cfg.Scoring.CandidateLimit = 500
	}

	if cfg.ColdStart.MinConfidence == 0 {
		cfg.ColdStart.MinConfidence = 0.2
	}

	if cfg.Feeds.RefreshSchedule == "" {
		cfg.Feeds.RefreshSchedule = "@every 1h"
	}
	if cfg.Feeds.MaxArticlesPerFeed == 0 {
		cfg.Feeds.MaxArticlesPerFeed = 20
	}
	if cfg.Feeds.LookbackDays == 0 {
		cfg.Feeds.LookbackDays = 7
	}
	if cfg.Feeds.MinWords == 0 {
		cfg.Feeds.MinWords = 80
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// providerKeyEnv names the provider-specific API key variable.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"grok":      "XAI_API_KEY",
	"xai":       "XAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// applyEnvOverrides applies environment variable overrides. Environment
// variables take highest priority over config file values.
//
// Priority for ai.primary.api_key:
//  1. AI_API_KEY (generic, highest)
//  2. the provider-specific variable, e.g. OPENAI_API_KEY
//
// ai.fallback.api_key only honours its provider-specific variable.
func applyEnvOverrides(cfg *Config) {
	for _, p := range []*ProviderConfig{&cfg.AI.Primary, &cfg.AI.Fallback} {
		if name, ok := providerKeyEnv[p.Provider]; ok {
			if v := os.Getenv(name); v != "" {
				p.APIKey = v
			}
		}
	}

	// AI_API_KEY overrides the primary key (highest priority).
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.AI.Primary.APIKey = v
	}
	if v := os.Getenv("LUMEN_CACHE_SECRET"); v != "" {
		cfg.Server.CacheSecret = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"grok":      true,
	"xai":       true,
	"gemini":    true,
	"ollama":    true,
}

// validate checks that configuration values are within acceptable ranges.
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("invalid server.rate_limit_per_minute %d: must be >= 0", cfg.Server.RateLimitPerMinute)
	}

	switch cfg.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid storage.driver %q: must be \"sqlite\" or \"memory\"", cfg.Storage.Driver)
	}

	if !validProviders[cfg.AI.Primary.Provider] {
		return fmt.Errorf("invalid ai.primary.provider %q", cfg.AI.Primary.Provider)
	}
	if cfg.AI.Fallback.Enabled() && !validProviders[cfg.AI.Fallback.Provider] {
		return fmt.Errorf("invalid ai.fallback.provider %q", cfg.AI.Fallback.Provider)
	}
	if cfg.AI.CallTimeoutSeconds < 1 {
		return fmt.Errorf("invalid ai.call_timeout_seconds %d: must be >= 1", cfg.AI.CallTimeoutSeconds)
	}

	switch cfg.Embedding.Provider {
	case "hash", "ollama":
	default:
		return fmt.Errorf("invalid embedding.provider %q: must be \"hash\" or \"ollama\"", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions < 1 {
		return fmt.Errorf("invalid embedding.dimensions %d: must be >= 1", cfg.Embedding.Dimensions)
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "sqlite":
		if cfg.Storage.Driver != "sqlite" {
			return fmt.Errorf("cache.backend \"sqlite\" requires storage.driver \"sqlite\"")
		}
	case "redis":
		if cfg.Cache.RedisURL == "" {
			return fmt.Errorf("cache.backend \"redis\" requires cache.redis_url or REDIS_URL")
		}
	default:
		return fmt.Errorf("invalid cache.backend %q: must be \"memory\", \"sqlite\" or \"redis\"", cfg.Cache.Backend)
	}
	if _, err := cron.ParseStandard(cfg.Cache.SweepSchedule); err != nil {
		return fmt.Errorf("invalid cache.sweep_schedule %q: %w", cfg.Cache.SweepSchedule, err)
	}

	w := cfg.Scoring.Weights
	for name, v := range map[string]float64{
		"semantic": w.Semantic, "category": w.Category, "recency": w.Recency,
		"popularity": w.Popularity, "diversity": w.Diversity,
	} {
		if v < 0 {
			return fmt.Errorf("invalid scoring.weights.%s %v: must be >= 0", name, v)
		}
	}
	if cfg.Scoring.MinScore < 0 || cfg.Scoring.MinScore >= 1 {
		return fmt.Errorf("invalid scoring.min_score %v: must be in [0, 1)", cfg.Scoring.MinScore)
	}
	if cfg.ColdStart.MinConfidence < 0 || cfg.ColdStart.MinConfidence > 1 {
		return fmt.Errorf("invalid coldstart.min_confidence %v: must be in [0, 1]", cfg.ColdStart.MinConfidence)
	}

	if cfg.Feeds.LookbackDays < 1 {
		return fmt.Errorf("invalid feeds.lookback_days %d: must be >= 1", cfg.Feeds.LookbackDays)
	}
	if _, err := cron.ParseStandard(cfg.Feeds.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid feeds.refresh_schedule %q: %w", cfg.Feeds.RefreshSchedule, err)
	}
	for i, s := range cfg.Feeds.Sources {
		if s.URL == "" {
			return fmt.Errorf("feeds.sources[%d] (%q) has no url", i, s.Name)
		}
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q: must be \"text\" or \"json\"", cfg.Logging.Format)
	}

	if cfg.AI.Primary.APIKey == "" && cfg.AI.Primary.Provider != "ollama" {
		slog.Warn("ai.primary.api_key is empty: set it in the config file or via AI_API_KEY environment variable")
	}
	if cfg.Server.CacheSecret == "" {
		slog.Warn("server.cache_secret is empty: POST /cache/invalidate will reject every request")
	}

	return nil
}
