package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hoanghai1803/lumen/internal/api/handlers"
)

// Services are the capabilities the HTTP surface is built on.
type Services struct {
	Recommender handlers.Recommender
	Tracker     handlers.Tracker
	Articles    handlers.ArticleSink
	Users       handlers.Users
	Generator   handlers.Generator
	Cache       handlers.Invalidator
	Checks      map[string]handlers.Check
}

// Options tune the router.
type Options struct {
	// CacheSecret is the bearer token for POST /cache/invalidate.
	CacheSecret string
	// GenerateRatePerMinute limits POST /generate per client IP. Zero
	// disables the limit.
	GenerateRatePerMinute int
}

// NewRouter creates and configures the HTTP router with all routes.
func NewRouter(svc Services, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(RequestID)
	r.Use(RequestLogger)
	r.Use(Recovery)
	r.Use(CORS)

	r.Get("/healthz", handlers.Health(svc.Checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/recommend", handlers.Recommend(svc.Recommender))
	r.Post("/interactions/track", handlers.TrackInteraction(svc.Tracker))
	r.Post("/articles", handlers.UpsertArticle(svc.Articles))

	r.Route("/users/{id}", func(u chi.Router) {
		u.Put("/onboarding", handlers.Onboard(svc.Users))
		u.Get("/priors", handlers.GetPriors(svc.Users))
		u.Get("/learning-plan", handlers.GetLearningPlan(svc.Users))
	})

	r.Route("/generate", func(g chi.Router) {
		if opts.GenerateRatePerMinute > 0 {
			g.With(httprate.Limit(
				opts.GenerateRatePerMinute,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeJSONError(w, http.StatusTooManyRequests, "Too many generation requests")
				}),
			)).Post("/", handlers.Generate(svc.Generator))
		} else {
			g.Post("/", handlers.Generate(svc.Generator))
		}
		g.Get("/{requestId}", handlers.GetGeneration(svc.Generator))
	})

	r.With(RequireBearer(opts.CacheSecret)).Post("/cache/invalidate", handlers.InvalidateCache(svc.Cache))

	return r
}
