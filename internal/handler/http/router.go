package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/internal/syncer"
	"github.com/utafrali/catalogsearch/pkg/health"
	"github.com/utafrali/catalogsearch/pkg/middleware"
)

// RouterConfig holds the HTTP surface knobs.
type RouterConfig struct {
	CORSOrigins       []string
	RateLimitRPS      float64
	RateLimitBurst    int
	WebhookSecret     string
	PprofAllowedCIDRs []string
	CacheMaxAge       int
	RequestTimeout    time.Duration
}

// NewRouter creates a chi router with all search service routes registered.
// background bounds resync runs started through the API.
func NewRouter(
	searchService *service.SearchService,
	idx *syncer.Syncer,
	healthHandler *health.Handler,
	cfg RouterConfig,
	background context.Context,
	logger *slog.Logger,
) http.Handler {
	if background == nil {
		background = context.Background()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.CorrelationHeader, WebhookSecretHeader},
		ExposedHeaders: []string{middleware.CorrelationHeader},
		MaxAge:         3600,
	}))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing())
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("search"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	searchHandler := NewSearchHandler(searchService, logger)
	syncHandler := NewSyncHandler(searchService, idx, background, logger)

	r.Route("/api/v1/search", func(r chi.Router) {
		// Storefront reads
		r.Group(func(r chi.Router) {
			if cfg.RateLimitRPS > 0 {
				limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
				go limiter.Sweep(time.Minute, background.Done())
				r.Use(limiter.Handler)
			}
			r.Use(middleware.CacheControl(cfg.CacheMaxAge))
			r.Get("/", searchHandler.Search)
			r.Get("/autocomplete", searchHandler.Autocomplete)
			r.Get("/filters", searchHandler.Filters)
		})

		// Catalog-facing writes
		r.Group(func(r chi.Router) {
			r.Use(RequireSecret(cfg.WebhookSecret, logger))
			r.Use(ContentTypeJSON)
			r.Post("/webhooks/products", syncHandler.ProductWebhook)
			r.Post("/resync", syncHandler.Resync)
			r.Get("/resync/last", syncHandler.LastResync)
		})
	})

	return r
}
