package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/iconidentify/xgrab/internal/api/handler"
	mw "github.com/iconidentify/xgrab/internal/api/middleware"
)

// RouterConfig controls optional routes and cross-origin access.
type RouterConfig struct {
	EnableRaw   bool
	RawAPIKey   string
	CORSOrigins []string
	Gatherer    prometheus.Gatherer // nil serves the default registry
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	mediaHandler *handler.MediaHandler,
	healthHandler *handler.HealthHandler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-API-Key", "Authorization"},
		MaxAge:         86400,
	}).Handler)

	// Operational endpoints
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/stats", healthHandler.Stats)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/twitter", func(r chi.Router) {
		r.Post("/", mediaHandler.Resolve)
		r.Get("/", mediaHandler.GuestToken)

		// Debug endpoint returning the unnormalized upstream payload.
		if cfg.EnableRaw {
			r.With(mw.OperatorKey(cfg.RawAPIKey)).Post("/raw", mediaHandler.Raw)
		}
	})

	return otelhttp.NewHandler(r, "xgrab.http",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}
