package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	AllowedOrigins []string
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// ImagesDir is served under ImagesPrefix when both are set.
	ImagesDir      string
	ImagesPrefix   string
	RequestTimeout time.Duration
	// ScrapeTimeout applies to the scrape routes instead of RequestTimeout.
	ScrapeTimeout time.Duration
}

func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = 10 * time.Minute
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.ImagesDir != "" && cfg.ImagesPrefix != "" {
		prefix := "/" + strings.Trim(cfg.ImagesPrefix, "/")
		fs := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(cfg.ImagesDir)))
		r.Handle(prefix+"/*", fs)
	}

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.Timeout(cfg.RequestTimeout)).Post("/sync", h.TriggerSync)

		r.Route("/fabrics", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(cfg.ScrapeTimeout))
				r.Post("/scrape", h.ScrapeFabric)
				r.Post("/scrape-batch", h.ScrapeBatch)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(cfg.RequestTimeout))
				r.Get("/", h.ListFabrics)
				r.Get("/stats", h.GetStats)
				r.Get("/{id}", h.GetFabric)
				r.Patch("/{id}/rating", h.UpdateRating)
				r.Delete("/{id}", h.DeleteFabric)
			})
		})
	})

	return r
}
