package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/voicerelay/internal/api"
	"github.com/gaspardpetit/voicerelay/internal/config"
)

// New constructs the HTTP handler for the relay. Metrics are served on the
// same handler when the metrics address matches the API port; preg may be
// nil to skip them.
func New(cfg config.RelayConfig, opts api.Options, preg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.StripSlashes)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         86400,
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Drain != nil && opts.Drain.IsDraining() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("draining"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Mount("/api", api.NewRouter(opts))

	if preg != nil && cfg.MetricsOnAPIPort() {
		r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
	}
	return r
}
