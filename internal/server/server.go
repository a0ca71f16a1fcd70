// Package server assembles the route table and owns the http.Server
// lifecycle.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/geosvc/arcproxy/internal/config"
	"github.com/geosvc/arcproxy/internal/dataset"
	"github.com/geosvc/arcproxy/internal/health"
	"github.com/geosvc/arcproxy/internal/middleware"
)

// New builds the router: operational endpoints plus the catch-all proxy
// handler. Every response, operational ones included, passes through the
// CORS middleware.
func New(cfg config.Config, log zerolog.Logger, proxy http.Handler, ready health.Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(log))
	r.Use(middleware.Logging(log, routeLabel))
	r.Use(middleware.CORS(middleware.NewCORSPolicy(cfg.AllowedOrigins)))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(ready))
	if cfg.MetricsEnabled {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	// all methods: the proxy handler owns method gating for dataset paths
	r.Handle("/*", proxy)

	return r
}

// routeLabel collapses request paths onto a bounded label set for metrics.
func routeLabel(r *http.Request) string {
	switch strings.TrimRight(r.URL.Path, "/") {
	case "/healthz":
		return "/healthz"
	case "/readyz":
		return "/readyz"
	case "/metrics":
		return "/metrics"
	default:
		return "/" + string(dataset.FromPath(r.URL.Path))
	}
}

// Run serves handler on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, cfg config.Config, log zerolog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
