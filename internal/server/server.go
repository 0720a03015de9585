// Package server exposes the diagnostics gateway: health, metrics and a
// feature-query endpoint for smoke-testing the core against live services.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nstolbov/zuluview/internal/config"
)

// Run sets up routing and serves until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, features FeatureSource) error {
	r := chi.NewRouter()
	r.Use(Recover(logger))
	r.Use(Instrument(logger))
	r.Use(CORS())

	r.Get("/healthz", Liveness())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/features", HandleFeatures(logger, features))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
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

// Liveness reports process liveness only.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
