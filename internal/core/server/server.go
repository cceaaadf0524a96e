package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/quadra-map/internal/core/config"
	"github.com/mohammed-shakir/quadra-map/internal/core/health"
	middleware "github.com/mohammed-shakir/quadra-map/internal/core/middleware"
	"github.com/mohammed-shakir/quadra-map/internal/core/router"
)

// Handler builds the full route tree.
func Handler(logger *slog.Logger, api *router.API, ready map[string]health.Check, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(ready))
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	api.Mount(r)
	return r
}

// sets up http and serves until ctx is done
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h http.Handler) error {
	// print holds the response until area loads settle
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.PrintReadyTimeout + 30*time.Second,
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
