package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/wadh/internal/api/handler"
	mw "github.com/iconidentify/wadh/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	batchHandler *handler.BatchHandler,
	eventHandler *handler.EventHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		// The stream is long lived and stays outside the timeout.
		r.Get("/events/stream", eventHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/stats", healthHandler.Stats)
			r.Get("/status", batchHandler.Status)

			r.Post("/batches", batchHandler.Start)
			r.Get("/batches", batchHandler.List)
			r.Post("/batches/cancel", batchHandler.Cancel)
			r.Get("/batches/{batchID}", batchHandler.Get)

			r.Get("/events", eventHandler.List)
			r.Get("/events/recent", eventHandler.Recent)
		})
	})

	return r
}
