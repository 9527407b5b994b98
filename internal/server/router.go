// Package server is the HTTP surface of the turn protocol: streaming chat,
// history retrieval, conversation listing and direct message appends.
package server

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(h *Handler, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware first to capture all requests.
	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "user_id", "conv_id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Operational endpoints, outside the user_id gate.
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireUserID)

		r.Post("/chat", h.Chat)
		r.Post("/retrieve-history", h.RetrieveHistory)
		r.Get("/conversations", h.Conversations)
		r.Post("/save-message", h.SaveMessage)
	})

	return r
}
