package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"chatrelay/internal/handlers"
	"chatrelay/internal/middleware"
)

func New(
	rateLimiter *middleware.RateLimiter,
	chatHandler *handlers.ChatHandler,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{frontendURL},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
	}).Handler)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Quota applies to chat exchanges only; transcript inspection and
	// session close stay free.
	r.Group(func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		r.Post("/chat", chatHandler.Chat)
	})

	r.Get("/chat/history", chatHandler.History)
	r.Delete("/chat/history", chatHandler.CloseSession)

	return r
}
