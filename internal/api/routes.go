package api

import (
	"context"
	"net/http"
	"time"

	"peerprep-matching/internal/api/handlers"
	"peerprep-matching/internal/sessions"
	"peerprep-matching/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Dependencies struct {
	Storage         *storage.Storage
	MatchingHandler *handlers.MatchingHandler
	WSManager       *sessions.WSManager
}

func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	// CORS middleware, permissive for the browser frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := deps.Storage.Redis.Ping(ctx); err != nil {
			http.Error(w, `{"status":"unhealthy","component":"redis"}`, http.StatusServiceUnavailable)
			return
		}
		if err := deps.Storage.DB.Ping(ctx); err != nil {
			http.Error(w, `{"status":"unhealthy","component":"postgres"}`, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"peerprep-matching"}`))
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Matching routes
	r.Route("/matching", func(r chi.Router) {
		r.Post("/start", deps.MatchingHandler.Start)
		r.Post("/check_state", deps.MatchingHandler.CheckState)
		r.Post("/cancel", deps.MatchingHandler.Cancel)
		r.Post("/ready", deps.MatchingHandler.Ready)
		r.Post("/decline", deps.MatchingHandler.Decline)
		r.Get("/queue", deps.MatchingHandler.QueueStatus)
		r.Get("/history/{userID}", deps.MatchingHandler.MatchHistory)
	})

	// WebSocket endpoint for match notifications
	r.Get("/ws/matching/{userID}", deps.WSManager.HandleMatchingSocket)

	return r
}
