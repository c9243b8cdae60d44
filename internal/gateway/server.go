package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi mux with all routes wired.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public — no auth required.
	r.Get("/health", s.handleHealth())

	// Admin endpoints — auth required. Not mounted if no token configured.
	if s.config.AuthToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(s.config.AuthToken, s.audit, s.limiter))
			r.Get("/status", s.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Get("/approvals", s.handleListApprovals())
				r.Post("/approvals/{id}", s.handleResolveApproval())
				r.Get("/providers", s.handleListProviders())
			})
			if s.metrics != nil {
				r.Handle("/metrics", s.metrics.Handler())
			}
			r.Get("/ws/events", s.events.ServeHTTP)
		})
	}

	return r
}
