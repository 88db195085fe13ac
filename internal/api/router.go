package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket session gateway. Authentication happens inside the
		// registration handshake because device firmware cannot carry a
		// user bearer token.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)

			// Visit endpoints
			r.Route("/visitors", func(r chi.Router) {
				r.Post("/", s.handleRegisterVisitor)
				r.Get("/", s.handleListVisitors)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetVisitor)
					r.Post("/status", s.handleSetVisitorStatus)
					r.With(s.requireStaff).Post("/checkin", s.handleCheckin)
					r.With(s.requireStaff).Post("/checkout", s.handleCheckout)
				})
			})

			// User endpoints (admin only)
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/", s.handleUpdateUser)
					r.Delete("/", s.handleDeleteUser)
				})
			})

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.With(s.requireStaff).Get("/", s.handleListDevices)
				r.With(s.requireAdmin).Post("/", s.handleCreateDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requireStaff).Get("/", s.handleGetDevice)
					r.With(s.requireAdmin).Patch("/", s.handleUpdateDevice)
					r.With(s.requireAdmin).Delete("/", s.handleDeleteDevice)

					// {id} is the device channel name here, not the row id.
					r.With(s.requireStaff).Post("/command", s.handleDeviceCommand)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"connections": s.registry.Count(),
	})
}
