package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the session endpoints.
// Public: /sessions/refresh. Authenticated: /sessions/logout.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/refresh", handler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/logout", handler.Logout)
		})
	})
}
