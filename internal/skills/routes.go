package skills

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts skill routes; every route requires a wallet session
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(next http.Handler) http.Handler) {
	r.Route("/skills", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Post("/verify", handler.Verify)
		r.Post("/verify/batch", handler.BatchVerify)
		r.Get("/history", handler.History)
	})
}
