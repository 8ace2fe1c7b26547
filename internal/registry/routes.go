package registry

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts subdomain routes. Lookups are public, record and
// avatar changes require a wallet session.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware func(next http.Handler) http.Handler) {
	r.Route("/subdomains", func(r chi.Router) {
		// Static segments win over {label}
		r.Get("/suggestions", handler.Suggestions)

		r.Get("/{label}", handler.Get)
		r.Get("/{label}/availability", handler.Availability)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Get("/mine", handler.Mine)
			r.Put("/{label}/records", handler.UpdateRecords)
			r.Put("/{label}/avatar", handler.SetAvatar)
		})
	})
}
