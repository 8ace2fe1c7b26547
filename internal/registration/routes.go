package registration

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the registration endpoint behind registerLimit and the
// preview endpoint behind previewLimit
func RegisterRoutes(r chi.Router, handler *Handler, registerLimit, previewLimit func(next http.Handler) http.Handler) {
	r.With(registerLimit).Post("/registrations", handler.Register)
	r.With(previewLimit).Post("/subdomains/preview", handler.Preview)
}
