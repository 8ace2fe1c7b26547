package middleware

import (
	"net/http"
	"strings"

	"github.com/welldanyogia/colancer-registry/internal/api"
	"github.com/welldanyogia/colancer-registry/internal/auth"
	appctx "github.com/welldanyogia/colancer-registry/internal/context"
)

// Auth error codes
const (
	CodeTokenMissing = "AUTH_TOKEN_MISSING"
	CodeTokenInvalid = "AUTH_TOKEN_INVALID"
)

// AuthMiddleware handles wallet session authentication for protected routes
type AuthMiddleware struct {
	tokenService *auth.TokenService
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(tokenService *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate validates the bearer session token and injects the wallet into the context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			api.WriteError(w, http.StatusUnauthorized, CodeTokenMissing, "Authorization header is required", nil)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			api.WriteError(w, http.StatusUnauthorized, CodeTokenInvalid, "Invalid authorization header format", nil)
			return
		}

		claims, err := m.tokenService.Validate(parts[1])
		if err != nil {
			api.WriteError(w, http.StatusUnauthorized, CodeTokenInvalid, "Invalid or expired token", nil)
			return
		}

		ctx := appctx.WithWallet(r.Context(), claims.Wallet(), claims.Subdomain)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
