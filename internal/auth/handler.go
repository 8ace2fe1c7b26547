package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/welldanyogia/colancer-registry/internal/api"
	appctx "github.com/welldanyogia/colancer-registry/internal/context"
	"github.com/welldanyogia/colancer-registry/internal/logger"
)

// CodeInvalidRefreshToken is returned when a refresh token cannot be used
const CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"

// RefreshRequest carries the refresh token for /sessions/refresh and /sessions/logout
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Handler serves the wallet session endpoints
type Handler struct {
	sessions *SessionService
	logger   *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(sessions *SessionService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// Refresh handles POST /api/v1/sessions/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRefresh(w, r)
	if !ok {
		return
	}

	session, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, session)
}

// Logout handles POST /api/v1/sessions/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	wallet, ok := appctx.ExtractWallet(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid or expired token", nil)
		return
	}

	req, ok := decodeRefresh(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Logout(r.Context(), wallet, req.RefreshToken); err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Successfully logged out",
	})
}

func decodeRefresh(w http.ResponseWriter, r *http.Request) (*RefreshRequest, bool) {
	var req RefreshRequest
	if err := api.DecodeJSON(w, r, 8<<10, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return nil, false
	}
	if details := api.Validate(req); details != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Validation failed", details)
		return nil, false
	}
	return &req, true
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrInvalidRefreshToken) {
		api.WriteError(w, http.StatusUnauthorized, CodeInvalidRefreshToken, "Invalid or expired refresh token", nil)
		return
	}
	logger.WithCorrelationID(r.Context(), h.logger).Error("Session request failed", "error", err)
	api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
}
