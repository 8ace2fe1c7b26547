package registry

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/colancer-registry/internal/api"
	appctx "github.com/welldanyogia/colancer-registry/internal/context"
	"github.com/welldanyogia/colancer-registry/internal/logger"
	"github.com/welldanyogia/colancer-registry/internal/naming"
	"github.com/welldanyogia/colancer-registry/internal/storage"
)

// Registry error codes
const (
	CodeInvalidLabel       = "INVALID_LABEL"
	CodeReservedLabel      = "RESERVED_LABEL"
	CodeNameTaken          = "NAME_TAKEN"
	CodeNotOwner           = "NOT_OWNER"
	CodeInvalidRecords     = "INVALID_RECORDS"
	CodeAvatarTooLarge     = "AVATAR_TOO_LARGE"
	CodeUnsupportedMedia   = "UNSUPPORTED_MEDIA_TYPE"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// AvailabilityResponse is returned by the availability endpoint
type AvailabilityResponse struct {
	Label     string `json:"label"`
	FullName  string `json:"full_name"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// SuggestionsResponse is returned by the suggestions endpoint
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Handler handles HTTP requests for subdomain lookup and management
type Handler struct {
	service *Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
		now:     time.Now,
	}
}

// Availability handles GET /api/v1/subdomains/{label}/availability
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	label := strings.ToLower(chi.URLParam(r, "label"))
	if !naming.IsValidFormat(label) {
		api.WriteError(w, http.StatusBadRequest, CodeInvalidLabel, "Invalid subdomain label", nil)
		return
	}

	resp := AvailabilityResponse{
		Label:    label,
		FullName: naming.FullName(label, h.service.ParentDomain()),
	}

	if IsReserved(label) {
		resp.Reason = "reserved"
		api.WriteSuccess(w, http.StatusOK, resp)
		return
	}

	available, err := h.service.IsAvailable(r.Context(), label)
	if err != nil {
		logger.WithCorrelationID(r.Context(), h.logger).Error("Availability check failed", "label", label, "error", err)
		api.WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "Availability check failed", nil)
		return
	}
	resp.Available = available
	if !available {
		resp.Reason = "taken"
	}

	api.WriteSuccess(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/subdomains/{label}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	label := strings.ToLower(chi.URLParam(r, "label"))
	if !naming.IsValidFormat(label) {
		api.WriteError(w, http.StatusBadRequest, CodeInvalidLabel, "Invalid subdomain label", nil)
		return
	}

	info, err := h.service.Get(r.Context(), label)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, info)
}

// Suggestions handles GET /api/v1/subdomains/suggestions?name=
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if len(name) > naming.MaxLength {
		name = name[:naming.MaxLength]
	}
	api.WriteSuccess(w, http.StatusOK, SuggestionsResponse{
		Suggestions: naming.Suggestions(name, h.now().Year()),
	})
}

// Mine handles GET /api/v1/subdomains/mine
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	wallet, ok := appctx.ExtractWallet(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid or expired token", nil)
		return
	}

	subs, err := h.service.ListByOwner(r.Context(), wallet)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, subs)
}

// UpdateRecords handles PUT /api/v1/subdomains/{label}/records
func (h *Handler) UpdateRecords(w http.ResponseWriter, r *http.Request) {
	wallet, ok := appctx.ExtractWallet(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid or expired token", nil)
		return
	}
	label := strings.ToLower(chi.URLParam(r, "label"))

	var req Records
	if err := api.DecodeJSON(w, r, 16<<10, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return
	}
	if details := api.Validate(req); details != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Validation failed", details)
		return
	}

	info, err := h.service.UpdateRecords(r.Context(), wallet, label, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, info)
}

// SetAvatar handles PUT /api/v1/subdomains/{label}/avatar with a raw image body
func (h *Handler) SetAvatar(w http.ResponseWriter, r *http.Request) {
	wallet, ok := appctx.ExtractWallet(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid or expired token", nil)
		return
	}
	label := strings.ToLower(chi.URLParam(r, "label"))

	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		api.WriteError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMedia, "Content-Type header is required", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, storage.MaxAvatarSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.WriteError(w, http.StatusRequestEntityTooLarge, CodeAvatarTooLarge, "Avatar exceeds 2 MiB", nil)
			return
		}
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Failed to read avatar", nil)
		return
	}
	if len(body) == 0 {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Avatar body is empty", nil)
		return
	}

	info, err := h.service.SetAvatar(r.Context(), wallet, label, contentType, body)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, info)
}

// handleError maps service errors to HTTP responses
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.WithCorrelationID(r.Context(), h.logger)
	switch {
	case errors.Is(err, ErrNotFound):
		api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Subdomain not found", nil)
	case errors.Is(err, ErrNotOwner):
		api.WriteError(w, http.StatusForbidden, CodeNotOwner, "Wallet does not own this subdomain", nil)
	case errors.Is(err, ErrInvalidLabel):
		api.WriteError(w, http.StatusBadRequest, CodeInvalidLabel, "Invalid subdomain label", nil)
	case errors.Is(err, ErrReservedLabel):
		api.WriteError(w, http.StatusBadRequest, CodeReservedLabel, "Subdomain label is reserved", nil)
	case errors.Is(err, ErrNameTaken):
		api.WriteError(w, http.StatusConflict, CodeNameTaken, "Subdomain already taken", nil)
	case errors.Is(err, ErrInvalidRecords):
		api.WriteError(w, http.StatusBadRequest, CodeInvalidRecords, err.Error(), nil)
	case errors.Is(err, storage.ErrUnsupportedContentType):
		api.WriteError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMedia, "Avatar must be png, jpeg, webp or gif", nil)
	case errors.Is(err, storage.ErrAvatarTooLarge):
		api.WriteError(w, http.StatusRequestEntityTooLarge, CodeAvatarTooLarge, "Avatar exceeds 2 MiB", nil)
	default:
		log.Error("Registry request failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
	}
}
