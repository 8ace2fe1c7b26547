package skills

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/welldanyogia/colancer-registry/internal/api"
	appctx "github.com/welldanyogia/colancer-registry/internal/context"
	"github.com/welldanyogia/colancer-registry/internal/logger"
)

// Skill error codes
const (
	CodeBatchTooLarge       = "BATCH_TOO_LARGE"
	CodeAttestationRejected = "ATTESTATION_REJECTED"
	CodeAttesterUnavailable = "ATTESTER_UNAVAILABLE"
)

// Handler handles HTTP requests for skill verification
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Verify handles POST /api/v1/skills/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	wallet, ok := appctx.ExtractWallet(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid or expired token", nil)
		return
	}

	var in SkillInput
	if err := api.DecodeJSON(w, r, 4<<10, &in); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return
	}
	if details := api.Validate(in); details != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Validation failed", details)
		return
	}

	result, err := h.service.Verify(r.Context(), h.request(r, wallet, in))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, result)
}

// BatchVerify handles POST /api/v1/skills/verify/batch
func (h *Handler) BatchVerify(w http.ResponseWriter, r *http.Request) {
	wallet, ok := appctx.ExtractWallet(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid or expired token", nil)
		return
	}

	var in BatchInput
	if err := api.DecodeJSON(w, r, 64<<10, &in); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return
	}
	if len(in.Skills) > MaxBatchSize {
		api.WriteError(w, http.StatusBadRequest, CodeBatchTooLarge, "At most 20 skills per batch", nil)
		return
	}
	if details := api.Validate(in); details != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Validation failed", details)
		return
	}

	reqs := make([]VerificationRequest, len(in.Skills))
	for i, s := range in.Skills {
		reqs[i] = h.request(r, wallet, s)
	}

	results, err := h.service.BatchVerify(r.Context(), reqs)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// History handles GET /api/v1/skills/history?limit=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	wallet, ok := appctx.ExtractWallet(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid or expired token", nil)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, 100)
		}
	}

	results, err := h.service.History(r.Context(), wallet, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

func (h *Handler) request(r *http.Request, wallet string, in SkillInput) VerificationRequest {
	ensName, _ := appctx.ExtractSubdomain(r.Context())
	return VerificationRequest{
		SkillName:     in.SkillName,
		SkillLevel:    in.SkillLevel,
		WalletAddress: wallet,
		ENSName:       ensName,
	}
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.WithCorrelationID(r.Context(), h.logger)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, err.Error(), nil)
	case errors.Is(err, ErrBatchTooLarge):
		api.WriteError(w, http.StatusBadRequest, CodeBatchTooLarge, "At most 20 skills per batch", nil)
	case errors.Is(err, ErrAttestationRejected):
		api.WriteError(w, http.StatusUnprocessableEntity, CodeAttestationRejected, "Skill attestation was refused", nil)
	case errors.Is(err, ErrAttesterUnavailable):
		log.Warn("Skill attester unavailable", "error", err)
		api.WriteError(w, http.StatusServiceUnavailable, CodeAttesterUnavailable, "Skill attestation service unavailable", nil)
	default:
		log.Error("Skill request failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
	}
}
