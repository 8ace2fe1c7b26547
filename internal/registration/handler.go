package registration

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/welldanyogia/colancer-registry/internal/api"
	"github.com/welldanyogia/colancer-registry/internal/identity"
	"github.com/welldanyogia/colancer-registry/internal/logger"
	"github.com/welldanyogia/colancer-registry/internal/naming"
	"github.com/welldanyogia/colancer-registry/internal/registry"
)

// Registration error codes
const (
	CodeInvalidProof       = "INVALID_PROOF"
	CodeSignalMismatch     = "SIGNAL_MISMATCH"
	CodeProofRejected      = "PROOF_REJECTED"
	CodeProofAlreadyUsed   = "PROOF_ALREADY_USED"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeMalformedCandidate = "MALFORMED_CANDIDATE"
	CodeNamesExhausted     = "NAMES_EXHAUSTED"
	CodeNameTaken          = "NAME_TAKEN"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRequestCancelled   = "REQUEST_CANCELLED"
)

const maxRegistrationBody = 16 << 10

// Handler handles registration and name preview requests
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

// Register handles POST /api/v1/registrations
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := api.DecodeJSON(w, r, maxRegistrationBody, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return
	}
	if details := api.Validate(req); details != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Validation failed", details)
		return
	}

	result, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusCreated, result)
}

// Preview handles POST /api/v1/subdomains/preview
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := api.DecodeJSON(w, r, 4<<10, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid request body", nil)
		return
	}
	if details := api.Validate(req); details != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Validation failed", details)
		return
	}

	preview, err := h.service.Preview(r.Context(), req.WalletAddress, req.MerkleRoot, 0)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, preview)
}

// handleError maps flow errors to HTTP responses
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.WithCorrelationID(r.Context(), h.logger)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Validation failed", nil)
	case errors.Is(err, identity.ErrInvalidProof):
		api.WriteError(w, http.StatusBadRequest, CodeInvalidProof, "Proof is malformed", nil)
	case errors.Is(err, identity.ErrSignalMismatch):
		api.WriteError(w, http.StatusBadRequest, CodeSignalMismatch, "Proof was not generated for this wallet", nil)
	case errors.Is(err, naming.ErrInvalidInput):
		api.WriteError(w, http.StatusBadRequest, CodeInvalidInput, "Wallet or merkle root too short", nil)
	case errors.Is(err, naming.ErrMalformedCandidate):
		api.WriteError(w, http.StatusUnprocessableEntity, CodeMalformedCandidate, "Derived name is not a valid label", nil)
	case errors.Is(err, identity.ErrProofRejected):
		api.WriteError(w, http.StatusForbidden, CodeProofRejected, "Proof was rejected by the identity provider", nil)
	case errors.Is(err, identity.ErrProofAlreadyUsed):
		api.WriteError(w, http.StatusConflict, CodeProofAlreadyUsed, "Proof has already been used to register", nil)
	case errors.Is(err, naming.ErrExhausted):
		api.WriteError(w, http.StatusConflict, CodeNamesExhausted, "No available name found, try again later", nil)
	case errors.Is(err, registry.ErrNameTaken):
		api.WriteError(w, http.StatusConflict, CodeNameTaken, "Name was taken concurrently, try again", nil)
	case errors.Is(err, naming.ErrOracleUnavailable), errors.Is(err, identity.ErrVerifierUnavailable):
		log.Warn("Registration dependency unavailable", "error", err)
		api.WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "Service temporarily unavailable", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		api.WriteError(w, http.StatusServiceUnavailable, CodeRequestCancelled, "Request cancelled", nil)
	default:
		log.Error("Registration failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
	}
}
