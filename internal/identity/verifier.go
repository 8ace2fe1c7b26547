package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Verifier checks a proof against the identity provider
type Verifier interface {
	Verify(ctx context.Context, proof Proof) error
}

// HTTPVerifier verifies proofs through the World ID developer API
type HTTPVerifier struct {
	client  *http.Client
	baseURL string
	appID   string
	logger  *slog.Logger
}

// HTTPVerifierConfig contains configuration for HTTPVerifier
type HTTPVerifierConfig struct {
	BaseURL    string
	AppID      string
	Timeout    time.Duration // default: 10 seconds
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewHTTPVerifier creates a new HTTPVerifier
func NewHTTPVerifier(cfg HTTPVerifierConfig) *HTTPVerifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &HTTPVerifier{
		client:  cfg.HTTPClient,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		appID:   cfg.AppID,
		logger:  cfg.Logger,
	}
}

// verifyRequest is the body accepted by /api/v2/verify/{app_id}
type verifyRequest struct {
	NullifierHash     string `json:"nullifier_hash"`
	MerkleRoot        string `json:"merkle_root"`
	Proof             string `json:"proof"`
	VerificationLevel string `json:"verification_level"`
	Action            string `json:"action"`
	SignalHash        string `json:"signal_hash"`
}

// verifyErrorResponse is returned by the API for rejected proofs
type verifyErrorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Verify submits the proof. A 4xx answer means the proof itself is bad and
// yields ErrProofRejected; anything else unexpected yields ErrVerifierUnavailable.
func (v *HTTPVerifier) Verify(ctx context.Context, proof Proof) error {
	body, err := json.Marshal(verifyRequest{
		NullifierHash:     proof.NullifierHash,
		MerkleRoot:        proof.MerkleRoot,
		Proof:             proof.Proof,
		VerificationLevel: proof.CredentialType,
		Action:            proof.Action,
		SignalHash:        SignalHash(proof.Signal),
	})
	if err != nil {
		return fmt.Errorf("failed to encode verify request: %w", err)
	}

	endpoint := v.baseURL + "/api/v2/verify/" + url.PathEscape(v.appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var apiErr verifyErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&apiErr)
		v.logger.Warn("Proof rejected by verifier",
			"status", resp.StatusCode,
			"code", apiErr.Code,
			"detail", apiErr.Detail,
		)
		return fmt.Errorf("%w: %s %s", ErrProofRejected, apiErr.Code, apiErr.Detail)
	default:
		return fmt.Errorf("%w: status %d", ErrVerifierUnavailable, resp.StatusCode)
	}
}
