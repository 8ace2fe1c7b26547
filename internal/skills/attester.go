package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Attester produces a verdict for a single skill claim
type Attester interface {
	Attest(ctx context.Context, req VerificationRequest) (*VerificationResult, error)
}

// HTTPAttester calls the data-connector attestation API
type HTTPAttester struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// HTTPAttesterConfig contains configuration for HTTPAttester
type HTTPAttesterConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // default: 15 seconds
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewHTTPAttester creates a new HTTPAttester
func NewHTTPAttester(cfg HTTPAttesterConfig) *HTTPAttester {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPAttester{
		client:  cfg.HTTPClient,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  cfg.Logger,
	}
}

type attestRequest struct {
	SkillName     string `json:"skillName"`
	SkillLevel    string `json:"skillLevel"`
	WalletAddress string `json:"walletAddress"`
	ENSName       string `json:"ensName,omitempty"`
}

type attestResponse struct {
	Verified           bool      `json:"verified"`
	Confidence         float64   `json:"confidence"`
	VerificationMethod string    `json:"verificationMethod"`
	Timestamp          time.Time `json:"timestamp"`
	Proof              *string   `json:"proof,omitempty"`
}

// Attest implements Attester. A 4xx answer means the claim itself was refused.
func (a *HTTPAttester) Attest(ctx context.Context, req VerificationRequest) (*VerificationResult, error) {
	body, err := json.Marshal(attestRequest{
		SkillName:     req.SkillName,
		SkillLevel:    req.SkillLevel,
		WalletAddress: strings.ToLower(req.WalletAddress),
		ENSName:       req.ENSName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode attestation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/attestations/skills", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build attestation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAttesterUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		a.logger.Warn("Skill attestation refused", "status", resp.StatusCode, "skill", req.SkillName)
		return nil, fmt.Errorf("%w: status %d", ErrAttestationRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d", ErrAttesterUnavailable, resp.StatusCode)
	}

	var out attestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %w", ErrAttesterUnavailable, err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrAttesterUnavailable, out.Confidence)
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}

	return &VerificationResult{
		SkillName:  req.SkillName,
		SkillLevel: req.SkillLevel,
		Verified:   out.Verified,
		Confidence: out.Confidence,
		Method:     out.VerificationMethod,
		Timestamp:  out.Timestamp,
		Proof:      out.Proof,
	}, nil
}
