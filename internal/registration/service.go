// Package registration turns a verified proof of personhood into a reserved
// subdomain and a wallet session.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/colancer-registry/internal/api"
	"github.com/welldanyogia/colancer-registry/internal/auth"
	"github.com/welldanyogia/colancer-registry/internal/identity"
	"github.com/welldanyogia/colancer-registry/internal/metrics"
	"github.com/welldanyogia/colancer-registry/internal/naming"
	"github.com/welldanyogia/colancer-registry/internal/registry"
)

// ErrInvalidRequest wraps request validation failures
var ErrInvalidRequest = errors.New("invalid registration request")

// Registry is the subset of registry.Service the flow depends on
type Registry interface {
	naming.Oracle
	Reserve(ctx context.Context, r registry.Reservation) (*registry.SubdomainInfo, error)
	ParentDomain() string
}

// Sessions opens and revokes wallet sessions
type Sessions interface {
	Open(ctx context.Context, wallet, subdomain string) (*auth.Session, error)
	Revoke(ctx context.Context, id uuid.UUID) error
}

// Request is the body of a registration call
type Request struct {
	WalletAddress string           `json:"wallet_address" validate:"required,eth_addr"`
	Proof         identity.Proof   `json:"proof" validate:"required"`
	Records       registry.Records `json:"records"`
}

// Result describes a completed registration
type Result struct {
	Label            string    `json:"label"`
	FullName         string    `json:"full_name"`
	Node             string    `json:"node"`
	Owner            string    `json:"owner"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// PreviewRequest asks which label a registration would receive right now
type PreviewRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required,eth_addr"`
	MerkleRoot    string `json:"merkle_root" validate:"required,len=66,startswith=0x,hexadecimal"`
}

// Preview is the label a registration would receive right now
type Preview struct {
	Label    string `json:"label"`
	FullName string `json:"full_name"`
	Node     string `json:"node"`
}

// Service runs the registration flow
type Service struct {
	verifier    identity.Verifier
	nullifiers  identity.NullifierStore
	registry    Registry
	sessions    Sessions
	maxAttempts int
	logger      *slog.Logger
}

// ServiceConfig contains configuration for the registration Service
type ServiceConfig struct {
	Verifier    identity.Verifier
	Nullifiers  identity.NullifierStore
	Registry    Registry
	Sessions    Sessions
	MaxAttempts int // default: naming.DefaultMaxAttempts
	Logger      *slog.Logger
}

// NewService creates a new registration Service
func NewService(cfg ServiceConfig) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = naming.DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		verifier:    cfg.Verifier,
		nullifiers:  cfg.Nullifiers,
		registry:    cfg.Registry,
		sessions:    cfg.Sessions,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
	}
}

// Register verifies the proof, allocates a label and reserves it for the wallet.
// The nullifier is claimed before allocation and released if no reservation
// is made, so a failed attempt can be retried with the same proof. The session
// is opened before the reservation and revoked if the reservation fails, so
// nothing can fail once the label is taken.
func (s *Service) Register(ctx context.Context, req Request) (result *Result, err error) {
	defer func() { metrics.RegistrationsTotal.WithLabelValues(resultLabel(err)).Inc() }()

	if details := api.Validate(req); details != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, details)
	}
	if err := identity.ValidateProof(req.Proof); err != nil {
		return nil, err
	}
	if err := identity.CheckSignal(req.Proof, req.WalletAddress); err != nil {
		return nil, err
	}

	if err := s.verifier.Verify(ctx, req.Proof); err != nil {
		return nil, err
	}

	claimed, err := s.nullifiers.Claim(ctx, req.Proof.NullifierHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", identity.ErrVerifierUnavailable, err)
	}
	if !claimed {
		return nil, identity.ErrProofAlreadyUsed
	}

	label, err := s.allocate(ctx, req.WalletAddress, req.Proof.MerkleRoot, s.maxAttempts)
	if err != nil {
		s.release(req.Proof.NullifierHash)
		return nil, err
	}

	session, err := s.sessions.Open(ctx, req.WalletAddress, naming.FullName(label, s.registry.ParentDomain()))
	if err != nil {
		s.release(req.Proof.NullifierHash)
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	info, err := s.registry.Reserve(ctx, registry.Reservation{
		Label:         label,
		OwnerAddress:  req.WalletAddress,
		NullifierHash: req.Proof.NullifierHash,
		Records:       req.Records,
	})
	if err != nil {
		s.revoke(session.ID)
		// A nullifier already bound in the database stays claimed
		if errors.Is(err, registry.ErrNullifierUsed) {
			return nil, identity.ErrProofAlreadyUsed
		}
		s.release(req.Proof.NullifierHash)
		return nil, err
	}

	s.logger.Info("Registration completed",
		"label", info.Label,
		"owner", info.Owner,
	)

	return &Result{
		Label:            info.Label,
		FullName:         info.FullName,
		Node:             info.Node,
		Owner:            info.Owner,
		AccessToken:      session.AccessToken,
		RefreshToken:     session.RefreshToken,
		TokenType:        session.TokenType,
		ExpiresAt:        session.ExpiresAt,
		ExpiresIn:        session.ExpiresIn,
		RefreshExpiresAt: session.RefreshExpiresAt,
	}, nil
}

// Preview returns the label Register would allocate without reserving it.
// maxAttempts <= 0 uses the configured default.
func (s *Service) Preview(ctx context.Context, wallet, merkleRoot string, maxAttempts int) (*Preview, error) {
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}

	label, err := s.allocate(ctx, wallet, merkleRoot, maxAttempts)
	if err != nil {
		return nil, err
	}

	fullName := naming.FullName(label, s.registry.ParentDomain())
	return &Preview{
		Label:    label,
		FullName: fullName,
		Node:     naming.Namehash(fullName).Hex(),
	}, nil
}

// allocate runs the allocator against the registry and records the outcome
func (s *Service) allocate(ctx context.Context, wallet, merkleRoot string, maxAttempts int) (string, error) {
	attempts := 0
	oracle := naming.OracleFunc(func(ctx context.Context, label string) (bool, error) {
		attempts++
		return s.registry.IsAvailable(ctx, label)
	})

	label, err := naming.NewAllocator(oracle).Allocate(ctx, strings.ToLower(wallet), strings.ToLower(merkleRoot), maxAttempts)
	metrics.ObserveAllocation(allocationOutcome(err), attempts)
	if err != nil {
		if errors.Is(err, naming.ErrOracleUnavailable) {
			s.logger.Warn("Allocation aborted, registry unavailable", "attempts", attempts, "error", err)
		}
		return "", err
	}
	return label, nil
}

// release runs detached from the request so a cancelled client still frees the proof
func (s *Service) release(nullifier string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.nullifiers.Release(ctx, nullifier); err != nil {
		s.logger.Error("Failed to release nullifier", "error", err)
	}
}

// revoke drops a session whose reservation did not go through
func (s *Service) revoke(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sessions.Revoke(ctx, id); err != nil {
		s.logger.Error("Failed to revoke session", "error", err)
	}
}

func allocationOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeAllocated
	case errors.Is(err, naming.ErrExhausted):
		return metrics.OutcomeExhausted
	case errors.Is(err, naming.ErrOracleUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeInvalid
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "registered"
	case errors.Is(err, identity.ErrProofRejected):
		return "proof_rejected"
	case errors.Is(err, identity.ErrProofAlreadyUsed):
		return "proof_used"
	case errors.Is(err, naming.ErrExhausted), errors.Is(err, registry.ErrNameTaken):
		return "name_unavailable"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, identity.ErrInvalidProof),
		errors.Is(err, identity.ErrSignalMismatch), errors.Is(err, naming.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
