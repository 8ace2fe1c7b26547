package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/welldanyogia/colancer-registry/internal/api"
	"github.com/welldanyogia/colancer-registry/internal/metrics"
	"github.com/welldanyogia/colancer-registry/internal/repository"
)

// DefaultBatchConcurrency bounds concurrent attester calls in BatchVerify
const DefaultBatchConcurrency = 4

// Repository stores verification results
type Repository interface {
	Create(ctx context.Context, v *repository.SkillVerification) error
	ListByWallet(ctx context.Context, wallet string, limit int) ([]repository.SkillVerification, error)
}

// Service verifies skills and records the outcome
type Service struct {
	attester    Attester
	repo        Repository
	concurrency int
	logger      *slog.Logger
}

// ServiceConfig contains configuration for the skills Service
type ServiceConfig struct {
	Attester    Attester
	Repository  Repository
	Concurrency int // default: DefaultBatchConcurrency
	Logger      *slog.Logger
}

// NewService creates a new skills Service
func NewService(cfg ServiceConfig) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultBatchConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		attester:    cfg.Attester,
		repo:        cfg.Repository,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Verify attests a single skill and stores the result
func (s *Service) Verify(ctx context.Context, req VerificationRequest) (*VerificationResult, error) {
	req.SkillName = strings.TrimSpace(req.SkillName)
	req.SkillLevel = strings.ToLower(strings.TrimSpace(req.SkillLevel))
	if details := api.Validate(req); details != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, details)
	}

	result, err := s.attester.Attest(ctx, req)
	if err != nil {
		metrics.SkillVerificationsTotal.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}

	record := &repository.SkillVerification{
		WalletAddress: req.WalletAddress,
		SkillName:     result.SkillName,
		SkillLevel:    result.SkillLevel,
		Verified:      result.Verified,
		Confidence:    result.Confidence,
		Method:        result.Method,
		Proof:         result.Proof,
		VerifiedAt:    result.Timestamp,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store skill verification: %w", err)
	}

	if result.Verified {
		metrics.SkillVerificationsTotal.WithLabelValues("verified").Inc()
	} else {
		metrics.SkillVerificationsTotal.WithLabelValues("unverified").Inc()
	}

	s.logger.Info("Skill verified",
		"wallet", strings.ToLower(req.WalletAddress),
		"skill", result.SkillName,
		"verified", result.Verified,
		"method", result.Method,
	)
	return result, nil
}

// BatchVerify verifies several skills with bounded concurrency. Results are
// in request order; the first failure cancels the remaining calls.
func (s *Service) BatchVerify(ctx context.Context, reqs []VerificationRequest) ([]VerificationResult, error) {
	if len(reqs) == 0 {
		return nil, ErrInvalidRequest
	}
	if len(reqs) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	results := make([]VerificationResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Verify(gctx, req)
			if err != nil {
				return fmt.Errorf("skill %q: %w", req.SkillName, err)
			}
			results[i] = *res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// History returns a wallet's stored results, newest first
func (s *Service) History(ctx context.Context, wallet string, limit int) ([]VerificationResult, error) {
	records, err := s.repo.ListByWallet(ctx, wallet, limit)
	if err != nil {
		return nil, err
	}

	out := make([]VerificationResult, 0, len(records))
	for _, r := range records {
		out = append(out, VerificationResult{
			SkillName:  r.SkillName,
			SkillLevel: r.SkillLevel,
			Verified:   r.Verified,
			Confidence: r.Confidence,
			Method:     r.Method,
			Timestamp:  r.VerifiedAt,
			Proof:      r.Proof,
		})
	}
	return out, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrAttestationRejected):
		return "rejected"
	case errors.Is(err, ErrAttesterUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
