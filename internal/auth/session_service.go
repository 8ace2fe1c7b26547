package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/colancer-registry/internal/repository"
)

// Session errors
var (
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

// SessionRepository stores refresh sessions by token hash
type SessionRepository interface {
	Create(ctx context.Context, s *repository.WalletSession) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*repository.WalletSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Session is what a wallet receives when a session is opened or renewed
type Session struct {
	ID               uuid.UUID `json:"-"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SessionService opens, rotates and revokes wallet sessions
type SessionService struct {
	tokens *TokenService
	repo   SessionRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(tokens *TokenService, repo SessionRepository, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		tokens: tokens,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Open issues a token pair for the wallet and stores the refresh session
func (s *SessionService) Open(ctx context.Context, wallet, subdomain string) (*Session, error) {
	pair, err := s.tokens.IssuePair(wallet, subdomain)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	row := &repository.WalletSession{
		ID:            uuid.New(),
		WalletAddress: strings.ToLower(wallet),
		Subdomain:     subdomain,
		TokenHash:     HashRefreshToken(pair.RefreshToken),
		ExpiresAt:     pair.RefreshExpiresAt,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return &Session{
		ID:               row.ID,
		AccessToken:      pair.Token,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresAt:        pair.ExpiresAt,
		ExpiresIn:        pair.ExpiresIn,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// Revoke deletes a session. An already missing session is not an error.
func (s *SessionService) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	return nil
}

// Refresh exchanges a refresh token for a new pair. The old session is
// deleted first so each refresh token works once.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, session, err := s.lookup(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Delete(ctx, session.ID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			// Lost a race with a concurrent refresh of the same token
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	return s.Open(ctx, claims.Wallet(), session.Subdomain)
}

// Logout revokes the session behind refreshToken, which must belong to wallet
func (s *SessionService) Logout(ctx context.Context, wallet, refreshToken string) error {
	claims, session, err := s.lookup(ctx, refreshToken)
	if err != nil {
		return err
	}
	if !strings.EqualFold(claims.Wallet(), wallet) {
		return ErrInvalidRefreshToken
	}
	return s.Revoke(ctx, session.ID)
}

// lookup validates the token and loads its live session
func (s *SessionService) lookup(ctx context.Context, refreshToken string) (*Claims, *repository.WalletSession, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, nil, ErrInvalidRefreshToken
	}

	session, err := s.repo.GetByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil, ErrInvalidRefreshToken
		}
		return nil, nil, err
	}

	if s.now().After(session.ExpiresAt) {
		_ = s.repo.Delete(ctx, session.ID)
		return nil, nil, ErrInvalidRefreshToken
	}
	if !strings.EqualFold(session.WalletAddress, claims.Wallet()) {
		return nil, nil, ErrInvalidRefreshToken
	}
	return claims, session, nil
}

// StartCleanup deletes expired sessions every interval until stop is closed
func (s *SessionService) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.cleanup()
			case <-stop:
				return
			}
		}
	}()
}

func (s *SessionService) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		s.logger.Error("Failed to delete expired sessions", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Deleted expired sessions", "count", n)
	}
}
