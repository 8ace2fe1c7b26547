package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionNotFound is returned when no session matches
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository stores wallet refresh sessions in PostgreSQL
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a session
func (r *SessionRepository) Create(ctx context.Context, s *WalletSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.WalletAddress = strings.ToLower(s.WalletAddress)

	err := r.pool.QueryRow(ctx, `
		INSERT INTO wallet_sessions (id, wallet_address, subdomain, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		s.ID, s.WalletAddress, s.Subdomain, s.TokenHash, s.ExpiresAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a session by the hash of its refresh token
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*WalletSession, error) {
	s := &WalletSession{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, wallet_address, subdomain, token_hash, expires_at, created_at
		FROM wallet_sessions
		WHERE token_hash = $1`,
		tokenHash,
	).Scan(&s.ID, &s.WalletAddress, &s.Subdomain, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Delete removes a session by ID
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM wallet_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpired removes sessions past their expiry and returns how many went
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM wallet_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
