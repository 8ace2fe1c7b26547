package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SkillRepository stores skill attestation results using sqlx
type SkillRepository struct {
	db *sqlx.DB
}

// NewSkillRepository creates a new SkillRepository instance
func NewSkillRepository(db *sqlx.DB) *SkillRepository {
	return &SkillRepository{db: db}
}

// Create inserts a verification result
func (r *SkillRepository) Create(ctx context.Context, v *SkillVerification) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.VerifiedAt.IsZero() {
		v.VerifiedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO skill_verifications (id, wallet_address, skill_name, skill_level, verified, confidence, method, proof, verified_at)
		VALUES (:id, LOWER(:wallet_address), :skill_name, :skill_level, :verified, :confidence, :method, :proof, :verified_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("failed to create skill verification: %w", err)
	}
	return nil
}

// ListByWallet returns verification results for a wallet, newest first
func (r *SkillRepository) ListByWallet(ctx context.Context, wallet string, limit int) ([]SkillVerification, error) {
	if limit < 1 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, wallet_address, skill_name, skill_level, verified, confidence, method, proof, verified_at
		FROM skill_verifications
		WHERE wallet_address = LOWER($1)
		ORDER BY verified_at DESC
		LIMIT $2
	`

	var result []SkillVerification
	if err := r.db.SelectContext(ctx, &result, query, wallet, limit); err != nil {
		return nil, fmt.Errorf("failed to list skill verifications: %w", err)
	}
	return result, nil
}
