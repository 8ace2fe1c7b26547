package repository

import (
	"time"

	"github.com/google/uuid"
)

// Subdomain represents a reserved name under the parent domain
type Subdomain struct {
	ID            uuid.UUID `db:"id"`
	Label         string    `db:"label"`
	FullName      string    `db:"full_name"`
	Node          string    `db:"node"`
	OwnerAddress  string    `db:"owner_address"`
	NullifierHash string    `db:"nullifier_hash"`
	Description   *string   `db:"description"`
	URL           *string   `db:"url"`
	AvatarKey     *string   `db:"avatar_key"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// SkillVerification represents a stored skill attestation result
type SkillVerification struct {
	ID            uuid.UUID `db:"id"`
	WalletAddress string    `db:"wallet_address"`
	SkillName     string    `db:"skill_name"`
	SkillLevel    string    `db:"skill_level"`
	Verified      bool      `db:"verified"`
	Confidence    float64   `db:"confidence"`
	Method        string    `db:"method"`
	Proof         *string   `db:"proof"`
	VerifiedAt    time.Time `db:"verified_at"`
}

// WalletSession is a refresh session stored by token hash
type WalletSession struct {
	ID            uuid.UUID `db:"id"`
	WalletAddress string    `db:"wallet_address"`
	Subdomain     string    `db:"subdomain"`
	TokenHash     string    `db:"token_hash"`
	ExpiresAt     time.Time `db:"expires_at"`
	CreatedAt     time.Time `db:"created_at"`
}
