// Package skills verifies freelancer skill claims against an attestation
// provider and keeps a per-wallet history of the results.
package skills

import (
	"errors"
	"time"
)

// Skill errors
var (
	ErrInvalidRequest      = errors.New("invalid skill verification request")
	ErrBatchTooLarge       = errors.New("too many skills in batch")
	ErrAttesterUnavailable = errors.New("skill attester unavailable")
	ErrAttestationRejected = errors.New("skill attestation rejected")
)

// Skill levels
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelExpert       = "expert"
)

// MaxBatchSize bounds a single batch verification
const MaxBatchSize = 20

// VerificationRequest asks the attester to vouch for one skill
type VerificationRequest struct {
	SkillName     string `json:"skill_name" validate:"required,max=64"`
	SkillLevel    string `json:"skill_level" validate:"required,oneof=beginner intermediate advanced expert"`
	WalletAddress string `json:"wallet_address" validate:"required,eth_addr"`
	ENSName       string `json:"ens_name,omitempty" validate:"omitempty,max=255"`
}

// VerificationResult is the attester's verdict on one skill
type VerificationResult struct {
	SkillName  string    `json:"skill_name"`
	SkillLevel string    `json:"skill_level"`
	Verified   bool      `json:"verified"`
	Confidence float64   `json:"confidence"`
	Method     string    `json:"verification_method"`
	Timestamp  time.Time `json:"timestamp"`
	Proof      *string   `json:"proof,omitempty"`
}

// SkillInput is the body of a verify call; wallet and name come from the session
type SkillInput struct {
	SkillName  string `json:"skill_name" validate:"required,max=64"`
	SkillLevel string `json:"skill_level" validate:"required,oneof=beginner intermediate advanced expert"`
}

// BatchInput is the body of a batch verify call
type BatchInput struct {
	Skills []SkillInput `json:"skills" validate:"required,min=1,max=20,dive"`
}
