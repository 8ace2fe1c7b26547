// Package identity validates and verifies proof-of-personhood proofs and
// tracks which proofs have already been spent on a registration.
package identity

import (
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Identity errors
var (
	ErrInvalidProof        = errors.New("invalid proof format")
	ErrSignalMismatch      = errors.New("proof signal does not match wallet")
	ErrProofRejected       = errors.New("proof rejected by verifier")
	ErrVerifierUnavailable = errors.New("proof verifier unavailable")
	ErrProofAlreadyUsed    = errors.New("proof already used")
)

// SignalPrefix is prepended to the lowercased wallet to form the registration signal
const SignalPrefix = "register_"

// Merkle roots and nullifier hashes are field elements: 0x plus 64 hex digits
var fieldElementRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Proof is a zero-knowledge proof of personhood as produced by the World ID widget
type Proof struct {
	MerkleRoot     string `json:"merkle_root" validate:"required"`
	NullifierHash  string `json:"nullifier_hash" validate:"required"`
	Proof          string `json:"proof" validate:"required"`
	CredentialType string `json:"credential_type" validate:"required"`
	Action         string `json:"action" validate:"required"`
	Signal         string `json:"signal" validate:"required"`
}

// ValidateProof checks that every field is present and the hash fields are
// 32-byte 0x hex values
func ValidateProof(p Proof) error {
	if p.MerkleRoot == "" || p.NullifierHash == "" || p.Proof == "" ||
		p.CredentialType == "" || p.Action == "" || p.Signal == "" {
		return ErrInvalidProof
	}
	if !fieldElementRegex.MatchString(p.MerkleRoot) || !fieldElementRegex.MatchString(p.NullifierHash) {
		return ErrInvalidProof
	}
	return nil
}

// Signal returns the signal a wallet must bind into its registration proof
func Signal(wallet string) string {
	return SignalPrefix + strings.ToLower(wallet)
}

// CheckSignal verifies the proof was generated for this wallet
func CheckSignal(p Proof, wallet string) error {
	if p.Signal != Signal(wallet) {
		return ErrSignalMismatch
	}
	return nil
}

// SignalHash maps a signal onto the proof field the way the World ID SDK does:
// keccak256 of the UTF-8 bytes shifted right by 8 bits, as 0x plus 64 hex digits.
func SignalHash(signal string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signal))
	digest := h.Sum(nil)

	var field [32]byte
	copy(field[1:], digest[:31])
	return "0x" + hex.EncodeToString(field[:])
}
