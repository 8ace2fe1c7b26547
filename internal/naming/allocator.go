// Package naming derives subdomain labels for registered wallets and allocates
// the first free one against an external availability oracle.
package naming

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Prefix is prepended to every derived label
	Prefix = "user"
	// SliceStart skips the "0x" marker of hex inputs
	SliceStart = 2
	// SliceLength is the number of characters taken from each input
	SliceLength = 6
	// MinInputLength is the shortest identity or entropy string accepted
	MinInputLength = SliceStart + SliceLength

	// DefaultMaxAttempts bounds the suffix search when the caller passes zero
	DefaultMaxAttempts = 10
)

// Allocation errors
var (
	ErrInvalidInput       = errors.New("invalid allocation input")
	ErrMalformedCandidate = errors.New("derived candidate is malformed")
	ErrOracleUnavailable  = errors.New("availability oracle unavailable")
	ErrExhausted          = errors.New("all candidates are taken")
)

// Oracle reports whether a label can still be registered.
// Implementations may be slow or eventually consistent.
type Oracle interface {
	IsAvailable(ctx context.Context, label string) (bool, error)
}

// OracleFunc adapts a plain function to the Oracle interface
type OracleFunc func(ctx context.Context, label string) (bool, error)

// IsAvailable calls f(ctx, label)
func (f OracleFunc) IsAvailable(ctx context.Context, label string) (bool, error) {
	return f(ctx, label)
}

// DeriveBaseCandidate builds the zero-suffix candidate from an identity token
// (wallet address) and proof entropy (merkle root):
//
//	"user" + identity[2:8] + entropy[2:8]
//
// The result is lowercased. It has no side effects.
func DeriveBaseCandidate(identity, entropy string) (string, error) {
	if len(identity) < MinInputLength {
		return "", fmt.Errorf("%w: identity must be at least %d characters", ErrInvalidInput, MinInputLength)
	}
	if len(entropy) < MinInputLength {
		return "", fmt.Errorf("%w: proof entropy must be at least %d characters", ErrInvalidInput, MinInputLength)
	}

	var b strings.Builder
	b.Grow(len(Prefix) + 2*SliceLength)
	b.WriteString(Prefix)
	b.WriteString(identity[SliceStart:MinInputLength])
	b.WriteString(entropy[SliceStart:MinInputLength])
	return strings.ToLower(b.String()), nil
}

// Allocator searches base, base1, base2, ... until the oracle reports a free label.
// It holds no state between calls.
type Allocator struct {
	oracle Oracle
}

// NewAllocator creates an Allocator that probes the given oracle
func NewAllocator(oracle Oracle) *Allocator {
	return &Allocator{oracle: oracle}
}

// Allocate returns the first available candidate. maxAttempts counts every
// probe including the base candidate.
//
// Probes are issued one at a time. An oracle error stops the search with
// ErrOracleUnavailable instead of being treated as "taken".
func (a *Allocator) Allocate(ctx context.Context, identity, entropy string, maxAttempts int) (string, error) {
	base, err := DeriveBaseCandidate(identity, entropy)
	if err != nil {
		return "", err
	}
	if !IsValidFormat(base) {
		return "", fmt.Errorf("%w: %q", ErrMalformedCandidate, base)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate := Candidate(base, attempt)
		// a suffix can push a 63-char base over the limit
		if !IsValidFormat(candidate) {
			return "", fmt.Errorf("%w: %q", ErrMalformedCandidate, candidate)
		}

		available, err := a.oracle.IsAvailable(ctx, candidate)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if err != nil {
			return "", fmt.Errorf("%w: probing %q: %w", ErrOracleUnavailable, candidate, err)
		}
		if available {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %d candidates starting at %q", ErrExhausted, maxAttempts, base)
}

// Candidate returns the n-th candidate in the search sequence.
// n == 0 is the base itself.
func Candidate(base string, n int) string {
	if n == 0 {
		return base
	}
	return base + strconv.Itoa(n)
}
