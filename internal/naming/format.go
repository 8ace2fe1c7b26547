package naming

import (
	"strconv"
	"strings"
)

const (
	// MinLength is the shortest label accepted
	MinLength = 3
	// MaxLength is the longest label accepted (DNS label limit)
	MaxLength = 63
)

// defaultSuggestions are offered when no user name is given
var defaultSuggestions = []string{"freelancer", "developer", "designer", "consultant"}

// IsValidFormat reports whether label is a usable subdomain label.
// Checks run in order and stop at the first violation:
// length, alphabet [a-z0-9-], edge hyphens, consecutive hyphens.
func IsValidFormat(label string) bool {
	if len(label) < MinLength || len(label) > MaxLength {
		return false
	}

	for i := 0; i < len(label); i++ {
		if !isLabelByte(label[i]) {
			return false
		}
	}

	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}

	return !strings.Contains(label, "--")
}

func isLabelByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-'
}

// Suggestions proposes labels derived from a display name.
// Only candidates that pass IsValidFormat are returned.
func Suggestions(userName string, year int) []string {
	if userName == "" {
		out := make([]string, len(defaultSuggestions))
		copy(out, defaultSuggestions)
		return out
	}

	clean := cleanName(userName)
	candidates := []string{
		clean,
		clean + "dev",
		clean + "pro",
		clean + strconv.Itoa(year),
		clean + "work",
	}

	suggestions := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if IsValidFormat(c) {
			suggestions = append(suggestions, c)
		}
	}
	return suggestions
}

// cleanName lowercases s and drops everything outside [a-z0-9]
func cleanName(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}
