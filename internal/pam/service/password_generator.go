// Package service holds pure PAM services: password generation and
// suspicious-command detection.
package service

import (
	"crypto/rand"
	"math/big"

	apperrors "github.com/allisson/usp/internal/errors"
)

// Complexity states the composition rules a generated password satisfies.
type Complexity struct {
	Length     int
	MinUpper   int
	MinLower   int
	MinDigits  int
	MinSymbols int
}

// DefaultComplexity suits every supported platform.
var DefaultComplexity = Complexity{
	Length:     24,
	MinUpper:   2,
	MinLower:   2,
	MinDigits:  2,
	MinSymbols: 2,
}

const (
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	digitChars = "0123456789"
	// Symbols safe for SQL string literals and shell single quotes are
	// deliberately limited; no quotes, backslashes, or dollar signs.
	symbolChars = "!#%&*+-=?@^_~"
)

// PasswordGenerator produces random passwords meeting a complexity policy.
type PasswordGenerator struct {
	complexity Complexity
}

// NewPasswordGenerator creates a generator; zero-valued fields of the
// complexity fall back to the defaults.
func NewPasswordGenerator(complexity Complexity) (*PasswordGenerator, error) {
	if complexity.Length == 0 {
		complexity = DefaultComplexity
	}
	minTotal := complexity.MinUpper + complexity.MinLower + complexity.MinDigits + complexity.MinSymbols
	if complexity.Length < minTotal || complexity.Length < 8 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "password length too short for complexity policy")
	}
	return &PasswordGenerator{complexity: complexity}, nil
}

// Generate returns a fresh password satisfying the policy.
func (g *PasswordGenerator) Generate() (string, error) {
	required := make([]byte, 0, g.complexity.Length)

	for _, class := range []struct {
		chars string
		count int
	}{
		{upperChars, g.complexity.MinUpper},
		{lowerChars, g.complexity.MinLower},
		{digitChars, g.complexity.MinDigits},
		{symbolChars, g.complexity.MinSymbols},
	} {
		for i := 0; i < class.count; i++ {
			c, err := pick(class.chars)
			if err != nil {
				return "", err
			}
			required = append(required, c)
		}
	}

	all := upperChars + lowerChars + digitChars + symbolChars
	for len(required) < g.complexity.Length {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		required = append(required, c)
	}

	if err := shuffle(required); err != nil {
		return "", err
	}
	return string(required), nil
}

// Satisfies reports whether a password meets the policy. Used by rotation
// tests and by connectors validating externally supplied credentials.
func (g *PasswordGenerator) Satisfies(password string) bool {
	if len(password) < g.complexity.Length {
		return false
	}
	counts := map[string]int{}
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			counts["upper"]++
		case r >= 'a' && r <= 'z':
			counts["lower"]++
		case r >= '0' && r <= '9':
			counts["digit"]++
		default:
			counts["symbol"]++
		}
	}
	return counts["upper"] >= g.complexity.MinUpper &&
		counts["lower"] >= g.complexity.MinLower &&
		counts["digit"] >= g.complexity.MinDigits &&
		counts["symbol"] >= g.complexity.MinSymbols
}

func pick(chars string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read random bytes")
	}
	return chars[n.Int64()], nil
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return apperrors.Wrap(err, "failed to read random bytes")
		}
		j := n.Int64()
		b[i], b[j] = b[j], b[i]
	}
	return nil
}
