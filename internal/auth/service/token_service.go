package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	apperrors "github.com/allisson/usp/internal/errors"
)

// tokenService implements TokenService using SHA-256 for token hashing.
type tokenService struct{}

// NewTokenService creates a TokenService for opaque challenge and refresh
// tokens.
func NewTokenService() TokenService {
	return &tokenService{}
}

func (t *tokenService) GenerateToken() (string, string, error) {
	return t.generate(32)
}

// GenerateRefreshToken produces a 64-byte token; twice the entropy of a
// challenge token since refresh tokens are long-lived.
func (t *tokenService) GenerateRefreshToken() (string, string, error) {
	return t.generate(64)
}

func (t *tokenService) generate(size int) (string, string, error) {
	randomBytes := make([]byte, size)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", apperrors.Wrap(err, "failed to generate random token")
	}

	plain := base64.URLEncoding.EncodeToString(randomBytes)
	return plain, t.HashToken(plain), nil
}

// HashToken hashes a plain text token using SHA-256. Returns the hash as a
// hexadecimal string.
func (t *tokenService) HashToken(plain string) string {
	hash := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(hash[:])
}
