// Package service provides authentication building blocks: Argon2id password
// hashing, JWT signing, opaque token generation, TOTP validation, and the
// login risk engine.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	authDomain "github.com/allisson/usp/internal/auth/domain"
)

// PasswordService hashes and verifies user passwords.
type PasswordService interface {
	Hash(plain string) (string, error)
	// Compare is constant-time; it returns false for malformed hashes.
	Compare(plain, hash string) bool
}

// TokenService generates opaque tokens and their storage hashes.
type TokenService interface {
	// GenerateToken returns a random URL-safe token and its SHA-256 hex hash.
	GenerateToken() (plain string, hash string, err error)
	// GenerateRefreshToken returns a 64-byte base64url refresh token and its
	// SHA-256 hex hash.
	GenerateRefreshToken() (plain string, hash string, err error)
	HashToken(plain string) string
}

// AccessTokenClaims is the profile carried in issued JWTs.
type AccessTokenClaims struct {
	UserID     uuid.UUID
	Name       string
	Email      string
	GivenName  string
	FamilyName string
	Roles      []string
}

// JwtService signs and parses access tokens.
type JwtService interface {
	// Sign issues a token expiring at now+ttl and returns it with its jti.
	Sign(claims AccessTokenClaims, ttl time.Duration) (token string, jti string, err error)
	// Parse validates signature and expiry and returns the claims.
	Parse(token string) (*AccessTokenClaims, error)
}

// TotpService validates RFC 6238 codes and provisions new secrets.
type TotpService interface {
	GenerateSecret(accountName string) (string, error)
	// Validate accepts codes from the current 30s step plus one step of skew
	// in either direction.
	Validate(code, secret string, at time.Time) bool
}

// RiskEngine scores a login attempt against the user's history. Pure; all
// inputs arrive as arguments.
type RiskEngine interface {
	Assess(user *authDomain.User, attempt authDomain.LoginAttempt, knownDevice bool) authDomain.RiskAssessment
}

// OtpSender delivers short-lived numeric codes out of band (SMS or email).
type OtpSender interface {
	Send(ctx context.Context, destination, code string) error
}

// Delegated factor providers. When a provider is not configured the use case
// rejects the factor with ErrNotSupported.
type (
	// WebauthnVerifier validates a WebAuthn assertion for a user.
	WebauthnVerifier interface {
		VerifyAssertion(ctx context.Context, userID uuid.UUID, assertion []byte) (bool, error)
	}

	// HardwareOtpVerifier validates a hardware token code.
	HardwareOtpVerifier interface {
		VerifyCode(ctx context.Context, userID uuid.UUID, code string) (bool, error)
	}

	// PushApprover confirms a push-notification approval.
	PushApprover interface {
		Confirm(ctx context.Context, userID uuid.UUID, challengeID uuid.UUID) (bool, error)
	}
)
