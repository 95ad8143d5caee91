// Package usecase implements authentication: password login with lockout and
// risk assessment, MFA challenges, JWT issuance, refresh rotation with replay
// detection, session management, and step-up elevation.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	authDomain "github.com/allisson/usp/internal/auth/domain"
	authService "github.com/allisson/usp/internal/auth/service"
)

// UserRepository defines user persistence operations.
type UserRepository interface {
	Create(ctx context.Context, user *authDomain.User) error
	GetByUsername(ctx context.Context, username string) (*authDomain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*authDomain.User, error)
	Update(ctx context.Context, user *authDomain.User) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// SessionRepository defines session persistence operations.
type SessionRepository interface {
	Create(ctx context.Context, session *authDomain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*authDomain.Session, error)
	GetByRefreshTokenHash(ctx context.Context, refreshTokenHash string) (*authDomain.Session, error)
	Update(ctx context.Context, session *authDomain.Session) error
	ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*authDomain.Session, error)
	RevokeAllByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// MfaRepository defines MFA enrollment and challenge persistence.
type MfaRepository interface {
	UpsertEnrollment(ctx context.Context, enrollment *authDomain.MfaEnrollment) error
	GetEnrollment(ctx context.Context, userID uuid.UUID) (*authDomain.MfaEnrollment, error)
	CreateChallenge(ctx context.Context, challenge *authDomain.MfaChallenge) error
	GetChallengeByTokenHash(ctx context.Context, tokenHash string) (*authDomain.MfaChallenge, error)
	GetActiveStepUp(ctx context.Context, userID uuid.UUID, resourcePath string, now time.Time) (*authDomain.MfaChallenge, error)
	UpdateChallenge(ctx context.Context, challenge *authDomain.MfaChallenge) error
	DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

// DeviceRepository tracks device fingerprints per user.
type DeviceRepository interface {
	Seen(ctx context.Context, userID uuid.UUID, fingerprint string) (bool, error)
	Remember(ctx context.Context, userID uuid.UUID, fingerprint string, seenAt time.Time) error
}

// RoleProvider resolves a user's role names for JWT claims. Implemented by
// the policy module.
type RoleProvider interface {
	RoleNames(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// Config tunes login and session behavior.
type Config struct {
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	LockoutThreshold      uint
	LockoutCooldown       time.Duration
	MaxConcurrentSessions int
	RotateRefreshTokens   bool
	// MfaRiskThreshold is the risk score at or above which an enrolled user
	// must complete MFA. Zero requires MFA on every enrolled login.
	MfaRiskThreshold uint
	// DenyRiskThreshold is the risk score at or above which login is denied
	// outright.
	DenyRiskThreshold uint
}

// LoginInput carries everything a login attempt provides.
type LoginInput struct {
	Username string
	Password string
	Attempt  authDomain.LoginAttempt
	// UserAgent is stored on the session; it is not a risk signal.
	UserAgent string
}

// TokenPair is an issued access/refresh token pair bound to a session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	SessionID    uuid.UUID
}

// LoginResult is the outcome of Login or VerifyMfa. Exactly one of
// MfaRequired or Tokens is meaningful; for step-up verification both are
// empty and StepUpSatisfied is set.
type LoginResult struct {
	MfaRequired     bool
	ChallengeToken  string
	Methods         []authDomain.MfaMethod
	StepUpSatisfied bool
	Risk            authDomain.RiskAssessment
	Tokens          *TokenPair
}

// AuthUseCase is the authentication engine.
type AuthUseCase interface {
	// Login authenticates username/password, assesses risk, and either
	// issues tokens or returns an MFA challenge.
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)

	// VerifyMfa answers a pending challenge with one factor. Any accepted
	// factor completes the challenge; login challenges then issue tokens.
	VerifyMfa(ctx context.Context, challengeToken string, method authDomain.MfaMethod, proof string) (*LoginResult, error)

	// SendOtp generates and delivers a single-use numeric code for a pending
	// challenge, extending the challenge to the OTP lifetime.
	SendOtp(ctx context.Context, challengeToken string) error

	// Refresh exchanges a refresh token for a new access token, rotating the
	// refresh token when configured. A replayed refresh token revokes every
	// session of the user.
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)

	// Logout revokes the presented session, or all of the user's sessions
	// when everywhere is set.
	Logout(ctx context.Context, accessToken string, everywhere bool) error

	// Authenticate validates an access token against its session and returns
	// the token claims.
	Authenticate(ctx context.Context, accessToken string) (*authService.AccessTokenClaims, error)

	// StartStepUp opens a step-up challenge for an elevated resource.
	StartStepUp(ctx context.Context, userID uuid.UUID, resourcePath string) (string, error)

	// StepUpActive reports whether the user holds a completed unexpired
	// step-up for the resource.
	StepUpActive(ctx context.Context, userID uuid.UUID, resourcePath string) (bool, error)

	// CleanExpired removes expired sessions and challenges, returning counts.
	CleanExpired(ctx context.Context, before time.Time) (sessions int64, challenges int64, err error)
}

// CreateUserInput carries the fields for user provisioning.
type CreateUserInput struct {
	Username   string
	Name       string
	Email      string
	GivenName  string
	FamilyName string
	Password   string
}

// UserUseCase manages user accounts and MFA enrollment.
type UserUseCase interface {
	Create(ctx context.Context, input CreateUserInput) (*authDomain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*authDomain.User, error)
	GetByUsername(ctx context.Context, username string) (*authDomain.User, error)
	Delete(ctx context.Context, userID uuid.UUID) error

	// ChangePassword verifies the current password before setting a new one.
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error

	// EnrollTotp provisions a TOTP secret, stores it barrier-encrypted, and
	// returns the plain secret once for the authenticator app.
	EnrollTotp(ctx context.Context, userID uuid.UUID) (string, error)

	// GenerateBackupCodes replaces the user's backup codes and returns the
	// plain codes once.
	GenerateBackupCodes(ctx context.Context, userID uuid.UUID, count int) ([]string, error)

	// SetOtpDestination registers the SMS/email destination for OTP delivery.
	SetOtpDestination(ctx context.Context, userID uuid.UUID, destination string) error
}
