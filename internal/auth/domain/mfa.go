package domain

import (
	"time"

	"github.com/google/uuid"
)

// MfaMethod identifies a second factor.
type MfaMethod string

const (
	MfaMethodTotp        MfaMethod = "totp"
	MfaMethodOtp         MfaMethod = "otp"
	MfaMethodWebauthn    MfaMethod = "webauthn"
	MfaMethodBackupCode  MfaMethod = "backup-code"
	MfaMethodHardwareOtp MfaMethod = "hardware-otp"
	MfaMethodPush        MfaMethod = "push"
)

// ChallengeTTL bounds how long a login challenge stays answerable.
const ChallengeTTL = 5 * time.Minute

// OtpTTL is the lifetime of a delivered SMS/email one-time code.
const OtpTTL = 10 * time.Minute

// StepUpTTL is how long a completed step-up remains satisfied.
const StepUpTTL = 10 * time.Minute

// ChallengePurpose distinguishes login MFA from step-up elevation.
type ChallengePurpose string

const (
	PurposeLogin  ChallengePurpose = "login"
	PurposeStepUp ChallengePurpose = "stepup"
)

// MfaEnrollment holds a user's registered second factors. The TOTP secret is
// stored barrier-encrypted; backup codes are stored as SHA-256 hex hashes and
// removed once used.
type MfaEnrollment struct {
	UserID              uuid.UUID
	EncryptedTotpSecret string
	BackupCodeHashes    []string
	OtpDestination      string
	UpdatedAt           time.Time
}

// TotpEnrolled reports whether a TOTP secret has been registered.
func (e *MfaEnrollment) TotpEnrolled() bool {
	return e != nil && e.EncryptedTotpSecret != ""
}

// MfaChallenge is a pending second-factor requirement, created at login when
// MFA is required or explicitly for step-up. The challenge token handed to
// the caller is stored hashed. A completed step-up challenge doubles as the
// active step-up session until ExpiresAt.
type MfaChallenge struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Purpose      ChallengePurpose
	ResourcePath string
	TokenHash    string
	OtpHash      string
	IPAddress    string
	UserAgent    string
	CompletedAt  *time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Completed reports whether a factor already satisfied this challenge.
func (c *MfaChallenge) Completed() bool {
	return c.CompletedAt != nil
}

// Expired reports whether the challenge window has closed.
func (c *MfaChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
