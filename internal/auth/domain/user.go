// Package domain defines the authentication domain: users, sessions, MFA
// enrollments and challenges, and login risk assessment.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/usp/internal/errors"
)

// User is an authenticatable principal. Roles are resolved by the policy
// layer; the fields here carry only what token issuance and the risk engine
// need.
type User struct {
	ID                  uuid.UUID
	Username            string
	Name                string
	Email               string
	GivenName           string
	FamilyName          string
	PasswordHash        string
	FailedLoginAttempts uint
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         string
	LastLoginCountry    string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the user is currently locked out.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// NormalizeUsername lowercases and trims a username for lookup.
func NormalizeUsername(username string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(username))
	if normalized == "" {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, "username is required")
	}
	return normalized, nil
}
