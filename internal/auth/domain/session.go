package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is a persisted authentication session. Only hashes of the access
// and refresh tokens are stored.
type Session struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	TokenHash        string
	RefreshTokenHash string
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	LastActivity     time.Time
	Revoked          bool
}

// Usable reports whether the session can still authenticate requests.
func (s *Session) Usable(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
