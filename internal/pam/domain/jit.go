package domain

import (
	"time"

	"github.com/google/uuid"
)

// JitStatus is the lifecycle of a just-in-time grant.
type JitStatus string

const (
	JitPending JitStatus = "pending"
	JitActive  JitStatus = "active"
	JitDenied  JitStatus = "denied"
	JitExpired JitStatus = "expired"
	JitRevoked JitStatus = "revoked"
)

// JitAccessGrant is temporary access to a resource, swept on expiry and
// re-validated at read time.
type JitAccessGrant struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	ResourceType     string
	ResourceID       uuid.UUID
	AccessLevel      string
	DurationMinutes  uint
	Justification    string
	RequestedAt      time.Time
	GrantedAt        *time.Time
	ExpiresAt        *time.Time
	RevokedAt        *time.Time
	RevokedBy        *uuid.UUID
	RevocationReason string
	Status           JitStatus
	ApprovalID       *uuid.UUID
}

// Active reports whether the grant confers access right now. Callers must
// use this rather than Status: the sweeper may lag behind the wall clock.
func (g *JitAccessGrant) Active(now time.Time) bool {
	return g.RevokedAt == nil &&
		g.GrantedAt != nil && !g.GrantedAt.After(now) &&
		g.ExpiresAt != nil && now.Before(*g.ExpiresAt)
}

// Grant activates the grant and starts its expiry window.
func (g *JitAccessGrant) Grant(now time.Time) {
	g.Status = JitActive
	g.GrantedAt = &now
	expires := now.Add(time.Duration(g.DurationMinutes) * time.Minute)
	g.ExpiresAt = &expires
}
