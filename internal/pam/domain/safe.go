// Package domain defines the privileged access management model: safes of
// privileged accounts, checkout lifecycles, recorded sessions, approvals,
// and just-in-time grants.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SafePermission is one ACL level. Levels are ordered: manage implies
// checkout, checkout implies read.
type SafePermission string

const (
	PermissionRead     SafePermission = "read"
	PermissionCheckout SafePermission = "checkout"
	PermissionManage   SafePermission = "manage"
)

// rank orders permissions for implication checks.
func (p SafePermission) rank() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionCheckout:
		return 2
	case PermissionManage:
		return 3
	default:
		return 0
	}
}

// Covers reports whether holding p satisfies a requirement of required.
func (p SafePermission) Covers(required SafePermission) bool {
	return p.rank() >= required.rank() && required.rank() > 0
}

// Safe is a container of privileged accounts with its own access-control
// list and checkout policy flags.
type Safe struct {
	ID                         uuid.UUID
	Name                       string
	Description                string
	OwnerID                    uuid.UUID
	RequireApproval            bool
	RequireDualControl         bool
	MaxCheckoutDurationMinutes uint
	RotateOnCheckin            bool
	SessionRecordingEnabled    bool
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// AclEntry grants one user a permission level on a safe.
type AclEntry struct {
	SafeID     uuid.UUID
	UserID     uuid.UUID
	Permission SafePermission
}

// PermissionFor returns the user's effective permission on the safe given
// its ACL. The owner always holds manage.
func (s *Safe) PermissionFor(userID uuid.UUID, acl []AclEntry) SafePermission {
	if s.OwnerID == userID {
		return PermissionManage
	}

	var best SafePermission
	for _, entry := range acl {
		if entry.UserID == userID && entry.Permission.rank() > best.rank() {
			best = entry.Permission
		}
	}
	return best
}

// ApprovalPolicy returns the approval policy implied by the safe's flags,
// or empty when checkouts need no approval.
func (s *Safe) ApprovalPolicy() ApprovalPolicyType {
	switch {
	case s.RequireDualControl:
		return PolicyDualControl
	case s.RequireApproval:
		return PolicySingleApprover
	default:
		return ""
	}
}
