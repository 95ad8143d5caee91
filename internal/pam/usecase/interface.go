// Package usecase implements privileged access management: safes and their
// accounts, credential rotation through platform connectors, the checkout
// state machine with approvals, session recording and playback, and
// just-in-time grants.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	pamDomain "github.com/allisson/usp/internal/pam/domain"
)

// SafeRepository defines safe and ACL persistence.
type SafeRepository interface {
	Create(ctx context.Context, safe *pamDomain.Safe) error
	GetByID(ctx context.Context, safeID uuid.UUID) (*pamDomain.Safe, error)
	GetByName(ctx context.Context, name string) (*pamDomain.Safe, error)
	Update(ctx context.Context, safe *pamDomain.Safe) error
	Delete(ctx context.Context, safeID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*pamDomain.Safe, error)
	ListAcl(ctx context.Context, safeID uuid.UUID) ([]pamDomain.AclEntry, error)
	GrantAcl(ctx context.Context, entry pamDomain.AclEntry) error
	RevokeAcl(ctx context.Context, safeID, userID uuid.UUID) error
}

// AccountRepository defines privileged account persistence.
type AccountRepository interface {
	Create(ctx context.Context, account *pamDomain.PrivilegedAccount) error
	GetByID(ctx context.Context, accountID uuid.UUID) (*pamDomain.PrivilegedAccount, error)
	GetByIDForUpdate(ctx context.Context, accountID uuid.UUID) (*pamDomain.PrivilegedAccount, error)
	Update(ctx context.Context, account *pamDomain.PrivilegedAccount) error
	Delete(ctx context.Context, accountID uuid.UUID) error
	ListBySafe(ctx context.Context, safeID uuid.UUID) ([]*pamDomain.PrivilegedAccount, error)
	ListRotationDue(ctx context.Context, now time.Time) ([]*pamDomain.PrivilegedAccount, error)
}

// CheckoutRepository defines checkout persistence.
type CheckoutRepository interface {
	Create(ctx context.Context, checkout *pamDomain.Checkout) error
	GetByID(ctx context.Context, checkoutID uuid.UUID) (*pamDomain.Checkout, error)
	GetByIDForUpdate(ctx context.Context, checkoutID uuid.UUID) (*pamDomain.Checkout, error)
	GetOpenByAccount(ctx context.Context, accountID uuid.UUID) (*pamDomain.Checkout, error)
	Update(ctx context.Context, checkout *pamDomain.Checkout) error
	ListOverdue(ctx context.Context, now time.Time) ([]*pamDomain.Checkout, error)
}

// ApprovalRepository defines access approval persistence, shared by
// checkouts and JIT grants.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *pamDomain.AccessApproval) error
	GetByIDForUpdate(ctx context.Context, approvalID uuid.UUID) (*pamDomain.AccessApproval, error)
	Update(ctx context.Context, approval *pamDomain.AccessApproval) error
}

// SessionRepository defines privileged session recording persistence.
type SessionRepository interface {
	Create(ctx context.Context, session *pamDomain.PrivilegedSession) error
	GetByID(ctx context.Context, sessionID uuid.UUID) (*pamDomain.PrivilegedSession, error)
	GetByIDForUpdate(ctx context.Context, sessionID uuid.UUID) (*pamDomain.PrivilegedSession, error)
	GetByCheckout(ctx context.Context, checkoutID uuid.UUID) (*pamDomain.PrivilegedSession, error)
	Update(ctx context.Context, session *pamDomain.PrivilegedSession) error
	AppendCommand(ctx context.Context, command *pamDomain.SessionCommand) error
	ListCommands(ctx context.Context, sessionID uuid.UUID) ([]pamDomain.SessionCommand, error)
}

// JitRepository defines just-in-time grant persistence.
type JitRepository interface {
	Create(ctx context.Context, grant *pamDomain.JitAccessGrant) error
	GetByID(ctx context.Context, grantID uuid.UUID) (*pamDomain.JitAccessGrant, error)
	Update(ctx context.Context, grant *pamDomain.JitAccessGrant) error
	FindActive(ctx context.Context, userID uuid.UUID, resourceType string, resourceID uuid.UUID, now time.Time) (*pamDomain.JitAccessGrant, error)
	ListSweepable(ctx context.Context, now time.Time) ([]*pamDomain.JitAccessGrant, error)
}

// CredentialKeyName is the transit key protecting account passwords.
const CredentialKeyName = "pam-credential-key"

// CredentialCipher encrypts account passwords at rest. The transit use
// case satisfies it structurally; a barrier-backed adapter can stand in
// when the transit engine is not deployed.
type CredentialCipher interface {
	EnsureKey(ctx context.Context, name string) error
	Encrypt(ctx context.Context, name string, plaintext, context []byte) (string, error)
	Decrypt(ctx context.Context, name string, envelope string, context []byte) ([]byte, error)
}

// StepUpChecker asks the authentication module whether a user holds an
// active step-up for a resource path.
type StepUpChecker interface {
	StepUpActive(ctx context.Context, userID uuid.UUID, resourcePath string) (bool, error)
}

// CreateSafeInput carries new-safe parameters.
type CreateSafeInput struct {
	Name                       string
	Description                string
	OwnerID                    uuid.UUID
	RequireApproval            bool
	RequireDualControl         bool
	MaxCheckoutDurationMinutes uint
	RotateOnCheckin            bool
	SessionRecordingEnabled    bool
}

// SafeUpdate carries optional safe changes; nil fields are left untouched.
type SafeUpdate struct {
	Description                *string
	RequireApproval            *bool
	RequireDualControl         *bool
	MaxCheckoutDurationMinutes *uint
	RotateOnCheckin            *bool
	SessionRecordingEnabled    *bool
}

// CreateAccountInput carries new-account parameters. Password is the
// current plaintext credential; it is encrypted before storage.
type CreateAccountInput struct {
	SafeID               uuid.UUID
	AccountName          string
	Username             string
	Password             string
	Platform             pamDomain.Platform
	Host                 string
	Port                 uint
	Database             string
	RotationPolicy       pamDomain.RotationPolicy
	RotationIntervalDays uint
}

// SafeUseCase manages safes, their ACLs, and their accounts.
type SafeUseCase interface {
	// CreateSafe registers a safe owned by the caller.
	CreateSafe(ctx context.Context, input CreateSafeInput) (*pamDomain.Safe, error)

	// UpdateSafe applies policy changes; caller needs manage.
	UpdateSafe(ctx context.Context, userID, safeID uuid.UUID, update SafeUpdate) (*pamDomain.Safe, error)

	// DeleteSafe removes an empty safe; caller needs manage.
	DeleteSafe(ctx context.Context, userID, safeID uuid.UUID) error

	// ListSafes returns safes the caller owns or is listed on.
	ListSafes(ctx context.Context, userID uuid.UUID) ([]*pamDomain.Safe, error)

	// GrantAccess sets a user's ACL level; caller needs manage.
	GrantAccess(ctx context.Context, userID, safeID, granteeID uuid.UUID, permission pamDomain.SafePermission) error

	// RevokeAccess removes a user's ACL entry; caller needs manage.
	RevokeAccess(ctx context.Context, userID, safeID, granteeID uuid.UUID) error

	// CreateAccount stores a privileged account with its password
	// encrypted; caller needs manage on the safe.
	CreateAccount(ctx context.Context, userID uuid.UUID, input CreateAccountInput) (*pamDomain.PrivilegedAccount, error)

	// ListAccounts returns the safe's accounts; caller needs read.
	ListAccounts(ctx context.Context, userID, safeID uuid.UUID) ([]*pamDomain.PrivilegedAccount, error)

	// Reveal decrypts an account password for a caller holding read,
	// subject to the safe's step-up requirement. Audited.
	Reveal(ctx context.Context, userID, accountID uuid.UUID) (string, error)
}

// RotationTrigger names why a rotation ran.
type RotationTrigger string

const (
	TriggerScheduled    RotationTrigger = "scheduled"
	TriggerManual       RotationTrigger = "manual"
	TriggerOnCheckin    RotationTrigger = "onCheckin"
	TriggerOnExpiration RotationTrigger = "onExpiration"
)

// RotationUseCase rotates privileged account credentials.
type RotationUseCase interface {
	// Rotate generates a new credential, applies it through the platform
	// connector, verifies it, and stores it encrypted. A failed verify is
	// reverted; a failed revert marks the account rotationFailed.
	Rotate(ctx context.Context, accountID uuid.UUID, trigger RotationTrigger) error

	// RotateDue rotates every scheduled account whose time has passed and
	// returns how many rotations were attempted.
	RotateDue(ctx context.Context, now time.Time) (int, error)
}

// RequestCheckoutInput carries a checkout request.
type RequestCheckoutInput struct {
	AccountID       uuid.UUID
	UserID          uuid.UUID
	Reason          string
	DurationMinutes uint
}

// CheckoutResult is the outcome of a checkout request or approval.
// Password is set only when the checkout became active for the requester.
type CheckoutResult struct {
	Checkout *pamDomain.Checkout
	Approval *pamDomain.AccessApproval
	Session  *pamDomain.PrivilegedSession
	Password string
}

// CheckoutUseCase runs the checkout state machine.
type CheckoutUseCase interface {
	// Request opens a checkout. Without a required approval it activates
	// immediately and reveals the credential once.
	Request(ctx context.Context, input RequestCheckoutInput) (*CheckoutResult, error)

	// Decide records one approver's decision on a pending checkout
	// approval; full approval activates the checkout.
	Decide(ctx context.Context, approvalID, approverID uuid.UUID, approved bool, comment string) (*CheckoutResult, error)

	// Credential returns the decrypted password of the caller's active
	// checkout. Audited as a reveal.
	Credential(ctx context.Context, checkoutID, userID uuid.UUID) (string, error)

	// Checkin closes an active checkout; rotate-on-checkin rotates the
	// credential synchronously, and a rotation failure is recorded but
	// does not undo the checkin.
	Checkin(ctx context.Context, checkoutID, userID uuid.UUID, notes string) error

	// ForceCheckin closes another user's checkout; caller needs manage on
	// the safe and a reason, both audited.
	ForceCheckin(ctx context.Context, checkoutID, operatorID uuid.UUID, reason string) error

	// ExpireOverdue transitions overdue active checkouts to expired and
	// returns how many were reaped.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// SessionUseCase records and replays privileged sessions.
type SessionUseCase interface {
	// RecordCommand appends a command to a live session with the next
	// sequence number and runs suspicious-pattern detection.
	RecordCommand(ctx context.Context, sessionID uuid.UUID, command, response string) (*pamDomain.SessionCommand, error)

	// End closes a session's recording.
	End(ctx context.Context, sessionID uuid.UUID) error

	// Timeline returns the session's commands with inter-command deltas.
	Timeline(ctx context.Context, sessionID uuid.UUID) ([]pamDomain.TimelineEntry, error)

	// FrameAt returns the playback position at an offset into the session.
	FrameAt(ctx context.Context, sessionID uuid.UUID, offset time.Duration) (*pamDomain.Frame, error)

	// Search finds commands matching a literal or regex term.
	Search(ctx context.Context, sessionID uuid.UUID, term string, options pamDomain.SearchOptions) ([]pamDomain.SearchMatch, error)

	// Export renders the transcript as json, csv, html, or text.
	Export(ctx context.Context, sessionID uuid.UUID, format pamDomain.ExportFormat) ([]byte, error)
}

// JitRequestInput carries a just-in-time access request.
type JitRequestInput struct {
	UserID           uuid.UUID
	ResourceType     string
	ResourceID       uuid.UUID
	AccessLevel      string
	DurationMinutes  uint
	Justification    string
	RequiresApproval bool
	Approvers        []uuid.UUID
	ApprovalPolicy   pamDomain.ApprovalPolicyType
}

// JitUseCase manages just-in-time grants.
type JitUseCase interface {
	// Request opens a grant, pending approval when the template demands it.
	Request(ctx context.Context, input JitRequestInput) (*pamDomain.JitAccessGrant, error)

	// Decide records one approver's decision on a pending grant.
	Decide(ctx context.Context, approvalID, approverID uuid.UUID, approved bool, comment string) (*pamDomain.JitAccessGrant, error)

	// Active re-validates at read time whether the user holds a live grant.
	Active(ctx context.Context, userID uuid.UUID, resourceType string, resourceID uuid.UUID) (bool, error)

	// Revoke ends a grant early with a recorded reason.
	Revoke(ctx context.Context, grantID, operatorID uuid.UUID, reason string) error

	// SweepExpired expires overdue grants and returns how many were swept.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}
