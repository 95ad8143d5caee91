package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/usp/internal/errors"
)

// ApprovalPolicyType selects how many approvers must act and how.
type ApprovalPolicyType string

const (
	// PolicySingleApprover: the first approver to act decides.
	PolicySingleApprover ApprovalPolicyType = "singleApprover"
	// PolicyDualControl: two distinct approvers must approve.
	PolicyDualControl ApprovalPolicyType = "dualControl"
	// PolicyAllApprovers: every listed approver must approve.
	PolicyAllApprovers ApprovalPolicyType = "allApprovers"
	// PolicyMajority: more than half of the listed approvers, plus one.
	PolicyMajority ApprovalPolicyType = "majority"
)

// ApprovalStatus transitions only pending → approved | denied | expired |
// cancelled.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalDenied    ApprovalStatus = "denied"
	ApprovalExpired   ApprovalStatus = "expired"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

// DefaultApprovalTTL bounds how long an approval may stay pending.
const DefaultApprovalTTL = 24 * time.Hour

// ApproverAction is one approver's recorded decision.
type ApproverAction struct {
	ApproverID uuid.UUID
	Approved   bool
	Comment    string
	ActedAt    time.Time
}

// AccessApproval tracks a multi-party decision over a resource request.
type AccessApproval struct {
	ID           uuid.UUID
	RequesterID  uuid.UUID
	ResourceType string
	ResourceID   uuid.UUID
	Policy       ApprovalPolicyType
	Approvers    []uuid.UUID
	Actions      []ApproverAction
	Status       ApprovalStatus
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// RequiredApprovals returns how many approvals the policy demands given
// the approver list.
func (a *AccessApproval) RequiredApprovals() int {
	n := len(a.Approvers)
	switch a.Policy {
	case PolicyDualControl:
		return 2
	case PolicyAllApprovers:
		return n
	case PolicyMajority:
		return (n+1)/2 + 1
	default:
		return 1
	}
}

// RecordAction applies one approver's decision and updates the status.
// Requesters may not approve their own request; each approver acts once.
func (a *AccessApproval) RecordAction(action ApproverAction) error {
	if a.Status != ApprovalPending {
		return apperrors.Wrap(apperrors.ErrInvalidState, "approval is not pending")
	}
	if action.ApproverID == a.RequesterID {
		return apperrors.Wrap(apperrors.ErrForbidden, "requester cannot approve own request")
	}
	if action.ActedAt.After(a.ExpiresAt) {
		a.Status = ApprovalExpired
		return apperrors.Wrap(apperrors.ErrInvalidState, "approval expired")
	}
	for _, existing := range a.Actions {
		if existing.ApproverID == action.ApproverID {
			return apperrors.Wrap(apperrors.ErrInvalidState, "approver already acted")
		}
	}
	if len(a.Approvers) > 0 && !a.listsApprover(action.ApproverID) {
		return apperrors.Wrap(apperrors.ErrForbidden, "not a listed approver")
	}

	a.Actions = append(a.Actions, action)

	approvals := 0
	for _, act := range a.Actions {
		if act.Approved {
			approvals++
		}
	}

	required := a.RequiredApprovals()
	switch {
	case !action.Approved && a.Policy == PolicySingleApprover:
		a.Status = ApprovalDenied
	case !action.Approved && a.Policy != PolicyMajority:
		// Dual control and all-approvers: any denial sinks the request.
		a.Status = ApprovalDenied
	case approvals >= required:
		a.Status = ApprovalApproved
	case a.Policy == PolicyMajority && len(a.Actions)-approvals > len(a.Approvers)-required:
		// Too many denials for a majority to remain reachable.
		a.Status = ApprovalDenied
	}

	return nil
}

func (a *AccessApproval) listsApprover(approverID uuid.UUID) bool {
	for _, id := range a.Approvers {
		if id == approverID {
			return true
		}
	}
	return false
}
