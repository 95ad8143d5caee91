package domain

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutStatus is a state in the checkout machine:
//
//	pending → active → checkedIn
//	pending → denied
//	active  → expired | forceCheckedIn
type CheckoutStatus string

const (
	CheckoutPending        CheckoutStatus = "pending"
	CheckoutActive         CheckoutStatus = "active"
	CheckoutCheckedIn      CheckoutStatus = "checkedIn"
	CheckoutDenied         CheckoutStatus = "denied"
	CheckoutExpired        CheckoutStatus = "expired"
	CheckoutForceCheckedIn CheckoutStatus = "forceCheckedIn"
)

// Terminal reports whether no further transition is possible.
func (s CheckoutStatus) Terminal() bool {
	switch s {
	case CheckoutCheckedIn, CheckoutDenied, CheckoutExpired, CheckoutForceCheckedIn:
		return true
	}
	return false
}

// DefaultCheckoutDurationMinutes applies when a request names no duration.
const DefaultCheckoutDurationMinutes = 60

// Checkout is one exclusive hold of a privileged account. Per account at
// most one checkout is non-terminal at any time.
type Checkout struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	UserID          uuid.UUID
	Reason          string
	DurationMinutes uint
	RotateOnCheckin bool
	Status          CheckoutStatus
	ApprovalID      *uuid.UUID
	RequestedAt     time.Time
	ApprovedAt      *time.Time
	CheckedOutAt    *time.Time
	CheckedInAt     *time.Time
	ExpiresAt       *time.Time
	Notes           string
}

// Activate moves an approved or approval-free checkout to active and
// starts its expiry timer.
func (c *Checkout) Activate(now time.Time) {
	c.Status = CheckoutActive
	c.CheckedOutAt = &now
	expires := now.Add(time.Duration(c.DurationMinutes) * time.Minute)
	c.ExpiresAt = &expires
}

// Overdue reports whether an active checkout has outlived its window.
func (c *Checkout) Overdue(now time.Time) bool {
	return c.Status == CheckoutActive && c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}
