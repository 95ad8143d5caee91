package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/usp/internal/metrics"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
)

func recordMetric(ctx context.Context, m metrics.BusinessMetrics, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.RecordOperation(ctx, "pam", operation, status)
	m.RecordDuration(ctx, "pam", operation, time.Since(start), status)
}

// safeUseCaseWithMetrics decorates SafeUseCase with metrics instrumentation.
type safeUseCaseWithMetrics struct {
	next    SafeUseCase
	metrics metrics.BusinessMetrics
}

// NewSafeUseCaseWithMetrics wraps a SafeUseCase with metrics recording.
func NewSafeUseCaseWithMetrics(useCase SafeUseCase, m metrics.BusinessMetrics) SafeUseCase {
	return &safeUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (s *safeUseCaseWithMetrics) CreateSafe(
	ctx context.Context,
	input CreateSafeInput,
) (*pamDomain.Safe, error) {
	start := time.Now()
	safe, err := s.next.CreateSafe(ctx, input)
	recordMetric(ctx, s.metrics, "safe_create", start, err)
	return safe, err
}

func (s *safeUseCaseWithMetrics) UpdateSafe(
	ctx context.Context,
	userID, safeID uuid.UUID,
	update SafeUpdate,
) (*pamDomain.Safe, error) {
	start := time.Now()
	safe, err := s.next.UpdateSafe(ctx, userID, safeID, update)
	recordMetric(ctx, s.metrics, "safe_update", start, err)
	return safe, err
}

func (s *safeUseCaseWithMetrics) DeleteSafe(ctx context.Context, userID, safeID uuid.UUID) error {
	start := time.Now()
	err := s.next.DeleteSafe(ctx, userID, safeID)
	recordMetric(ctx, s.metrics, "safe_delete", start, err)
	return err
}

func (s *safeUseCaseWithMetrics) ListSafes(
	ctx context.Context,
	userID uuid.UUID,
) ([]*pamDomain.Safe, error) {
	return s.next.ListSafes(ctx, userID)
}

func (s *safeUseCaseWithMetrics) GrantAccess(
	ctx context.Context,
	userID, safeID, granteeID uuid.UUID,
	permission pamDomain.SafePermission,
) error {
	start := time.Now()
	err := s.next.GrantAccess(ctx, userID, safeID, granteeID, permission)
	recordMetric(ctx, s.metrics, "acl_grant", start, err)
	return err
}

func (s *safeUseCaseWithMetrics) RevokeAccess(
	ctx context.Context,
	userID, safeID, granteeID uuid.UUID,
) error {
	start := time.Now()
	err := s.next.RevokeAccess(ctx, userID, safeID, granteeID)
	recordMetric(ctx, s.metrics, "acl_revoke", start, err)
	return err
}

func (s *safeUseCaseWithMetrics) CreateAccount(
	ctx context.Context,
	userID uuid.UUID,
	input CreateAccountInput,
) (*pamDomain.PrivilegedAccount, error) {
	start := time.Now()
	account, err := s.next.CreateAccount(ctx, userID, input)
	recordMetric(ctx, s.metrics, "account_create", start, err)
	return account, err
}

func (s *safeUseCaseWithMetrics) ListAccounts(
	ctx context.Context,
	userID, safeID uuid.UUID,
) ([]*pamDomain.PrivilegedAccount, error) {
	return s.next.ListAccounts(ctx, userID, safeID)
}

func (s *safeUseCaseWithMetrics) Reveal(
	ctx context.Context,
	userID, accountID uuid.UUID,
) (string, error) {
	start := time.Now()
	password, err := s.next.Reveal(ctx, userID, accountID)
	recordMetric(ctx, s.metrics, "account_reveal", start, err)
	return password, err
}

// rotationUseCaseWithMetrics decorates RotationUseCase with metrics instrumentation.
type rotationUseCaseWithMetrics struct {
	next    RotationUseCase
	metrics metrics.BusinessMetrics
}

// NewRotationUseCaseWithMetrics wraps a RotationUseCase with metrics recording.
func NewRotationUseCaseWithMetrics(useCase RotationUseCase, m metrics.BusinessMetrics) RotationUseCase {
	return &rotationUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (r *rotationUseCaseWithMetrics) Rotate(
	ctx context.Context,
	accountID uuid.UUID,
	trigger RotationTrigger,
) error {
	start := time.Now()
	err := r.next.Rotate(ctx, accountID, trigger)
	recordMetric(ctx, r.metrics, "rotate", start, err)
	return err
}

func (r *rotationUseCaseWithMetrics) RotateDue(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	attempted, err := r.next.RotateDue(ctx, now)
	recordMetric(ctx, r.metrics, "rotate_due", start, err)
	return attempted, err
}

// checkoutUseCaseWithMetrics decorates CheckoutUseCase with metrics instrumentation.
type checkoutUseCaseWithMetrics struct {
	next    CheckoutUseCase
	metrics metrics.BusinessMetrics
}

// NewCheckoutUseCaseWithMetrics wraps a CheckoutUseCase with metrics recording.
func NewCheckoutUseCaseWithMetrics(useCase CheckoutUseCase, m metrics.BusinessMetrics) CheckoutUseCase {
	return &checkoutUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (c *checkoutUseCaseWithMetrics) Request(
	ctx context.Context,
	input RequestCheckoutInput,
) (*CheckoutResult, error) {
	start := time.Now()
	result, err := c.next.Request(ctx, input)
	recordMetric(ctx, c.metrics, "checkout_request", start, err)
	return result, err
}

func (c *checkoutUseCaseWithMetrics) Decide(
	ctx context.Context,
	approvalID, approverID uuid.UUID,
	approved bool,
	comment string,
) (*CheckoutResult, error) {
	start := time.Now()
	result, err := c.next.Decide(ctx, approvalID, approverID, approved, comment)
	recordMetric(ctx, c.metrics, "checkout_decide", start, err)
	return result, err
}

func (c *checkoutUseCaseWithMetrics) Credential(
	ctx context.Context,
	checkoutID, userID uuid.UUID,
) (string, error) {
	start := time.Now()
	password, err := c.next.Credential(ctx, checkoutID, userID)
	recordMetric(ctx, c.metrics, "checkout_credential", start, err)
	return password, err
}

func (c *checkoutUseCaseWithMetrics) Checkin(
	ctx context.Context,
	checkoutID, userID uuid.UUID,
	notes string,
) error {
	start := time.Now()
	err := c.next.Checkin(ctx, checkoutID, userID, notes)
	recordMetric(ctx, c.metrics, "checkin", start, err)
	return err
}

func (c *checkoutUseCaseWithMetrics) ForceCheckin(
	ctx context.Context,
	checkoutID, operatorID uuid.UUID,
	reason string,
) error {
	start := time.Now()
	err := c.next.ForceCheckin(ctx, checkoutID, operatorID, reason)
	recordMetric(ctx, c.metrics, "checkin_force", start, err)
	return err
}

func (c *checkoutUseCaseWithMetrics) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	expired, err := c.next.ExpireOverdue(ctx, now)
	recordMetric(ctx, c.metrics, "checkout_expire", start, err)
	return expired, err
}

// jitUseCaseWithMetrics decorates JitUseCase with metrics instrumentation.
type jitUseCaseWithMetrics struct {
	next    JitUseCase
	metrics metrics.BusinessMetrics
}

// NewJitUseCaseWithMetrics wraps a JitUseCase with metrics recording.
func NewJitUseCaseWithMetrics(useCase JitUseCase, m metrics.BusinessMetrics) JitUseCase {
	return &jitUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (j *jitUseCaseWithMetrics) Request(
	ctx context.Context,
	input JitRequestInput,
) (*pamDomain.JitAccessGrant, error) {
	start := time.Now()
	grant, err := j.next.Request(ctx, input)
	recordMetric(ctx, j.metrics, "jit_request", start, err)
	return grant, err
}

func (j *jitUseCaseWithMetrics) Decide(
	ctx context.Context,
	approvalID, approverID uuid.UUID,
	approved bool,
	comment string,
) (*pamDomain.JitAccessGrant, error) {
	start := time.Now()
	grant, err := j.next.Decide(ctx, approvalID, approverID, approved, comment)
	recordMetric(ctx, j.metrics, "jit_decide", start, err)
	return grant, err
}

func (j *jitUseCaseWithMetrics) Active(
	ctx context.Context,
	userID uuid.UUID,
	resourceType string,
	resourceID uuid.UUID,
) (bool, error) {
	return j.next.Active(ctx, userID, resourceType, resourceID)
}

func (j *jitUseCaseWithMetrics) Revoke(
	ctx context.Context,
	grantID, operatorID uuid.UUID,
	reason string,
) error {
	start := time.Now()
	err := j.next.Revoke(ctx, grantID, operatorID, reason)
	recordMetric(ctx, j.metrics, "jit_revoke", start, err)
	return err
}

func (j *jitUseCaseWithMetrics) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	swept, err := j.next.SweepExpired(ctx, now)
	recordMetric(ctx, j.metrics, "jit_sweep", start, err)
	return swept, err
}
