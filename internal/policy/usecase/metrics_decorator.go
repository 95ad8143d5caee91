package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/usp/internal/metrics"
	policyDomain "github.com/allisson/usp/internal/policy/domain"
)

// policyUseCaseWithMetrics decorates PolicyUseCase with metrics instrumentation.
type policyUseCaseWithMetrics struct {
	next    PolicyUseCase
	metrics metrics.BusinessMetrics
}

// NewPolicyUseCaseWithMetrics wraps a PolicyUseCase with metrics recording.
func NewPolicyUseCaseWithMetrics(useCase PolicyUseCase, m metrics.BusinessMetrics) PolicyUseCase {
	return &policyUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (p *policyUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	p.metrics.RecordOperation(ctx, "policy", operation, status)
	p.metrics.RecordDuration(ctx, "policy", operation, time.Since(start), status)
}

func (p *policyUseCaseWithMetrics) Authorize(
	ctx context.Context,
	check AccessCheck,
) (*policyDomain.Decision, error) {
	start := time.Now()
	decision, err := p.next.Authorize(ctx, check)
	p.record(ctx, "authorize", start, err)
	return decision, err
}

func (p *policyUseCaseWithMetrics) RoleNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return p.next.RoleNames(ctx, userID)
}

func (p *policyUseCaseWithMetrics) CreateRole(
	ctx context.Context,
	name, description string,
) (*policyDomain.Role, error) {
	start := time.Now()
	role, err := p.next.CreateRole(ctx, name, description)
	p.record(ctx, "role_create", start, err)
	return role, err
}

func (p *policyUseCaseWithMetrics) DeleteRole(ctx context.Context, name string) error {
	start := time.Now()
	err := p.next.DeleteRole(ctx, name)
	p.record(ctx, "role_delete", start, err)
	return err
}

func (p *policyUseCaseWithMetrics) AssignRole(
	ctx context.Context,
	userID uuid.UUID,
	roleName string,
) error {
	start := time.Now()
	err := p.next.AssignRole(ctx, userID, roleName)
	p.record(ctx, "role_assign", start, err)
	return err
}

func (p *policyUseCaseWithMetrics) RemoveRole(
	ctx context.Context,
	userID uuid.UUID,
	roleName string,
) error {
	start := time.Now()
	err := p.next.RemoveRole(ctx, userID, roleName)
	p.record(ctx, "role_remove", start, err)
	return err
}

func (p *policyUseCaseWithMetrics) GrantPermission(
	ctx context.Context,
	roleName, resource, action string,
) (*policyDomain.Permission, error) {
	start := time.Now()
	permission, err := p.next.GrantPermission(ctx, roleName, resource, action)
	p.record(ctx, "permission_grant", start, err)
	return permission, err
}

func (p *policyUseCaseWithMetrics) CreatePolicy(
	ctx context.Context,
	name, document string,
) (*policyDomain.AccessPolicy, error) {
	start := time.Now()
	policy, err := p.next.CreatePolicy(ctx, name, document)
	p.record(ctx, "policy_create", start, err)
	return policy, err
}

func (p *policyUseCaseWithMetrics) UpdatePolicy(
	ctx context.Context,
	name, document string,
	enabled bool,
) (*policyDomain.AccessPolicy, error) {
	start := time.Now()
	policy, err := p.next.UpdatePolicy(ctx, name, document, enabled)
	p.record(ctx, "policy_update", start, err)
	return policy, err
}

func (p *policyUseCaseWithMetrics) DeletePolicy(ctx context.Context, name string) error {
	start := time.Now()
	err := p.next.DeletePolicy(ctx, name)
	p.record(ctx, "policy_delete", start, err)
	return err
}

func (p *policyUseCaseWithMetrics) Reload(ctx context.Context) error {
	return p.next.Reload(ctx)
}
