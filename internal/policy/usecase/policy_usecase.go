package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/validation"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	policyDomain "github.com/allisson/usp/internal/policy/domain"
	policyService "github.com/allisson/usp/internal/policy/service"
)

// Decision reasons that do not name a policy.
const (
	ReasonRbac    = "rbac"
	ReasonNoGrant = "no-grant"
)

// policyUseCase implements PolicyUseCase.
type policyUseCase struct {
	txManager   database.TxManager
	roleRepo    RoleRepository
	permRepo    PermissionRepository
	policyRepo  AccessPolicyRepository
	audit       auditDomain.Recorder
	logger      *slog.Logger
	activeMutex sync.RWMutex
	active      []policyDomain.CompiledPolicy
}

// NewPolicyUseCase creates the authorization use case. Call Reload before
// serving authorization checks so the policy set reflects storage.
func NewPolicyUseCase(
	txManager database.TxManager,
	roleRepo RoleRepository,
	permRepo PermissionRepository,
	policyRepo AccessPolicyRepository,
	audit auditDomain.Recorder,
	logger *slog.Logger,
) PolicyUseCase {
	return &policyUseCase{
		txManager:  txManager,
		roleRepo:   roleRepo,
		permRepo:   permRepo,
		policyRepo: policyRepo,
		audit:      audit,
		logger:     logger,
	}
}

func (p *policyUseCase) Authorize(
	ctx context.Context,
	check AccessCheck,
) (*policyDomain.Decision, error) {
	roles, err := p.roleRepo.NamesByUser(ctx, check.UserID)
	if err != nil {
		return nil, err
	}

	permissions, err := p.permRepo.ListByUser(ctx, check.UserID)
	if err != nil {
		return nil, err
	}

	input := policyDomain.EvalInput{
		UserID:   check.UserID,
		Roles:    roles,
		Resource: check.Resource,
		Action:   check.Action,
		IP:       check.IP,
		Now:      time.Now().UTC(),
		Tags:     check.Tags,
	}

	decision := p.decide(input, permissions)
	p.recordDecision(ctx, check, decision)

	return decision, nil
}

// decide is the pure core: role grants are unioned, allow policies extend
// them, and any matching deny policy overrides both.
func (p *policyUseCase) decide(
	input policyDomain.EvalInput,
	permissions []*policyDomain.Permission,
) *policyDomain.Decision {
	p.activeMutex.RLock()
	defer p.activeMutex.RUnlock()

	var allowedBy string
	for _, policy := range p.active {
		if !policy.Matches(input) {
			continue
		}
		if policy.Effect() == policyDomain.EffectDeny {
			return &policyDomain.Decision{Allowed: false, Reason: policy.Name()}
		}
		if allowedBy == "" {
			allowedBy = policy.Name()
		}
	}

	for _, permission := range permissions {
		if permission.Allows(input.Resource, input.Action) {
			return &policyDomain.Decision{Allowed: true, Reason: ReasonRbac}
		}
	}

	if allowedBy != "" {
		return &policyDomain.Decision{Allowed: true, Reason: allowedBy}
	}

	return &policyDomain.Decision{Allowed: false, Reason: ReasonNoGrant}
}

func (p *policyUseCase) RoleNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return p.roleRepo.NamesByUser(ctx, userID)
}

func (p *policyUseCase) CreateRole(
	ctx context.Context,
	name, description string,
) (*policyDomain.Role, error) {
	err := validation.Validate(name, validation.Required, validation.Length(1, 64))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}

	if _, err := p.roleRepo.GetByName(ctx, name); err == nil {
		return nil, apperrors.Wrap(apperrors.ErrAlreadyExists, "role already exists")
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	role := &policyDomain.Role{
		ID:          uuid.Must(uuid.NewV7()),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.roleRepo.Create(ctx, role); err != nil {
		return nil, err
	}

	return role, nil
}

func (p *policyUseCase) DeleteRole(ctx context.Context, name string) error {
	role, err := p.roleRepo.GetByName(ctx, name)
	if err != nil {
		return err
	}

	return p.txManager.WithTx(ctx, func(ctx context.Context) error {
		return p.roleRepo.Delete(ctx, role.ID)
	})
}

func (p *policyUseCase) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	role, err := p.roleRepo.GetByName(ctx, roleName)
	if err != nil {
		return err
	}

	return p.roleRepo.AssignToUser(ctx, userID, role.ID)
}

func (p *policyUseCase) RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	role, err := p.roleRepo.GetByName(ctx, roleName)
	if err != nil {
		return err
	}

	return p.roleRepo.RemoveFromUser(ctx, userID, role.ID)
}

func (p *policyUseCase) GrantPermission(
	ctx context.Context,
	roleName, resource, action string,
) (*policyDomain.Permission, error) {
	err := validation.Errors{
		"resource": validation.Validate(resource, validation.Required),
		"action":   validation.Validate(action, validation.Required),
	}.Filter()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}

	role, err := p.roleRepo.GetByName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	permission := &policyDomain.Permission{
		ID:       uuid.Must(uuid.NewV7()),
		Resource: resource,
		Action:   action,
	}

	err = p.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := p.permRepo.Create(ctx, permission); err != nil {
			return err
		}
		return p.permRepo.AttachToRole(ctx, role.ID, permission.ID)
	})
	if err != nil {
		return nil, err
	}

	return permission, nil
}

func (p *policyUseCase) CreatePolicy(
	ctx context.Context,
	name, document string,
) (*policyDomain.AccessPolicy, error) {
	err := validation.Validate(name, validation.Required, validation.Length(1, 64))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}

	if _, err := policyService.Compile(name, document); err != nil {
		return nil, err
	}

	if _, err := p.policyRepo.GetByName(ctx, name); err == nil {
		return nil, apperrors.Wrap(apperrors.ErrAlreadyExists, "policy already exists")
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	policy := &policyDomain.AccessPolicy{
		ID:        uuid.Must(uuid.NewV7()),
		Name:      name,
		Document:  document,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.policyRepo.Create(ctx, policy); err != nil {
		return nil, err
	}

	if err := p.Reload(ctx); err != nil {
		return nil, err
	}

	return policy, nil
}

func (p *policyUseCase) UpdatePolicy(
	ctx context.Context,
	name, document string,
	enabled bool,
) (*policyDomain.AccessPolicy, error) {
	if _, err := policyService.Compile(name, document); err != nil {
		return nil, err
	}

	policy, err := p.policyRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	policy.Document = document
	policy.Enabled = enabled
	policy.UpdatedAt = time.Now().UTC()
	if err := p.policyRepo.Update(ctx, policy); err != nil {
		return nil, err
	}

	if err := p.Reload(ctx); err != nil {
		return nil, err
	}

	return policy, nil
}

func (p *policyUseCase) DeletePolicy(ctx context.Context, name string) error {
	policy, err := p.policyRepo.GetByName(ctx, name)
	if err != nil {
		return err
	}

	if err := p.policyRepo.Delete(ctx, policy.ID); err != nil {
		return err
	}

	return p.Reload(ctx)
}

func (p *policyUseCase) Reload(ctx context.Context) error {
	stored, err := p.policyRepo.ListEnabled(ctx)
	if err != nil {
		return err
	}

	compiled := make([]policyDomain.CompiledPolicy, 0, len(stored))
	for _, policy := range stored {
		// A document that stopped compiling is skipped, not fatal: one bad
		// policy must not take authorization down with it.
		cp, err := policyService.Compile(policy.Name, policy.Document)
		if err != nil {
			p.logger.Error("skipping access policy that does not compile",
				slog.String("policy", policy.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		compiled = append(compiled, cp)
	}

	p.activeMutex.Lock()
	p.active = compiled
	p.activeMutex.Unlock()

	return nil
}

func (p *policyUseCase) recordDecision(
	ctx context.Context,
	check AccessCheck,
	decision *policyDomain.Decision,
) {
	entry := &auditDomain.Entry{
		EventType: auditDomain.EventPolicyDecision,
		Resource:  check.Resource,
		Action:    check.Action,
		Success:   decision.Allowed,
		Details:   map[string]any{"reason": decision.Reason},
	}
	auditDomain.ActorFromContext(ctx).Apply(entry)
	if entry.ActorID == uuid.Nil {
		entry.ActorID = check.UserID
	}

	if err := p.audit.Record(ctx, entry); err != nil {
		p.logger.Error("failed to record policy decision audit entry",
			slog.String("resource", check.Resource),
			slog.String("error", err.Error()),
		)
	}
}
