// Package usecase implements authorization: role-based grants unioned over a
// user's roles, filtered by attribute-based policy documents. A matching
// deny policy always wins; a user with no matching grant is denied.
package usecase

import (
	"context"
	"net/netip"

	"github.com/google/uuid"

	policyDomain "github.com/allisson/usp/internal/policy/domain"
)

// RoleRepository defines role persistence and user assignment.
type RoleRepository interface {
	Create(ctx context.Context, role *policyDomain.Role) error
	GetByName(ctx context.Context, name string) (*policyDomain.Role, error)
	Delete(ctx context.Context, roleID uuid.UUID) error
	AssignToUser(ctx context.Context, userID, roleID uuid.UUID) error
	RemoveFromUser(ctx context.Context, userID, roleID uuid.UUID) error
	NamesByUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// PermissionRepository defines permission persistence and role attachment.
type PermissionRepository interface {
	Create(ctx context.Context, permission *policyDomain.Permission) error
	AttachToRole(ctx context.Context, roleID, permissionID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*policyDomain.Permission, error)
}

// AccessPolicyRepository defines policy document persistence.
type AccessPolicyRepository interface {
	Create(ctx context.Context, policy *policyDomain.AccessPolicy) error
	Update(ctx context.Context, policy *policyDomain.AccessPolicy) error
	Delete(ctx context.Context, policyID uuid.UUID) error
	GetByName(ctx context.Context, name string) (*policyDomain.AccessPolicy, error)
	ListEnabled(ctx context.Context) ([]*policyDomain.AccessPolicy, error)
}

// AccessCheck is one authorization question.
type AccessCheck struct {
	UserID   uuid.UUID
	Resource string
	Action   string
	IP       netip.Addr
	Tags     map[string]string
}

// PolicyUseCase manages roles, permissions, and policy documents, and
// answers authorization checks against them.
type PolicyUseCase interface {
	// Authorize decides one access check. The decision is recorded in the
	// audit log; a denial is a decision, not an error.
	Authorize(ctx context.Context, check AccessCheck) (*policyDomain.Decision, error)

	// RoleNames returns the user's role names, for embedding in tokens.
	RoleNames(ctx context.Context, userID uuid.UUID) ([]string, error)

	// CreateRole registers a named role.
	CreateRole(ctx context.Context, name, description string) (*policyDomain.Role, error)

	// DeleteRole removes a role along with its user and permission links.
	DeleteRole(ctx context.Context, name string) error

	// AssignRole grants a role to a user; assigning twice is a no-op.
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error

	// RemoveRole revokes a role from a user.
	RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error

	// GrantPermission creates a permission and attaches it to a role.
	GrantPermission(ctx context.Context, roleName, resource, action string) (*policyDomain.Permission, error)

	// CreatePolicy compiles and stores a policy document. Documents that do
	// not compile are rejected.
	CreatePolicy(ctx context.Context, name, document string) (*policyDomain.AccessPolicy, error)

	// UpdatePolicy replaces a policy's document and enabled flag,
	// recompiling the active set.
	UpdatePolicy(ctx context.Context, name, document string, enabled bool) (*policyDomain.AccessPolicy, error)

	// DeletePolicy removes a policy document.
	DeletePolicy(ctx context.Context, name string) error

	// Reload recompiles the enabled policy set from storage. Called at
	// startup and after any policy mutation.
	Reload(ctx context.Context) error
}
