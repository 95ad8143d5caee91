// Package repository implements authorization persistence for PostgreSQL:
// roles, permissions, their assignments, and access policy documents.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	policyDomain "github.com/allisson/usp/internal/policy/domain"
)

// PostgreSQLRoleRepository implements role persistence for PostgreSQL.
type PostgreSQLRoleRepository struct {
	db *sql.DB
}

// NewPostgreSQLRoleRepository creates a repository bound to the given database.
func NewPostgreSQLRoleRepository(db *sql.DB) *PostgreSQLRoleRepository {
	return &PostgreSQLRoleRepository{db: db}
}

// Create inserts a new role.
func (p *PostgreSQLRoleRepository) Create(ctx context.Context, role *policyDomain.Role) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO roles (id, name, description, created_at) VALUES ($1, $2, $3, $4)`
	_, err := querier.ExecContext(ctx, query, role.ID, role.Name, role.Description, role.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create role")
	}

	return nil
}

// GetByName retrieves a role by name.
func (p *PostgreSQLRoleRepository) GetByName(
	ctx context.Context,
	name string,
) (*policyDomain.Role, error) {
	querier := database.GetTx(ctx, p.db)

	var role policyDomain.Role
	err := querier.QueryRowContext(
		ctx,
		`SELECT id, name, description, created_at FROM roles WHERE name = $1`,
		name,
	).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "role not found")
		}
		return nil, apperrors.Wrap(err, "failed to get role")
	}

	return &role, nil
}

// Delete removes a role and its assignments.
func (p *PostgreSQLRoleRepository) Delete(ctx context.Context, roleID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	if _, err := querier.ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID); err != nil {
		return apperrors.Wrap(err, "failed to delete role assignments")
	}
	if _, err := querier.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return apperrors.Wrap(err, "failed to delete role permissions")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete role")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check deleted role")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "role not found")
	}

	return nil
}

// AssignToUser links a role to a user; repeats are no-ops.
func (p *PostgreSQLRoleRepository) AssignToUser(
	ctx context.Context,
	userID, roleID uuid.UUID,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
			  ON CONFLICT (user_id, role_id) DO NOTHING`
	if _, err := querier.ExecContext(ctx, query, userID, roleID); err != nil {
		return apperrors.Wrap(err, "failed to assign role")
	}

	return nil
}

// RemoveFromUser unlinks a role from a user.
func (p *PostgreSQLRoleRepository) RemoveFromUser(
	ctx context.Context,
	userID, roleID uuid.UUID,
) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`,
		userID,
		roleID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to remove role")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check removed role")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "role assignment not found")
	}

	return nil
}

// NamesByUser returns the user's role names, ordered.
func (p *PostgreSQLRoleRepository) NamesByUser(
	ctx context.Context,
	userID uuid.UUID,
) ([]string, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT r.name FROM roles r
			  JOIN user_roles ur ON ur.role_id = r.id
			  WHERE ur.user_id = $1
			  ORDER BY r.name ASC`

	rows, err := querier.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list user roles")
	}
	defer func() {
		_ = rows.Close()
	}()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan role name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate role names")
	}

	return names, nil
}

// PostgreSQLPermissionRepository implements permission persistence for
// PostgreSQL.
type PostgreSQLPermissionRepository struct {
	db *sql.DB
}

// NewPostgreSQLPermissionRepository creates a repository bound to the given database.
func NewPostgreSQLPermissionRepository(db *sql.DB) *PostgreSQLPermissionRepository {
	return &PostgreSQLPermissionRepository{db: db}
}

// Create inserts a new permission.
func (p *PostgreSQLPermissionRepository) Create(
	ctx context.Context,
	permission *policyDomain.Permission,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO permissions (id, resource, action) VALUES ($1, $2, $3)`
	_, err := querier.ExecContext(ctx, query, permission.ID, permission.Resource, permission.Action)
	if err != nil {
		return apperrors.Wrap(err, "failed to create permission")
	}

	return nil
}

// AttachToRole links a permission to a role; repeats are no-ops.
func (p *PostgreSQLPermissionRepository) AttachToRole(
	ctx context.Context,
	roleID, permissionID uuid.UUID,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
			  ON CONFLICT (role_id, permission_id) DO NOTHING`
	if _, err := querier.ExecContext(ctx, query, roleID, permissionID); err != nil {
		return apperrors.Wrap(err, "failed to attach permission")
	}

	return nil
}

// ListByUser returns the union of permissions over the user's roles.
func (p *PostgreSQLPermissionRepository) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
) ([]*policyDomain.Permission, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT DISTINCT p.id, p.resource, p.action FROM permissions p
			  JOIN role_permissions rp ON rp.permission_id = p.id
			  JOIN user_roles ur ON ur.role_id = rp.role_id
			  WHERE ur.user_id = $1
			  ORDER BY p.resource, p.action`

	rows, err := querier.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list user permissions")
	}
	defer func() {
		_ = rows.Close()
	}()

	permissions := make([]*policyDomain.Permission, 0)
	for rows.Next() {
		var permission policyDomain.Permission
		if err := rows.Scan(&permission.ID, &permission.Resource, &permission.Action); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan permission")
		}
		permissions = append(permissions, &permission)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate permissions")
	}

	return permissions, nil
}

// PostgreSQLAccessPolicyRepository implements policy document persistence
// for PostgreSQL.
type PostgreSQLAccessPolicyRepository struct {
	db *sql.DB
}

// NewPostgreSQLAccessPolicyRepository creates a repository bound to the given database.
func NewPostgreSQLAccessPolicyRepository(db *sql.DB) *PostgreSQLAccessPolicyRepository {
	return &PostgreSQLAccessPolicyRepository{db: db}
}

// Create inserts a new policy document.
func (p *PostgreSQLAccessPolicyRepository) Create(
	ctx context.Context,
	policy *policyDomain.AccessPolicy,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO access_policies (id, name, document, enabled, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := querier.ExecContext(
		ctx,
		query,
		policy.ID,
		policy.Name,
		policy.Document,
		policy.Enabled,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create access policy")
	}

	return nil
}

// Update persists document and enabled flag changes.
func (p *PostgreSQLAccessPolicyRepository) Update(
	ctx context.Context,
	policy *policyDomain.AccessPolicy,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE access_policies SET document = $1, enabled = $2, updated_at = $3 WHERE id = $4`
	result, err := querier.ExecContext(ctx, query, policy.Document, policy.Enabled, policy.UpdatedAt, policy.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update access policy")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated access policy")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "access policy not found")
	}

	return nil
}

// Delete removes a policy document.
func (p *PostgreSQLAccessPolicyRepository) Delete(ctx context.Context, policyID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM access_policies WHERE id = $1`, policyID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete access policy")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check deleted access policy")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "access policy not found")
	}

	return nil
}

// GetByName retrieves a policy by name.
func (p *PostgreSQLAccessPolicyRepository) GetByName(
	ctx context.Context,
	name string,
) (*policyDomain.AccessPolicy, error) {
	querier := database.GetTx(ctx, p.db)

	var policy policyDomain.AccessPolicy
	err := querier.QueryRowContext(
		ctx,
		`SELECT id, name, document, enabled, created_at, updated_at FROM access_policies WHERE name = $1`,
		name,
	).Scan(&policy.ID, &policy.Name, &policy.Document, &policy.Enabled, &policy.CreatedAt, &policy.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "access policy not found")
		}
		return nil, apperrors.Wrap(err, "failed to get access policy")
	}

	return &policy, nil
}

// ListEnabled returns all enabled policies, ordered by name.
func (p *PostgreSQLAccessPolicyRepository) ListEnabled(
	ctx context.Context,
) ([]*policyDomain.AccessPolicy, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, name, document, enabled, created_at, updated_at
			  FROM access_policies WHERE enabled = true ORDER BY name ASC`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list access policies")
	}
	defer func() {
		_ = rows.Close()
	}()

	policies := make([]*policyDomain.AccessPolicy, 0)
	for rows.Next() {
		var policy policyDomain.AccessPolicy
		err := rows.Scan(
			&policy.ID,
			&policy.Name,
			&policy.Document,
			&policy.Enabled,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan access policy")
		}
		policies = append(policies, &policy)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate access policies")
	}

	return policies, nil
}
