// Package repository implements PAM persistence for PostgreSQL: safes and
// their ACLs, privileged accounts, checkouts, approvals, recorded sessions,
// and just-in-time grants.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
)

const safeColumns = `id, name, description, owner_id, require_approval,
	require_dual_control, max_checkout_duration_minutes, rotate_on_checkin,
	session_recording_enabled, created_at, updated_at`

// PostgreSQLSafeRepository implements safe persistence for PostgreSQL.
type PostgreSQLSafeRepository struct {
	db *sql.DB
}

// NewPostgreSQLSafeRepository creates a repository bound to the given database.
func NewPostgreSQLSafeRepository(db *sql.DB) *PostgreSQLSafeRepository {
	return &PostgreSQLSafeRepository{db: db}
}

// Create inserts a new safe.
func (p *PostgreSQLSafeRepository) Create(ctx context.Context, safe *pamDomain.Safe) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO safes (` + safeColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier.ExecContext(
		ctx,
		query,
		safe.ID,
		safe.Name,
		safe.Description,
		safe.OwnerID,
		safe.RequireApproval,
		safe.RequireDualControl,
		safe.MaxCheckoutDurationMinutes,
		safe.RotateOnCheckin,
		safe.SessionRecordingEnabled,
		safe.CreatedAt,
		safe.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create safe")
	}

	return nil
}

// GetByID retrieves a safe.
func (p *PostgreSQLSafeRepository) GetByID(
	ctx context.Context,
	safeID uuid.UUID,
) (*pamDomain.Safe, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(
		ctx, `SELECT `+safeColumns+` FROM safes WHERE id = $1`, safeID,
	)
	return scanSafe(row)
}

// GetByName retrieves a safe by its unique name.
func (p *PostgreSQLSafeRepository) GetByName(
	ctx context.Context,
	name string,
) (*pamDomain.Safe, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(
		ctx, `SELECT `+safeColumns+` FROM safes WHERE name = $1`, name,
	)
	return scanSafe(row)
}

// Update persists safe policy changes.
func (p *PostgreSQLSafeRepository) Update(ctx context.Context, safe *pamDomain.Safe) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE safes SET name = $1, description = $2, require_approval = $3,
			  require_dual_control = $4, max_checkout_duration_minutes = $5,
			  rotate_on_checkin = $6, session_recording_enabled = $7, updated_at = $8
			  WHERE id = $9`

	result, err := querier.ExecContext(
		ctx,
		query,
		safe.Name,
		safe.Description,
		safe.RequireApproval,
		safe.RequireDualControl,
		safe.MaxCheckoutDurationMinutes,
		safe.RotateOnCheckin,
		safe.SessionRecordingEnabled,
		safe.UpdatedAt,
		safe.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update safe")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated safe")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "safe not found")
	}

	return nil
}

// Delete removes a safe and its ACL entries.
func (p *PostgreSQLSafeRepository) Delete(ctx context.Context, safeID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	if _, err := querier.ExecContext(ctx, `DELETE FROM safe_acl WHERE safe_id = $1`, safeID); err != nil {
		return apperrors.Wrap(err, "failed to delete safe acl")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM safes WHERE id = $1`, safeID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete safe")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check deleted safe")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "safe not found")
	}

	return nil
}

// ListByUser returns safes the user owns or is listed on, ordered by name.
func (p *PostgreSQLSafeRepository) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
) ([]*pamDomain.Safe, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT DISTINCT s.id, s.name, s.description, s.owner_id, s.require_approval,
			  s.require_dual_control, s.max_checkout_duration_minutes, s.rotate_on_checkin,
			  s.session_recording_enabled, s.created_at, s.updated_at
			  FROM safes s
			  LEFT JOIN safe_acl a ON a.safe_id = s.id
			  WHERE s.owner_id = $1 OR a.user_id = $1
			  ORDER BY s.name ASC`

	rows, err := querier.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list safes")
	}
	defer func() {
		_ = rows.Close()
	}()

	safes := make([]*pamDomain.Safe, 0)
	for rows.Next() {
		safe, err := scanSafe(rows)
		if err != nil {
			return nil, err
		}
		safes = append(safes, safe)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate safes")
	}

	return safes, nil
}

// ListAcl returns all ACL entries of a safe.
func (p *PostgreSQLSafeRepository) ListAcl(
	ctx context.Context,
	safeID uuid.UUID,
) ([]pamDomain.AclEntry, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(
		ctx,
		`SELECT safe_id, user_id, permission FROM safe_acl WHERE safe_id = $1`,
		safeID,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list safe acl")
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]pamDomain.AclEntry, 0)
	for rows.Next() {
		var entry pamDomain.AclEntry
		if err := rows.Scan(&entry.SafeID, &entry.UserID, &entry.Permission); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan acl entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate safe acl")
	}

	return entries, nil
}

// GrantAcl sets a user's permission on a safe, replacing a previous grant.
func (p *PostgreSQLSafeRepository) GrantAcl(ctx context.Context, entry pamDomain.AclEntry) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO safe_acl (safe_id, user_id, permission) VALUES ($1, $2, $3)
			  ON CONFLICT (safe_id, user_id) DO UPDATE SET permission = $3`

	if _, err := querier.ExecContext(ctx, query, entry.SafeID, entry.UserID, entry.Permission); err != nil {
		return apperrors.Wrap(err, "failed to grant safe acl")
	}

	return nil
}

// RevokeAcl removes a user's grant on a safe.
func (p *PostgreSQLSafeRepository) RevokeAcl(
	ctx context.Context,
	safeID, userID uuid.UUID,
) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM safe_acl WHERE safe_id = $1 AND user_id = $2`,
		safeID,
		userID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to revoke safe acl")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check revoked safe acl")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "acl entry not found")
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSafe(row rowScanner) (*pamDomain.Safe, error) {
	var safe pamDomain.Safe
	err := row.Scan(
		&safe.ID,
		&safe.Name,
		&safe.Description,
		&safe.OwnerID,
		&safe.RequireApproval,
		&safe.RequireDualControl,
		&safe.MaxCheckoutDurationMinutes,
		&safe.RotateOnCheckin,
		&safe.SessionRecordingEnabled,
		&safe.CreatedAt,
		&safe.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "safe not found")
		}
		return nil, apperrors.Wrap(err, "failed to scan safe")
	}
	return &safe, nil
}
