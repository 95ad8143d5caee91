package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
)

const jitColumns = `id, user_id, resource_type, resource_id, access_level,
	duration_minutes, justification, requested_at, granted_at, expires_at,
	revoked_at, revoked_by, revocation_reason, status, approval_id`

// PostgreSQLJitRepository implements just-in-time grant persistence for
// PostgreSQL.
type PostgreSQLJitRepository struct {
	db *sql.DB
}

// NewPostgreSQLJitRepository creates a repository bound to the given database.
func NewPostgreSQLJitRepository(db *sql.DB) *PostgreSQLJitRepository {
	return &PostgreSQLJitRepository{db: db}
}

// Create inserts a new grant.
func (p *PostgreSQLJitRepository) Create(
	ctx context.Context,
	grant *pamDomain.JitAccessGrant,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO jit_grants (` + jitColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := querier.ExecContext(
		ctx,
		query,
		grant.ID,
		grant.UserID,
		grant.ResourceType,
		grant.ResourceID,
		grant.AccessLevel,
		grant.DurationMinutes,
		grant.Justification,
		grant.RequestedAt,
		grant.GrantedAt,
		grant.ExpiresAt,
		grant.RevokedAt,
		grant.RevokedBy,
		grant.RevocationReason,
		grant.Status,
		grant.ApprovalID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create jit grant")
	}

	return nil
}

// GetByID retrieves a grant.
func (p *PostgreSQLJitRepository) GetByID(
	ctx context.Context,
	grantID uuid.UUID,
) (*pamDomain.JitAccessGrant, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(
		ctx, `SELECT `+jitColumns+` FROM jit_grants WHERE id = $1`, grantID,
	)
	return scanJitGrant(row)
}

// Update persists grant state changes.
func (p *PostgreSQLJitRepository) Update(
	ctx context.Context,
	grant *pamDomain.JitAccessGrant,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE jit_grants SET granted_at = $1, expires_at = $2, revoked_at = $3,
			  revoked_by = $4, revocation_reason = $5, status = $6 WHERE id = $7`

	result, err := querier.ExecContext(
		ctx,
		query,
		grant.GrantedAt,
		grant.ExpiresAt,
		grant.RevokedAt,
		grant.RevokedBy,
		grant.RevocationReason,
		grant.Status,
		grant.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update jit grant")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated jit grant")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "jit grant not found")
	}

	return nil
}

// FindActive returns the user's unrevoked, unexpired grant for a resource,
// or ErrNotFound.
func (p *PostgreSQLJitRepository) FindActive(
	ctx context.Context,
	userID uuid.UUID,
	resourceType string,
	resourceID uuid.UUID,
	now time.Time,
) (*pamDomain.JitAccessGrant, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + jitColumns + ` FROM jit_grants
			  WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3
			  AND status = $4 AND revoked_at IS NULL AND granted_at <= $5 AND expires_at > $5
			  LIMIT 1`

	row := querier.QueryRowContext(
		ctx, query, userID, resourceType, resourceID, pamDomain.JitActive, now,
	)
	return scanJitGrant(row)
}

// ListSweepable returns active grants whose expiry passed, for the sweeper.
func (p *PostgreSQLJitRepository) ListSweepable(
	ctx context.Context,
	now time.Time,
) ([]*pamDomain.JitAccessGrant, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + jitColumns + ` FROM jit_grants
			  WHERE status = $1 AND expires_at < $2 ORDER BY expires_at ASC`

	rows, err := querier.QueryContext(ctx, query, pamDomain.JitActive, now)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list sweepable jit grants")
	}
	defer func() {
		_ = rows.Close()
	}()

	grants := make([]*pamDomain.JitAccessGrant, 0)
	for rows.Next() {
		grant, err := scanJitGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate jit grants")
	}

	return grants, nil
}

func scanJitGrant(row rowScanner) (*pamDomain.JitAccessGrant, error) {
	var grant pamDomain.JitAccessGrant
	err := row.Scan(
		&grant.ID,
		&grant.UserID,
		&grant.ResourceType,
		&grant.ResourceID,
		&grant.AccessLevel,
		&grant.DurationMinutes,
		&grant.Justification,
		&grant.RequestedAt,
		&grant.GrantedAt,
		&grant.ExpiresAt,
		&grant.RevokedAt,
		&grant.RevokedBy,
		&grant.RevocationReason,
		&grant.Status,
		&grant.ApprovalID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "jit grant not found")
		}
		return nil, apperrors.Wrap(err, "failed to scan jit grant")
	}
	return &grant, nil
}
