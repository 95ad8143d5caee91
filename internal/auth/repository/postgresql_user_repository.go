// Package repository implements authentication persistence for PostgreSQL:
// users, sessions, devices, and MFA state.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	authDomain "github.com/allisson/usp/internal/auth/domain"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
)

const userColumns = `id, username, name, email, given_name, family_name, password_hash,
				  failed_login_attempts, locked_until, last_login_at, last_login_ip,
				  last_login_country, created_at, updated_at`

// PostgreSQLUserRepository implements user persistence for PostgreSQL.
// Supports transaction-aware operations via database.GetTx.
type PostgreSQLUserRepository struct {
	db *sql.DB
}

// NewPostgreSQLUserRepository creates a repository bound to the given database.
func NewPostgreSQLUserRepository(db *sql.DB) *PostgreSQLUserRepository {
	return &PostgreSQLUserRepository{db: db}
}

// Create inserts a new user row.
func (p *PostgreSQLUserRepository) Create(ctx context.Context, user *authDomain.User) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO users (` + userColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := querier.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Name,
		user.Email,
		user.GivenName,
		user.FamilyName,
		user.PasswordHash,
		user.FailedLoginAttempts,
		user.LockedUntil,
		user.LastLoginAt,
		user.LastLoginIP,
		user.LastLoginCountry,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create user")
	}

	return nil
}

// GetByUsername retrieves a user by normalized username.
func (p *PostgreSQLUserRepository) GetByUsername(
	ctx context.Context,
	username string,
) (*authDomain.User, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(querier.QueryRowContext(ctx, query, username))
}

// GetByID retrieves a user by id.
func (p *PostgreSQLUserRepository) GetByID(
	ctx context.Context,
	userID uuid.UUID,
) (*authDomain.User, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(querier.QueryRowContext(ctx, query, userID))
}

// Update persists all mutable user fields.
func (p *PostgreSQLUserRepository) Update(ctx context.Context, user *authDomain.User) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE users
			  SET name = $1, email = $2, given_name = $3, family_name = $4,
				  password_hash = $5, failed_login_attempts = $6, locked_until = $7,
				  last_login_at = $8, last_login_ip = $9, last_login_country = $10,
				  updated_at = $11
			  WHERE id = $12`

	result, err := querier.ExecContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.GivenName,
		user.FamilyName,
		user.PasswordHash,
		user.FailedLoginAttempts,
		user.LockedUntil,
		user.LastLoginAt,
		user.LastLoginIP,
		user.LastLoginCountry,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update user")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated user")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "user not found")
	}

	return nil
}

// Delete removes a user row.
func (p *PostgreSQLUserRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete user")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check deleted user")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "user not found")
	}

	return nil
}

func scanUser(row *sql.Row) (*authDomain.User, error) {
	var user authDomain.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Email,
		&user.GivenName,
		&user.FamilyName,
		&user.PasswordHash,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.LastLoginAt,
		&user.LastLoginIP,
		&user.LastLoginCountry,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "user not found")
		}
		return nil, apperrors.Wrap(err, "failed to get user")
	}

	return &user, nil
}

// PostgreSQLDeviceRepository tracks device fingerprints seen per user, feeding
// the unknown-device risk factor.
type PostgreSQLDeviceRepository struct {
	db *sql.DB
}

// NewPostgreSQLDeviceRepository creates a repository bound to the given database.
func NewPostgreSQLDeviceRepository(db *sql.DB) *PostgreSQLDeviceRepository {
	return &PostgreSQLDeviceRepository{db: db}
}

// Seen reports whether the fingerprint was recorded for the user before.
func (p *PostgreSQLDeviceRepository) Seen(
	ctx context.Context,
	userID uuid.UUID,
	fingerprint string,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	var exists bool
	err := querier.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM user_devices WHERE user_id = $1 AND fingerprint = $2)`,
		userID,
		fingerprint,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check user device")
	}

	return exists, nil
}

// Remember records a fingerprint for the user; repeats are no-ops.
func (p *PostgreSQLDeviceRepository) Remember(
	ctx context.Context,
	userID uuid.UUID,
	fingerprint string,
	seenAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO user_devices (user_id, fingerprint, first_seen_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (user_id, fingerprint) DO NOTHING`

	if _, err := querier.ExecContext(ctx, query, userID, fingerprint, seenAt); err != nil {
		return apperrors.Wrap(err, "failed to remember user device")
	}

	return nil
}
