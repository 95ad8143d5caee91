package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	authDomain "github.com/allisson/usp/internal/auth/domain"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
)

// PostgreSQLMfaRepository implements MFA enrollment and challenge persistence
// for PostgreSQL. Backup code hashes are stored as a JSON array column.
type PostgreSQLMfaRepository struct {
	db *sql.DB
}

// NewPostgreSQLMfaRepository creates a repository bound to the given database.
func NewPostgreSQLMfaRepository(db *sql.DB) *PostgreSQLMfaRepository {
	return &PostgreSQLMfaRepository{db: db}
}

// UpsertEnrollment creates or replaces a user's MFA enrollment.
func (p *PostgreSQLMfaRepository) UpsertEnrollment(
	ctx context.Context,
	enrollment *authDomain.MfaEnrollment,
) error {
	querier := database.GetTx(ctx, p.db)

	codes, err := json.Marshal(enrollment.BackupCodeHashes)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode backup codes")
	}

	query := `INSERT INTO mfa_enrollments (user_id, encrypted_totp_secret, backup_code_hashes, otp_destination, updated_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (user_id) DO UPDATE
			  SET encrypted_totp_secret = EXCLUDED.encrypted_totp_secret,
				  backup_code_hashes = EXCLUDED.backup_code_hashes,
				  otp_destination = EXCLUDED.otp_destination,
				  updated_at = EXCLUDED.updated_at`

	_, err = querier.ExecContext(
		ctx,
		query,
		enrollment.UserID,
		enrollment.EncryptedTotpSecret,
		codes,
		enrollment.OtpDestination,
		enrollment.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert mfa enrollment")
	}

	return nil
}

// GetEnrollment retrieves a user's MFA enrollment.
func (p *PostgreSQLMfaRepository) GetEnrollment(
	ctx context.Context,
	userID uuid.UUID,
) (*authDomain.MfaEnrollment, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT user_id, encrypted_totp_secret, backup_code_hashes, otp_destination, updated_at
			  FROM mfa_enrollments WHERE user_id = $1`

	var enrollment authDomain.MfaEnrollment
	var codes []byte
	err := querier.QueryRowContext(ctx, query, userID).Scan(
		&enrollment.UserID,
		&enrollment.EncryptedTotpSecret,
		&codes,
		&enrollment.OtpDestination,
		&enrollment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "mfa enrollment not found")
		}
		return nil, apperrors.Wrap(err, "failed to get mfa enrollment")
	}

	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &enrollment.BackupCodeHashes); err != nil {
			return nil, apperrors.Wrap(err, "failed to decode backup codes")
		}
	}

	return &enrollment, nil
}

// CreateChallenge inserts a new MFA or step-up challenge.
func (p *PostgreSQLMfaRepository) CreateChallenge(
	ctx context.Context,
	challenge *authDomain.MfaChallenge,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO mfa_challenges (id, user_id, purpose, resource_path, token_hash, otp_hash,
				  ip_address, user_agent, completed_at, expires_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier.ExecContext(
		ctx,
		query,
		challenge.ID,
		challenge.UserID,
		string(challenge.Purpose),
		challenge.ResourcePath,
		challenge.TokenHash,
		challenge.OtpHash,
		challenge.IPAddress,
		challenge.UserAgent,
		challenge.CompletedAt,
		challenge.ExpiresAt,
		challenge.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create mfa challenge")
	}

	return nil
}

// GetChallengeByTokenHash retrieves a challenge by its token hash.
func (p *PostgreSQLMfaRepository) GetChallengeByTokenHash(
	ctx context.Context,
	tokenHash string,
) (*authDomain.MfaChallenge, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, user_id, purpose, resource_path, token_hash, otp_hash, ip_address,
				  user_agent, completed_at, expires_at, created_at
			  FROM mfa_challenges WHERE token_hash = $1`

	return scanChallenge(querier.QueryRowContext(ctx, query, tokenHash))
}

// GetActiveStepUp finds a completed unexpired step-up challenge for a user
// and resource path.
func (p *PostgreSQLMfaRepository) GetActiveStepUp(
	ctx context.Context,
	userID uuid.UUID,
	resourcePath string,
	now time.Time,
) (*authDomain.MfaChallenge, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, user_id, purpose, resource_path, token_hash, otp_hash, ip_address,
				  user_agent, completed_at, expires_at, created_at
			  FROM mfa_challenges
			  WHERE user_id = $1 AND purpose = $2 AND resource_path = $3
				  AND completed_at IS NOT NULL AND expires_at > $4
			  ORDER BY completed_at DESC
			  LIMIT 1`

	return scanChallenge(querier.QueryRowContext(
		ctx, query, userID, string(authDomain.PurposeStepUp), resourcePath, now,
	))
}

// UpdateChallenge persists completion and OTP consumption.
func (p *PostgreSQLMfaRepository) UpdateChallenge(
	ctx context.Context,
	challenge *authDomain.MfaChallenge,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE mfa_challenges
			  SET otp_hash = $1, completed_at = $2, expires_at = $3
			  WHERE id = $4`

	result, err := querier.ExecContext(
		ctx,
		query,
		challenge.OtpHash,
		challenge.CompletedAt,
		challenge.ExpiresAt,
		challenge.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update mfa challenge")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated mfa challenge")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "mfa challenge not found")
	}

	return nil
}

// DeleteExpiredChallenges removes challenges expired before the cutoff.
func (p *PostgreSQLMfaRepository) DeleteExpiredChallenges(
	ctx context.Context,
	before time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM mfa_challenges WHERE expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired mfa challenges")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to check deleted mfa challenges")
	}

	return affected, nil
}

func scanChallenge(row *sql.Row) (*authDomain.MfaChallenge, error) {
	var c authDomain.MfaChallenge
	var purpose string
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&purpose,
		&c.ResourcePath,
		&c.TokenHash,
		&c.OtpHash,
		&c.IPAddress,
		&c.UserAgent,
		&c.CompletedAt,
		&c.ExpiresAt,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "mfa challenge not found")
		}
		return nil, apperrors.Wrap(err, "failed to get mfa challenge")
	}
	c.Purpose = authDomain.ChallengePurpose(purpose)

	return &c, nil
}
