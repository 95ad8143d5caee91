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

const sessionColumns = `id, user_id, token_hash, refresh_token_hash, ip_address, user_agent,
				  created_at, expires_at, last_activity, revoked`

// PostgreSQLSessionRepository implements session persistence for PostgreSQL.
// Supports transaction-aware operations via database.GetTx.
type PostgreSQLSessionRepository struct {
	db *sql.DB
}

// NewPostgreSQLSessionRepository creates a repository bound to the given database.
func NewPostgreSQLSessionRepository(db *sql.DB) *PostgreSQLSessionRepository {
	return &PostgreSQLSessionRepository{db: db}
}

// Create inserts a new session row.
func (p *PostgreSQLSessionRepository) Create(ctx context.Context, session *authDomain.Session) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO sessions (` + sessionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.RefreshTokenHash,
		session.IPAddress,
		session.UserAgent,
		session.CreatedAt,
		session.ExpiresAt,
		session.LastActivity,
		session.Revoked,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create session")
	}

	return nil
}

// GetByTokenHash retrieves a session by access token hash.
func (p *PostgreSQLSessionRepository) GetByTokenHash(
	ctx context.Context,
	tokenHash string,
) (*authDomain.Session, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`
	return scanSession(querier.QueryRowContext(ctx, query, tokenHash))
}

// GetByRefreshTokenHash retrieves a session by refresh token hash, revoked or
// not; the use case needs revoked rows to detect replay.
func (p *PostgreSQLSessionRepository) GetByRefreshTokenHash(
	ctx context.Context,
	refreshTokenHash string,
) (*authDomain.Session, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = $1`
	return scanSession(querier.QueryRowContext(ctx, query, refreshTokenHash))
}

// Update persists rotated hashes, activity, and revocation.
func (p *PostgreSQLSessionRepository) Update(ctx context.Context, session *authDomain.Session) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE sessions
			  SET token_hash = $1, refresh_token_hash = $2, expires_at = $3,
				  last_activity = $4, revoked = $5
			  WHERE id = $6`

	result, err := querier.ExecContext(
		ctx,
		query,
		session.TokenHash,
		session.RefreshTokenHash,
		session.ExpiresAt,
		session.LastActivity,
		session.Revoked,
		session.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update session")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated session")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "session not found")
	}

	return nil
}

// ListActiveByUser returns non-revoked unexpired sessions for a user ordered
// by last activity, oldest first, so the caller can evict from the front.
func (p *PostgreSQLSessionRepository) ListActiveByUser(
	ctx context.Context,
	userID uuid.UUID,
	now time.Time,
) ([]*authDomain.Session, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + sessionColumns + ` FROM sessions
			  WHERE user_id = $1 AND revoked = false AND expires_at > $2
			  ORDER BY last_activity ASC`

	rows, err := querier.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list sessions")
	}
	defer func() {
		_ = rows.Close()
	}()

	sessions := make([]*authDomain.Session, 0)
	for rows.Next() {
		var s authDomain.Session
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.TokenHash,
			&s.RefreshTokenHash,
			&s.IPAddress,
			&s.UserAgent,
			&s.CreatedAt,
			&s.ExpiresAt,
			&s.LastActivity,
			&s.Revoked,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan session")
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate sessions")
	}

	return sessions, nil
}

// RevokeAllByUser marks every session of a user revoked and returns how many
// rows changed.
func (p *PostgreSQLSessionRepository) RevokeAllByUser(
	ctx context.Context,
	userID uuid.UUID,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`UPDATE sessions SET revoked = true WHERE user_id = $1 AND revoked = false`,
		userID,
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to revoke sessions")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to check revoked sessions")
	}

	return affected, nil
}

// DeleteExpired removes sessions that expired before the cutoff and returns
// the number removed.
func (p *PostgreSQLSessionRepository) DeleteExpired(
	ctx context.Context,
	before time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM sessions WHERE expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired sessions")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to check deleted sessions")
	}

	return affected, nil
}

func scanSession(row *sql.Row) (*authDomain.Session, error) {
	var s authDomain.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.RefreshTokenHash,
		&s.IPAddress,
		&s.UserAgent,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.LastActivity,
		&s.Revoked,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "session not found")
		}
		return nil, apperrors.Wrap(err, "failed to get session")
	}

	return &s, nil
}
