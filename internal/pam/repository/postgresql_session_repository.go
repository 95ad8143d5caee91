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

const pamSessionColumns = `id, checkout_id, account_id, user_id, protocol,
	platform, started_at, ended_at, command_count, suspicious_activity_detected,
	recording_format`

// PostgreSQLPamSessionRepository implements privileged session recording
// persistence for PostgreSQL.
type PostgreSQLPamSessionRepository struct {
	db *sql.DB
}

// NewPostgreSQLPamSessionRepository creates a repository bound to the given database.
func NewPostgreSQLPamSessionRepository(db *sql.DB) *PostgreSQLPamSessionRepository {
	return &PostgreSQLPamSessionRepository{db: db}
}

// Create inserts a new session.
func (p *PostgreSQLPamSessionRepository) Create(
	ctx context.Context,
	session *pamDomain.PrivilegedSession,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO privileged_sessions (` + pamSessionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier.ExecContext(
		ctx,
		query,
		session.ID,
		session.CheckoutID,
		session.AccountID,
		session.UserID,
		session.Protocol,
		session.Platform,
		session.StartedAt,
		session.EndedAt,
		session.CommandCount,
		session.SuspiciousActivityDetected,
		session.RecordingFormat,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create privileged session")
	}

	return nil
}

// GetByID retrieves a session.
func (p *PostgreSQLPamSessionRepository) GetByID(
	ctx context.Context,
	sessionID uuid.UUID,
) (*pamDomain.PrivilegedSession, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(
		ctx, `SELECT `+pamSessionColumns+` FROM privileged_sessions WHERE id = $1`, sessionID,
	)
	return scanPamSession(row)
}

// GetByIDForUpdate retrieves a session under a row lock so sequence numbers
// assign serially; must run inside a transaction.
func (p *PostgreSQLPamSessionRepository) GetByIDForUpdate(
	ctx context.Context,
	sessionID uuid.UUID,
) (*pamDomain.PrivilegedSession, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(
		ctx,
		`SELECT `+pamSessionColumns+` FROM privileged_sessions WHERE id = $1 FOR UPDATE`,
		sessionID,
	)
	return scanPamSession(row)
}

// GetByCheckout retrieves the session linked to a checkout.
func (p *PostgreSQLPamSessionRepository) GetByCheckout(
	ctx context.Context,
	checkoutID uuid.UUID,
) (*pamDomain.PrivilegedSession, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(
		ctx,
		`SELECT `+pamSessionColumns+` FROM privileged_sessions WHERE checkout_id = $1`,
		checkoutID,
	)
	return scanPamSession(row)
}

// Update persists session counters and end time.
func (p *PostgreSQLPamSessionRepository) Update(
	ctx context.Context,
	session *pamDomain.PrivilegedSession,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE privileged_sessions SET ended_at = $1, command_count = $2,
			  suspicious_activity_detected = $3 WHERE id = $4`

	result, err := querier.ExecContext(
		ctx,
		query,
		session.EndedAt,
		session.CommandCount,
		session.SuspiciousActivityDetected,
		session.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update privileged session")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated privileged session")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "privileged session not found")
	}

	return nil
}

// AppendCommand inserts one recorded command. Uniqueness of
// (session_id, sequence_number) is enforced by the schema.
func (p *PostgreSQLPamSessionRepository) AppendCommand(
	ctx context.Context,
	command *pamDomain.SessionCommand,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO session_commands (id, session_id, sequence_number, command,
			  response, executed_at, suspicious) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(
		ctx,
		query,
		command.ID,
		command.SessionID,
		command.SequenceNumber,
		command.Command,
		command.Response,
		command.ExecutedAt,
		command.Suspicious,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to append session command")
	}

	return nil
}

// ListCommands returns all commands of a session in sequence order.
func (p *PostgreSQLPamSessionRepository) ListCommands(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]pamDomain.SessionCommand, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, session_id, sequence_number, command, response, executed_at, suspicious
			  FROM session_commands WHERE session_id = $1 ORDER BY sequence_number ASC`

	rows, err := querier.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list session commands")
	}
	defer func() {
		_ = rows.Close()
	}()

	commands := make([]pamDomain.SessionCommand, 0)
	for rows.Next() {
		var command pamDomain.SessionCommand
		err := rows.Scan(
			&command.ID,
			&command.SessionID,
			&command.SequenceNumber,
			&command.Command,
			&command.Response,
			&command.ExecutedAt,
			&command.Suspicious,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan session command")
		}
		commands = append(commands, command)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate session commands")
	}

	return commands, nil
}

func scanPamSession(row rowScanner) (*pamDomain.PrivilegedSession, error) {
	var session pamDomain.PrivilegedSession
	err := row.Scan(
		&session.ID,
		&session.CheckoutID,
		&session.AccountID,
		&session.UserID,
		&session.Protocol,
		&session.Platform,
		&session.StartedAt,
		&session.EndedAt,
		&session.CommandCount,
		&session.SuspiciousActivityDetected,
		&session.RecordingFormat,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "privileged session not found")
		}
		return nil, apperrors.Wrap(err, "failed to scan privileged session")
	}
	return &session, nil
}
