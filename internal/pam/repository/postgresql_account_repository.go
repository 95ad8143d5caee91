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

const accountColumns = `id, safe_id, account_name, username, encrypted_password,
	platform, host, port, database_name, rotation_policy, rotation_interval_days,
	last_rotated, next_rotation, status, created_at, updated_at`

// PostgreSQLAccountRepository implements privileged account persistence for
// PostgreSQL.
type PostgreSQLAccountRepository struct {
	db *sql.DB
}

// NewPostgreSQLAccountRepository creates a repository bound to the given database.
func NewPostgreSQLAccountRepository(db *sql.DB) *PostgreSQLAccountRepository {
	return &PostgreSQLAccountRepository{db: db}
}

// Create inserts a new privileged account.
func (p *PostgreSQLAccountRepository) Create(
	ctx context.Context,
	account *pamDomain.PrivilegedAccount,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO privileged_accounts (` + accountColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := querier.ExecContext(
		ctx,
		query,
		account.ID,
		account.SafeID,
		account.AccountName,
		account.Username,
		account.EncryptedPassword,
		account.Platform,
		account.Host,
		account.Port,
		account.Database,
		account.RotationPolicy,
		account.RotationIntervalDays,
		account.LastRotated,
		account.NextRotation,
		account.Status,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create privileged account")
	}

	return nil
}

// GetByID retrieves an account.
func (p *PostgreSQLAccountRepository) GetByID(
	ctx context.Context,
	accountID uuid.UUID,
) (*pamDomain.PrivilegedAccount, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(
		ctx, `SELECT `+accountColumns+` FROM privileged_accounts WHERE id = $1`, accountID,
	)
	return scanAccount(row)
}

// GetByIDForUpdate retrieves an account under a row lock; must run inside a
// transaction.
func (p *PostgreSQLAccountRepository) GetByIDForUpdate(
	ctx context.Context,
	accountID uuid.UUID,
) (*pamDomain.PrivilegedAccount, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(
		ctx,
		`SELECT `+accountColumns+` FROM privileged_accounts WHERE id = $1 FOR UPDATE`,
		accountID,
	)
	return scanAccount(row)
}

// Update persists account changes.
func (p *PostgreSQLAccountRepository) Update(
	ctx context.Context,
	account *pamDomain.PrivilegedAccount,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE privileged_accounts SET encrypted_password = $1, rotation_policy = $2,
			  rotation_interval_days = $3, last_rotated = $4, next_rotation = $5,
			  status = $6, updated_at = $7 WHERE id = $8`

	result, err := querier.ExecContext(
		ctx,
		query,
		account.EncryptedPassword,
		account.RotationPolicy,
		account.RotationIntervalDays,
		account.LastRotated,
		account.NextRotation,
		account.Status,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update privileged account")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated privileged account")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "privileged account not found")
	}

	return nil
}

// Delete removes an account.
func (p *PostgreSQLAccountRepository) Delete(ctx context.Context, accountID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM privileged_accounts WHERE id = $1`, accountID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete privileged account")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check deleted privileged account")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "privileged account not found")
	}

	return nil
}

// ListBySafe returns all accounts of a safe, ordered by account name.
func (p *PostgreSQLAccountRepository) ListBySafe(
	ctx context.Context,
	safeID uuid.UUID,
) ([]*pamDomain.PrivilegedAccount, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + accountColumns + ` FROM privileged_accounts
			  WHERE safe_id = $1 ORDER BY account_name ASC`

	rows, err := querier.QueryContext(ctx, query, safeID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list privileged accounts")
	}
	return collectAccounts(rows)
}

// ListRotationDue returns scheduled-rotation accounts whose next rotation
// has passed.
func (p *PostgreSQLAccountRepository) ListRotationDue(
	ctx context.Context,
	now time.Time,
) ([]*pamDomain.PrivilegedAccount, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + accountColumns + ` FROM privileged_accounts
			  WHERE rotation_policy = $1 AND status = $2 AND next_rotation < $3
			  ORDER BY next_rotation ASC`

	rows, err := querier.QueryContext(ctx, query, pamDomain.RotationScheduled, pamDomain.AccountActive, now)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list rotation-due accounts")
	}
	return collectAccounts(rows)
}

func collectAccounts(rows *sql.Rows) ([]*pamDomain.PrivilegedAccount, error) {
	defer func() {
		_ = rows.Close()
	}()

	accounts := make([]*pamDomain.PrivilegedAccount, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate privileged accounts")
	}

	return accounts, nil
}

func scanAccount(row rowScanner) (*pamDomain.PrivilegedAccount, error) {
	var account pamDomain.PrivilegedAccount
	err := row.Scan(
		&account.ID,
		&account.SafeID,
		&account.AccountName,
		&account.Username,
		&account.EncryptedPassword,
		&account.Platform,
		&account.Host,
		&account.Port,
		&account.Database,
		&account.RotationPolicy,
		&account.RotationIntervalDays,
		&account.LastRotated,
		&account.NextRotation,
		&account.Status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "privileged account not found")
		}
		return nil, apperrors.Wrap(err, "failed to scan privileged account")
	}
	return &account, nil
}
