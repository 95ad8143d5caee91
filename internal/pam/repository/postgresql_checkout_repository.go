package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
)

const checkoutColumns = `id, account_id, user_id, reason, duration_minutes,
	rotate_on_checkin, status, approval_id, requested_at, approved_at,
	checked_out_at, checked_in_at, expires_at, notes`

// PostgreSQLCheckoutRepository implements checkout persistence for PostgreSQL.
type PostgreSQLCheckoutRepository struct {
	db *sql.DB
}

// NewPostgreSQLCheckoutRepository creates a repository bound to the given database.
func NewPostgreSQLCheckoutRepository(db *sql.DB) *PostgreSQLCheckoutRepository {
	return &PostgreSQLCheckoutRepository{db: db}
}

// Create inserts a new checkout.
func (p *PostgreSQLCheckoutRepository) Create(
	ctx context.Context,
	checkout *pamDomain.Checkout,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO checkouts (` + checkoutColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := querier.ExecContext(
		ctx,
		query,
		checkout.ID,
		checkout.AccountID,
		checkout.UserID,
		checkout.Reason,
		checkout.DurationMinutes,
		checkout.RotateOnCheckin,
		checkout.Status,
		checkout.ApprovalID,
		checkout.RequestedAt,
		checkout.ApprovedAt,
		checkout.CheckedOutAt,
		checkout.CheckedInAt,
		checkout.ExpiresAt,
		checkout.Notes,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create checkout")
	}

	return nil
}

// GetByID retrieves a checkout.
func (p *PostgreSQLCheckoutRepository) GetByID(
	ctx context.Context,
	checkoutID uuid.UUID,
) (*pamDomain.Checkout, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(
		ctx, `SELECT `+checkoutColumns+` FROM checkouts WHERE id = $1`, checkoutID,
	)
	return scanCheckout(row)
}

// GetByIDForUpdate retrieves a checkout under a row lock so state
// transitions serialize; must run inside a transaction.
func (p *PostgreSQLCheckoutRepository) GetByIDForUpdate(
	ctx context.Context,
	checkoutID uuid.UUID,
) (*pamDomain.Checkout, error) {
	querier := database.GetTx(ctx, p.db)

	row := querier.QueryRowContext(
		ctx,
		`SELECT `+checkoutColumns+` FROM checkouts WHERE id = $1 FOR UPDATE`,
		checkoutID,
	)
	return scanCheckout(row)
}

// GetOpenByAccount returns the account's non-terminal checkout, if any.
func (p *PostgreSQLCheckoutRepository) GetOpenByAccount(
	ctx context.Context,
	accountID uuid.UUID,
) (*pamDomain.Checkout, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + checkoutColumns + ` FROM checkouts
			  WHERE account_id = $1 AND status IN ($2, $3) LIMIT 1`

	row := querier.QueryRowContext(
		ctx, query, accountID, pamDomain.CheckoutPending, pamDomain.CheckoutActive,
	)
	return scanCheckout(row)
}

// Update persists checkout state changes.
func (p *PostgreSQLCheckoutRepository) Update(
	ctx context.Context,
	checkout *pamDomain.Checkout,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE checkouts SET status = $1, approval_id = $2, approved_at = $3,
			  checked_out_at = $4, checked_in_at = $5, expires_at = $6, notes = $7
			  WHERE id = $8`

	result, err := querier.ExecContext(
		ctx,
		query,
		checkout.Status,
		checkout.ApprovalID,
		checkout.ApprovedAt,
		checkout.CheckedOutAt,
		checkout.CheckedInAt,
		checkout.ExpiresAt,
		checkout.Notes,
		checkout.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update checkout")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated checkout")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "checkout not found")
	}

	return nil
}

// ListOverdue returns active checkouts whose window elapsed, for the reaper.
func (p *PostgreSQLCheckoutRepository) ListOverdue(
	ctx context.Context,
	now time.Time,
) ([]*pamDomain.Checkout, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + checkoutColumns + ` FROM checkouts
			  WHERE status = $1 AND expires_at < $2 ORDER BY expires_at ASC`

	rows, err := querier.QueryContext(ctx, query, pamDomain.CheckoutActive, now)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list overdue checkouts")
	}
	defer func() {
		_ = rows.Close()
	}()

	checkouts := make([]*pamDomain.Checkout, 0)
	for rows.Next() {
		checkout, err := scanCheckout(rows)
		if err != nil {
			return nil, err
		}
		checkouts = append(checkouts, checkout)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate overdue checkouts")
	}

	return checkouts, nil
}

func scanCheckout(row rowScanner) (*pamDomain.Checkout, error) {
	var checkout pamDomain.Checkout
	err := row.Scan(
		&checkout.ID,
		&checkout.AccountID,
		&checkout.UserID,
		&checkout.Reason,
		&checkout.DurationMinutes,
		&checkout.RotateOnCheckin,
		&checkout.Status,
		&checkout.ApprovalID,
		&checkout.RequestedAt,
		&checkout.ApprovedAt,
		&checkout.CheckedOutAt,
		&checkout.CheckedInAt,
		&checkout.ExpiresAt,
		&checkout.Notes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "checkout not found")
		}
		return nil, apperrors.Wrap(err, "failed to scan checkout")
	}
	return &checkout, nil
}

// PostgreSQLApprovalRepository implements access approval persistence for
// PostgreSQL. Approver lists and actions are stored as JSON documents.
type PostgreSQLApprovalRepository struct {
	db *sql.DB
}

// NewPostgreSQLApprovalRepository creates a repository bound to the given database.
func NewPostgreSQLApprovalRepository(db *sql.DB) *PostgreSQLApprovalRepository {
	return &PostgreSQLApprovalRepository{db: db}
}

// Create inserts a new approval.
func (p *PostgreSQLApprovalRepository) Create(
	ctx context.Context,
	approval *pamDomain.AccessApproval,
) error {
	querier := database.GetTx(ctx, p.db)

	approvers, actions, err := marshalApproval(approval)
	if err != nil {
		return err
	}

	query := `INSERT INTO access_approvals (id, requester_id, resource_type, resource_id,
			  policy, approvers, actions, status, expires_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = querier.ExecContext(
		ctx,
		query,
		approval.ID,
		approval.RequesterID,
		approval.ResourceType,
		approval.ResourceID,
		approval.Policy,
		approvers,
		actions,
		approval.Status,
		approval.ExpiresAt,
		approval.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create approval")
	}

	return nil
}

// GetByIDForUpdate retrieves an approval under a row lock so concurrent
// approver actions serialize; must run inside a transaction.
func (p *PostgreSQLApprovalRepository) GetByIDForUpdate(
	ctx context.Context,
	approvalID uuid.UUID,
) (*pamDomain.AccessApproval, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, requester_id, resource_type, resource_id, policy,
			  approvers, actions, status, expires_at, created_at
			  FROM access_approvals WHERE id = $1 FOR UPDATE`

	var (
		approval  pamDomain.AccessApproval
		approvers []byte
		actions   []byte
	)
	err := querier.QueryRowContext(ctx, query, approvalID).Scan(
		&approval.ID,
		&approval.RequesterID,
		&approval.ResourceType,
		&approval.ResourceID,
		&approval.Policy,
		&approvers,
		&actions,
		&approval.Status,
		&approval.ExpiresAt,
		&approval.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "approval not found")
		}
		return nil, apperrors.Wrap(err, "failed to get approval")
	}

	if err := json.Unmarshal(approvers, &approval.Approvers); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode approvers")
	}
	if err := json.Unmarshal(actions, &approval.Actions); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode approval actions")
	}

	return &approval, nil
}

// Update persists approval decisions.
func (p *PostgreSQLApprovalRepository) Update(
	ctx context.Context,
	approval *pamDomain.AccessApproval,
) error {
	querier := database.GetTx(ctx, p.db)

	_, actions, err := marshalApproval(approval)
	if err != nil {
		return err
	}

	query := `UPDATE access_approvals SET actions = $1, status = $2 WHERE id = $3`
	result, err := querier.ExecContext(ctx, query, actions, approval.Status, approval.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update approval")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated approval")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "approval not found")
	}

	return nil
}

func marshalApproval(approval *pamDomain.AccessApproval) ([]byte, []byte, error) {
	approvers, err := json.Marshal(approval.Approvers)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to encode approvers")
	}
	actions, err := json.Marshal(approval.Actions)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to encode approval actions")
	}
	return approvers, actions, nil
}
