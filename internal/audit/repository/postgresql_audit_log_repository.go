// Package repository implements audit log persistence for PostgreSQL.
//
// Audit entries are append-only. Ordering is provided by a monotonically
// assigned sequence column; the hash chain is computed by the audit writer
// before insertion, so the repository never mutates rows.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
)

// PostgreSQLAuditLogRepository implements audit entry persistence for
// PostgreSQL. Supports transaction-aware operations via database.GetTx.
type PostgreSQLAuditLogRepository struct {
	db *sql.DB
}

// NewPostgreSQLAuditLogRepository creates a repository bound to the given database.
func NewPostgreSQLAuditLogRepository(db *sql.DB) *PostgreSQLAuditLogRepository {
	return &PostgreSQLAuditLogRepository{db: db}
}

const auditColumns = `id, ts, event_type, actor_type, actor_id, actor_name, resource, action,
			  success, ip_address, user_agent, details, correlation_id, previous_hash, this_hash`

// Create appends an audit entry. Rows are never updated afterwards.
func (p *PostgreSQLAuditLogRepository) Create(ctx context.Context, entry *auditDomain.Entry) error {
	querier := database.GetTx(ctx, p.db)

	var detailsJSON []byte
	var err error
	if entry.Details != nil {
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal audit details")
		}
	}

	query := `INSERT INTO audit_logs (` + auditColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = querier.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.Timestamp,
		string(entry.EventType),
		string(entry.ActorType),
		nullableUUID(entry.ActorID),
		entry.ActorName,
		entry.Resource,
		entry.Action,
		entry.Success,
		nullableString(entry.IPAddress),
		nullableString(entry.UserAgent),
		detailsJSON,
		nullableString(entry.CorrelationID),
		entry.PreviousHash,
		entry.ThisHash,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit entry")
	}

	return nil
}

// GetLastHash returns the newest entry's hash, or nil when the log is empty.
func (p *PostgreSQLAuditLogRepository) GetLastHash(ctx context.Context) ([]byte, error) {
	querier := database.GetTx(ctx, p.db)

	var hash []byte
	err := querier.QueryRowContext(
		ctx,
		`SELECT this_hash FROM audit_logs ORDER BY seq DESC LIMIT 1`,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to get last audit hash")
	}

	return hash, nil
}

// Search retrieves entries matching the filter, newest first, with
// offset/limit pagination.
func (p *PostgreSQLAuditLogRepository) Search(
	ctx context.Context,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	where, args := buildFilter(filter)

	query := fmt.Sprintf(
		`SELECT %s FROM audit_logs %s ORDER BY seq DESC LIMIT $%d OFFSET $%d`,
		auditColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	return p.queryEntries(ctx, query, args)
}

// ListRange retrieves entries within [start, end] in chain order (oldest
// first), as required by integrity verification and exports.
func (p *PostgreSQLAuditLogRepository) ListRange(
	ctx context.Context,
	start, end time.Time,
) ([]*auditDomain.Entry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs
			  WHERE ts >= $1 AND ts <= $2 ORDER BY seq ASC`

	return p.queryEntries(ctx, query, []any{start, end})
}

// DeleteOlderThan removes whole date ranges beyond the retention period.
// This is the only delete path for audit entries.
func (p *PostgreSQLAuditLogRepository) DeleteOlderThan(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM audit_logs WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired audit entries")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count deleted audit entries")
	}

	return deleted, nil
}

func (p *PostgreSQLAuditLogRepository) queryEntries(
	ctx context.Context,
	query string,
	args []any,
) ([]*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to query audit entries")
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*auditDomain.Entry, 0)
	for rows.Next() {
		var entry auditDomain.Entry
		var eventType, actorType string
		var actorID uuid.NullUUID
		var ipAddress, userAgent, correlationID sql.NullString
		var detailsJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&eventType,
			&actorType,
			&actorID,
			&entry.ActorName,
			&entry.Resource,
			&entry.Action,
			&entry.Success,
			&ipAddress,
			&userAgent,
			&detailsJSON,
			&correlationID,
			&entry.PreviousHash,
			&entry.ThisHash,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit entry")
		}

		entry.EventType = auditDomain.EventType(eventType)
		entry.ActorType = auditDomain.ActorType(actorType)
		if actorID.Valid {
			entry.ActorID = actorID.UUID
		}
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String
		entry.CorrelationID = correlationID.String
		if detailsJSON != nil {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, apperrors.Wrap(err, "failed to unmarshal audit details")
			}
		}

		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit entries")
	}

	return entries, nil
}

// buildFilter assembles a parameterized WHERE clause from the filter.
func buildFilter(filter auditDomain.Filter) (string, []any) {
	clauses := make([]string, 0, 8)
	args := make([]any, 0, 8)

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.ActorID != uuid.Nil {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.EventType != "" {
		add("event_type = $%d", string(filter.EventType))
	}
	if filter.Resource != "" {
		add("resource LIKE $%d", filter.Resource+"%")
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.Success != nil {
		add("success = $%d", *filter.Success)
	}
	if filter.IPAddress != "" {
		add("ip_address = $%d", filter.IPAddress)
	}
	if filter.CorrelationID != "" {
		add("correlation_id = $%d", filter.CorrelationID)
	}
	if !filter.Start.IsZero() {
		add("ts >= $%d", filter.Start)
	}
	if !filter.End.IsZero() {
		add("ts <= $%d", filter.End)
	}
	if filter.DetailsText != "" {
		add("details::text ILIKE $%d", "%"+filter.DetailsText+"%")
	}

	if len(clauses) == 0 {
		return "", args
	}

	where := "WHERE " + clauses[0]
	for _, clause := range clauses[1:] {
		where += " AND " + clause
	}
	return where, args
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
