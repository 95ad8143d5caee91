// Package usecase implements the audit log write path, search, export,
// integrity verification, and retention.
package usecase

import (
	"context"
	"io"
	"time"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
)

// AuditLogRepository persists audit entries.
type AuditLogRepository interface {
	// Create appends an entry; rows are never updated.
	Create(ctx context.Context, entry *auditDomain.Entry) error
	// GetLastHash returns the newest entry's hash, or nil for an empty log.
	GetLastHash(ctx context.Context) ([]byte, error)
	// Search retrieves entries matching the filter, newest first.
	Search(ctx context.Context, filter auditDomain.Filter, offset, limit int) ([]*auditDomain.Entry, error)
	// ListRange retrieves entries within [start, end] in chain order.
	ListRange(ctx context.Context, start, end time.Time) ([]*auditDomain.Entry, error)
	// DeleteOlderThan removes entries older than the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExportFormat selects an audit export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// AuditLogUseCase is the audit log service. Record is safe for concurrent
// use; appends are serialized by a single writer to preserve the hash chain
// and apply backpressure instead of dropping records.
type AuditLogUseCase interface {
	auditDomain.Recorder

	// Start launches the single-writer append loop. Must be called before
	// Record; Close stops the loop after draining queued entries.
	Start()
	Close()

	// Search retrieves entries matching the filter with pagination.
	// pageSize is capped at domain.MaxPageSize.
	Search(ctx context.Context, filter auditDomain.Filter, page, pageSize int) ([]*auditDomain.Entry, error)

	// VerifyIntegrity recomputes the chain over [start, end] and reports
	// the first break, if any.
	VerifyIntegrity(ctx context.Context, start, end time.Time) (*auditDomain.IntegrityReport, error)

	// Export writes entries within [start, end] to w in the given format.
	Export(ctx context.Context, w io.Writer, start, end time.Time, format ExportFormat) error

	// Cleanup removes whole days of entries older than the retention period.
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}
