package usecase

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	cryptoService "github.com/allisson/usp/internal/crypto/service"
	apperrors "github.com/allisson/usp/internal/errors"
)

// csvHeader is the fixed first row of CSV exports. Field order is part of
// the export contract and must not change.
var csvHeader = []string{
	"id", "timestamp", "event_type", "user_id", "user_name", "resource",
	"action", "success", "ip_address", "correlation_id", "details",
}

// writeRequest couples an entry with the channel its result is returned on.
type writeRequest struct {
	ctx   context.Context
	entry *auditDomain.Entry
	done  chan error
}

// auditLogUseCase implements AuditLogUseCase. Appends flow through a
// buffered channel into a single writer goroutine; a full channel blocks
// callers (backpressure) rather than dropping records.
type auditLogUseCase struct {
	repo    AuditLogRepository
	barrier cryptoService.Barrier
	logger  *slog.Logger

	requests chan writeRequest
	stopped  chan struct{}
}

// NewAuditLogUseCase creates the audit log service. barrier may be nil when
// detail encryption is not configured; queueSize bounds pending appends.
func NewAuditLogUseCase(
	repo AuditLogRepository,
	barrier cryptoService.Barrier,
	logger *slog.Logger,
	queueSize int,
) AuditLogUseCase {
	if queueSize < 1 {
		queueSize = 1
	}
	return &auditLogUseCase{
		repo:     repo,
		barrier:  barrier,
		logger:   logger,
		requests: make(chan writeRequest, queueSize),
		stopped:  make(chan struct{}),
	}
}

// Start launches the single-writer loop.
func (a *auditLogUseCase) Start() {
	go a.writeLoop()
}

// Close stops accepting new records and waits for queued ones to drain.
func (a *auditLogUseCase) Close() {
	close(a.requests)
	<-a.stopped
}

// Record queues an entry for appending and waits for the result, so
// callers observe both backpressure and write errors.
func (a *auditLogUseCase) Record(ctx context.Context, entry *auditDomain.Entry) error {
	req := writeRequest{ctx: ctx, entry: entry, done: make(chan error, 1)}

	select {
	case a.requests <- req:
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), "audit append cancelled")
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), "audit append cancelled")
	}
}

// writeLoop serializes appends: it chains each entry on the previous hash
// and inserts it before taking the next request.
func (a *auditLogUseCase) writeLoop() {
	defer close(a.stopped)

	var lastHash []byte
	loaded := false

	for req := range a.requests {
		if !loaded {
			hash, err := a.repo.GetLastHash(req.ctx)
			if err != nil {
				req.done <- err
				continue
			}
			lastHash = hash
			loaded = true
		}

		err := a.append(req.ctx, req.entry, lastHash)
		if err == nil {
			lastHash = req.entry.ThisHash
		} else {
			a.logger.Error("audit append failed",
				slog.String("event_type", string(req.entry.EventType)),
				slog.String("error", err.Error()),
			)
		}
		req.done <- err
	}
}

// append finalizes and stores one entry: encrypts sensitive details,
// chains the hash, and inserts the row.
func (a *auditLogUseCase) append(ctx context.Context, entry *auditDomain.Entry, lastHash []byte) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.Must(uuid.NewV7())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	// The ts column stores microseconds; hash the value the database will
	// hand back, or integrity checks fail after a round trip.
	entry.Timestamp = entry.Timestamp.UTC().Truncate(time.Microsecond)

	if entry.Sensitive && entry.Details != nil && a.barrier != nil {
		detailBytes, err := json.Marshal(entry.Details)
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal sensitive details")
		}
		envelope, err := a.barrier.Encrypt(ctx, detailBytes, []byte(entry.ID.String()))
		if err != nil {
			return err
		}
		entry.Details = map[string]any{auditDomain.EncryptedDetailsKey: envelope}
	}

	if len(lastHash) == 0 {
		lastHash = make([]byte, auditDomain.HashSize)
	}
	entry.PreviousHash = lastHash

	hash, err := entry.ComputeHash(lastHash)
	if err != nil {
		return err
	}
	entry.ThisHash = hash

	return a.repo.Create(ctx, entry)
}

// Search retrieves entries matching the filter. page is 1-based.
func (a *auditLogUseCase) Search(
	ctx context.Context,
	filter auditDomain.Filter,
	page, pageSize int,
) ([]*auditDomain.Entry, error) {
	if pageSize < 1 || pageSize > auditDomain.MaxPageSize {
		return nil, apperrors.Wrapf(
			apperrors.ErrInvalidInput,
			"page size must be between 1 and %d", auditDomain.MaxPageSize,
		)
	}
	if page < 1 {
		page = 1
	}

	return a.repo.Search(ctx, filter, (page-1)*pageSize, pageSize)
}

// VerifyIntegrity recomputes every hash in [start, end] in chain order and
// names the first entry whose stored hash does not match, or whose link to
// the prior entry is broken.
func (a *auditLogUseCase) VerifyIntegrity(
	ctx context.Context,
	start, end time.Time,
) (*auditDomain.IntegrityReport, error) {
	entries, err := a.repo.ListRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	report := &auditDomain.IntegrityReport{Checked: len(entries), Intact: true}

	var previous *auditDomain.Entry
	for _, entry := range entries {
		if previous != nil && !auditDomain.HashEqual(entry.PreviousHash, previous.ThisHash) {
			report.Intact = false
			report.FirstBreak = entry.ID
			report.Reason = "previous hash does not link to prior entry"
			return report, nil
		}

		computed, err := entry.ComputeHash(entry.PreviousHash)
		if err != nil {
			return nil, err
		}
		if !auditDomain.HashEqual(computed, entry.ThisHash) {
			report.Intact = false
			report.FirstBreak = entry.ID
			report.Reason = "stored hash does not match recomputed hash"
			return report, nil
		}

		previous = entry
	}

	return report, nil
}

// Export writes entries within [start, end] to w. CSV uses the fixed
// header; JSON is a single array whose elements carry the chain hashes in
// hex alongside the CSV fields.
func (a *auditLogUseCase) Export(
	ctx context.Context,
	w io.Writer,
	start, end time.Time,
	format ExportFormat,
) error {
	entries, err := a.repo.ListRange(ctx, start, end)
	if err != nil {
		return err
	}

	switch format {
	case ExportCSV:
		err = exportCSV(w, entries)
	case ExportJSON:
		err = exportJSON(w, entries)
	default:
		return apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown export format %q", format)
	}
	if err != nil {
		return err
	}

	return a.Record(ctx, &auditDomain.Entry{
		EventType: auditDomain.EventAuditExport,
		ActorType: auditDomain.ActorSystem,
		Resource:  "audit:export",
		Action:    string(format),
		Success:   true,
		Details: map[string]any{
			"start":   start.UTC().Format(time.RFC3339),
			"end":     end.UTC().Format(time.RFC3339),
			"entries": len(entries),
		},
	})
}

// Cleanup deletes whole days of entries older than retentionDays.
func (a *auditLogUseCase) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "retention days must be at least 1")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Truncate(24 * time.Hour)
	deleted, err := a.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		_ = a.Record(ctx, &auditDomain.Entry{
			EventType: auditDomain.EventAuditRetention,
			ActorType: auditDomain.ActorSystem,
			Resource:  "audit:retention",
			Action:    "delete",
			Success:   true,
			Details: map[string]any{
				"cutoff":  cutoff.Format(time.RFC3339),
				"deleted": deleted,
			},
		})
	}

	return deleted, nil
}

func exportCSV(w io.Writer, entries []*auditDomain.Entry) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return apperrors.Wrap(err, "failed to write CSV header")
	}

	for _, entry := range entries {
		record := []string{
			entry.ID.String(),
			entry.Timestamp.UTC().Format(time.RFC3339Nano),
			string(entry.EventType),
			userIDField(entry),
			entry.ActorName,
			entry.Resource,
			entry.Action,
			strconv.FormatBool(entry.Success),
			entry.IPAddress,
			entry.CorrelationID,
			detailsField(entry),
		}
		if err := writer.Write(record); err != nil {
			return apperrors.Wrap(err, "failed to write CSV record")
		}
	}

	writer.Flush()
	return apperrors.Wrap(writer.Error(), "failed to flush CSV export")
}

func exportJSON(w io.Writer, entries []*auditDomain.Entry) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return apperrors.Wrap(err, "failed to write JSON export")
	}

	encoder := json.NewEncoder(w)
	for i, entry := range entries {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return apperrors.Wrap(err, "failed to write JSON export")
			}
		}

		element := map[string]any{
			"id":             entry.ID.String(),
			"timestamp":      entry.Timestamp.UTC().Format(time.RFC3339Nano),
			"event_type":     string(entry.EventType),
			"user_id":        userIDField(entry),
			"user_name":      entry.ActorName,
			"resource":       entry.Resource,
			"action":         entry.Action,
			"success":        entry.Success,
			"ip_address":     entry.IPAddress,
			"correlation_id": entry.CorrelationID,
			"details":        entry.Details,
			"previous_hash":  hex.EncodeToString(entry.PreviousHash),
			"this_hash":      hex.EncodeToString(entry.ThisHash),
		}
		if err := encoder.Encode(element); err != nil {
			return apperrors.Wrap(err, "failed to encode JSON export element")
		}
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return apperrors.Wrap(err, "failed to write JSON export")
	}
	return nil
}

func userIDField(entry *auditDomain.Entry) string {
	if entry.ActorID == uuid.Nil {
		return ""
	}
	return entry.ActorID.String()
}

func detailsField(entry *auditDomain.Entry) string {
	if entry.Details == nil {
		return ""
	}
	detailBytes, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Sprintf("marshal error: %v", err)
	}
	return string(detailBytes)
}
