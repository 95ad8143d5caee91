package commands

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
)

func TestRunVerifyAuditLogs(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("intact-chain", func(t *testing.T) {
		fake := &fakeAuditLogUseCase{report: &auditDomain.IntegrityReport{
			Checked: 120,
			Intact:  true,
		}}

		var out bytes.Buffer
		err := RunVerifyAuditLogs(ctx, fake, logger, &out, "2026-01-01", "2026-02-01", "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Entries Checked: 120")
		require.Contains(t, out.String(), "Status: PASSED")
	})

	t.Run("broken-chain", func(t *testing.T) {
		breakID := uuid.Must(uuid.NewV7())
		fake := &fakeAuditLogUseCase{report: &auditDomain.IntegrityReport{
			Checked:    50,
			Intact:     false,
			FirstBreak: breakID,
			Reason:     "hash mismatch",
		}}

		var out bytes.Buffer
		err := RunVerifyAuditLogs(ctx, fake, logger, &out, "2026-01-01", "2026-02-01", "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "integrity check failed")
		require.Contains(t, out.String(), "Status: FAILED")
		require.Contains(t, out.String(), breakID.String())
	})

	t.Run("json-output", func(t *testing.T) {
		fake := &fakeAuditLogUseCase{report: &auditDomain.IntegrityReport{
			Checked: 10,
			Intact:  true,
		}}

		var out bytes.Buffer
		err := RunVerifyAuditLogs(ctx, fake, logger, &out, "2026-01-01", "2026-02-01", "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"intact": true`)
		require.Contains(t, out.String(), `"checked": 10`)
	})

	t.Run("invalid-range", func(t *testing.T) {
		fake := &fakeAuditLogUseCase{}

		err := RunVerifyAuditLogs(ctx, fake, logger, &bytes.Buffer{}, "2026-02-01", "2026-01-01", "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "end date must be after start date")
	})
}
