package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	auditUseCase "github.com/allisson/usp/internal/audit/usecase"
)

// RunExportAuditLogs writes audit log entries within a time range to a file
// or stdout in CSV or JSON format, for SIEM ingestion or offline archival.
//
// Requirements: Database must be migrated and accessible.
func RunExportAuditLogs(
	ctx context.Context,
	auditLogUseCase auditUseCase.AuditLogUseCase,
	logger *slog.Logger,
	writer io.Writer,
	startDate, endDate string,
	format string,
	outputPath string,
) error {
	start, end, err := parseDateRange(startDate, endDate)
	if err != nil {
		return err
	}

	exportFormat, err := parseExportFormat(format)
	if err != nil {
		return err
	}

	logger.Info("exporting audit logs",
		slog.Time("start_date", start),
		slog.Time("end_date", end),
		slog.String("format", format),
	)

	out := writer
	if outputPath != "" {
		file, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = file.Close() }()
		out = file
	}

	if err := auditLogUseCase.Export(ctx, out, start, end, exportFormat); err != nil {
		return fmt.Errorf("failed to export audit logs: %w", err)
	}

	logger.Info("export completed", slog.String("output", outputPath))
	return nil
}

// parseExportFormat converts a format string to auditUseCase.ExportFormat.
func parseExportFormat(format string) (auditUseCase.ExportFormat, error) {
	switch format {
	case "csv":
		return auditUseCase.ExportCSV, nil
	case "json":
		return auditUseCase.ExportJSON, nil
	default:
		return "", fmt.Errorf("invalid export format: %s (valid options: csv, json)", format)
	}
}
