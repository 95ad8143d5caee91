// Package commands contains CLI command implementations for the application.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"

	"github.com/allisson/usp/internal/app"
	cryptoUseCase "github.com/allisson/usp/internal/crypto/usecase"
)

// IOTuple holds reader and writer for commands, allowing for testing.
type IOTuple struct {
	Reader io.Reader
	Writer io.Writer
}

// DefaultIO returns an IOTuple with os.Stdin and os.Stdout.
func DefaultIO() IOTuple {
	return IOTuple{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}
}

// closeContainer closes all resources in the container and logs any errors.
func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

// closeMigrate closes the migration instance and logs any errors.
func closeMigrate(migrate *migrate.Migrate, logger *slog.Logger) {
	sourceError, databaseError := migrate.Close()
	if sourceError != nil || databaseError != nil {
		logger.Error(
			"failed to close the migrate",
			slog.Any("source_error", sourceError),
			slog.Any("database_error", databaseError),
		)
	}
}

// parseDate parses a date string in format "YYYY-MM-DD" or "YYYY-MM-DD HH:MM:SS" to time.Time.
func parseDate(dateStr string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05", dateStr)
	if err == nil {
		return t, nil
	}

	// Date-only format defaults to start of day.
	t, err = time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf(
			"invalid date format (expected YYYY-MM-DD or YYYY-MM-DD HH:MM:SS): %s",
			dateStr,
		)
	}

	return t, nil
}

// parseDateRange parses and validates a start/end date pair.
func parseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := parseDate(startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date: %w", err)
	}

	end, err := parseDate(endDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date: %w", err)
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be after start date")
	}

	return start, end, nil
}

// unsealWithShares feeds key shares to the seal manager until the vault is
// unsealed. Commands that operate on encrypted data run in their own process
// and need the master key reconstructed locally.
func unsealWithShares(ctx context.Context, sealUseCase cryptoUseCase.SealUseCase, shares []string) error {
	if len(shares) == 0 {
		return fmt.Errorf("at least one key share is required (use --share)")
	}

	for _, share := range shares {
		status, err := sealUseCase.Unseal(ctx, "cli", share)
		if err != nil {
			return fmt.Errorf("failed to unseal: %w", err)
		}
		if !status.Sealed {
			return nil
		}
	}

	status, err := sealUseCase.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get seal status: %w", err)
	}
	return fmt.Errorf(
		"not enough key shares: %d of %d provided",
		status.Progress,
		status.Threshold,
	)
}
