package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	authUseCase "github.com/allisson/usp/internal/auth/usecase"
)

// RunCleanExpiredSessions removes expired authentication sessions and stale
// MFA challenges. Intended to run periodically from a scheduler.
//
// Requirements: Database must be migrated and accessible.
func RunCleanExpiredSessions(
	ctx context.Context,
	useCase authUseCase.AuthUseCase,
	logger *slog.Logger,
	writer io.Writer,
) error {
	logger.Info("cleaning expired sessions")

	sessions, challenges, err := useCase.CleanExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to clean expired sessions: %w", err)
	}

	_, _ = fmt.Fprintf(writer, "Deleted %d expired session(s) and %d stale challenge(s)\n", sessions, challenges)

	logger.Info("session cleanup completed",
		slog.Int64("sessions", sessions),
		slog.Int64("challenges", challenges),
	)

	return nil
}
