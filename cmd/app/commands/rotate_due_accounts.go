package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	cryptoUseCase "github.com/allisson/usp/internal/crypto/usecase"
	pamUseCase "github.com/allisson/usp/internal/pam/usecase"
)

// RunRotateDueAccounts rotates every privileged account whose scheduled
// rotation time has passed. Rotation re-encrypts credentials, so the vault
// is unsealed locally with the provided key shares first.
//
// Requirements: Database must be migrated, KEK keeper configured, and a
// quorum of key shares provided.
func RunRotateDueAccounts(
	ctx context.Context,
	sealUseCase cryptoUseCase.SealUseCase,
	rotationUseCase pamUseCase.RotationUseCase,
	logger *slog.Logger,
	writer io.Writer,
	shares []string,
) error {
	if err := unsealWithShares(ctx, sealUseCase, shares); err != nil {
		return err
	}

	logger.Info("rotating due accounts")

	count, err := rotationUseCase.RotateDue(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to rotate due accounts: %w", err)
	}

	_, _ = fmt.Fprintf(writer, "Rotated %d account(s)\n", count)

	logger.Info("rotation completed", slog.Int("count", count))
	return nil
}
