package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	cryptoUseCase "github.com/allisson/usp/internal/crypto/usecase"
)

// RunRekey splits the master key under a new polynomial with new share
// parameters, invalidating every previously issued share. The command runs
// in its own process, so the vault is unsealed locally with the provided
// current shares first.
//
// Requirements: Database must be migrated, KEK keeper configured, and a
// quorum of current key shares provided.
func RunRekey(
	ctx context.Context,
	sealUseCase cryptoUseCase.SealUseCase,
	logger *slog.Logger,
	writer io.Writer,
	currentShares []string,
	shares, threshold int,
	format string,
) error {
	if err := unsealWithShares(ctx, sealUseCase, currentShares); err != nil {
		return err
	}

	logger.Info("rekeying vault",
		slog.Int("shares", shares),
		slog.Int("threshold", threshold),
	)

	newShares, err := sealUseCase.Rekey(ctx, shares, threshold)
	if err != nil {
		return fmt.Errorf("failed to rekey: %w", err)
	}

	if format == "json" {
		if err := outputRekeyJSON(writer, newShares, threshold); err != nil {
			return fmt.Errorf("failed to output JSON: %w", err)
		}
	} else {
		outputRekeyText(writer, newShares, threshold)
	}

	logger.Info("rekey completed", slog.Int("shares", len(newShares)))
	return nil
}

// outputRekeyText outputs the new key shares in human-readable text format.
func outputRekeyText(writer io.Writer, newShares []string, threshold int) {
	_, _ = fmt.Fprintf(writer, "Vault Rekeyed\n")
	_, _ = fmt.Fprintf(writer, "=============\n\n")
	_, _ = fmt.Fprintf(writer, "New Key Shares (%d, threshold %d):\n\n", len(newShares), threshold)

	for i, share := range newShares {
		_, _ = fmt.Fprintf(writer, "Share %d: %s\n", i+1, share)
	}

	_, _ = fmt.Fprintf(writer, "\nIMPORTANT:\n")
	_, _ = fmt.Fprintf(writer, "  - All previous shares are now invalid.\n")
	_, _ = fmt.Fprintf(writer, "  - These shares are shown ONCE and are not stored anywhere.\n")
	_, _ = fmt.Fprintf(writer, "  - Distribute them to separate custodians.\n")
}

// outputRekeyJSON outputs the new key shares in JSON format for machine consumption.
func outputRekeyJSON(writer io.Writer, newShares []string, threshold int) error {
	return outputInitSealJSON(writer, newShares, threshold)
}
