package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	cryptoUseCase "github.com/allisson/usp/internal/crypto/usecase"
)

// RunInitSeal initializes the vault: generates the master key, splits it
// into key shares, and persists the KEK-wrapped key. The shares are printed
// exactly once and never stored; losing more than shares-threshold of them
// makes the vault unrecoverable.
//
// Requirements: Database must be migrated and the KEK keeper configured.
func RunInitSeal(
	ctx context.Context,
	sealUseCase cryptoUseCase.SealUseCase,
	logger *slog.Logger,
	writer io.Writer,
	shares, threshold int,
	format string,
) error {
	logger.Info("initializing seal",
		slog.Int("shares", shares),
		slog.Int("threshold", threshold),
	)

	keyShares, err := sealUseCase.Init(ctx, shares, threshold)
	if err != nil {
		return fmt.Errorf("failed to initialize seal: %w", err)
	}

	if format == "json" {
		if err := outputInitSealJSON(writer, keyShares, threshold); err != nil {
			return fmt.Errorf("failed to output JSON: %w", err)
		}
	} else {
		outputInitSealText(writer, keyShares, threshold)
	}

	logger.Info("seal initialized", slog.Int("shares", len(keyShares)))
	return nil
}

// outputInitSealText outputs the key shares in human-readable text format.
func outputInitSealText(writer io.Writer, keyShares []string, threshold int) {
	_, _ = fmt.Fprintf(writer, "Vault Initialized\n")
	_, _ = fmt.Fprintf(writer, "=================\n\n")
	_, _ = fmt.Fprintf(writer, "Key Shares (%d, threshold %d):\n\n", len(keyShares), threshold)

	for i, share := range keyShares {
		_, _ = fmt.Fprintf(writer, "Share %d: %s\n", i+1, share)
	}

	_, _ = fmt.Fprintf(writer, "\nIMPORTANT:\n")
	_, _ = fmt.Fprintf(writer, "  - These shares are shown ONCE and are not stored anywhere.\n")
	_, _ = fmt.Fprintf(writer, "  - Distribute them to separate custodians.\n")
	_, _ = fmt.Fprintf(writer, "  - Any %d shares unseal the vault.\n", threshold)
	_, _ = fmt.Fprintf(writer, "\nThe vault remains sealed. Unseal it with %d shares to begin serving.\n", threshold)
}

// outputInitSealJSON outputs the key shares in JSON format for machine consumption.
func outputInitSealJSON(writer io.Writer, keyShares []string, threshold int) error {
	result := map[string]interface{}{
		"shares":    keyShares,
		"threshold": threshold,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	_, _ = fmt.Fprintln(writer, string(jsonBytes))
	return nil
}
