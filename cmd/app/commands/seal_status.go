package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	cryptoUseCase "github.com/allisson/usp/internal/crypto/usecase"
)

// RunSealStatus reports the vault seal state.
func RunSealStatus(
	ctx context.Context,
	sealUseCase cryptoUseCase.SealUseCase,
	writer io.Writer,
	format string,
) error {
	status, err := sealUseCase.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get seal status: %w", err)
	}

	if format == "json" {
		return outputSealStatusJSON(writer, status)
	}

	outputSealStatusText(writer, status)
	return nil
}

// outputSealStatusText outputs the seal state in human-readable text format.
func outputSealStatusText(writer io.Writer, status *cryptoDomain.SealStatus) {
	_, _ = fmt.Fprintf(writer, "Seal Status\n")
	_, _ = fmt.Fprintf(writer, "===========\n\n")
	_, _ = fmt.Fprintf(writer, "Initialized:    %t\n", status.Initialized)
	_, _ = fmt.Fprintf(writer, "Sealed:         %t\n", status.Sealed)

	if status.Initialized {
		_, _ = fmt.Fprintf(writer, "Total Shares:   %d\n", status.Shares)
		_, _ = fmt.Fprintf(writer, "Threshold:      %d\n", status.Threshold)
	}
	if status.Sealed && status.Initialized {
		_, _ = fmt.Fprintf(writer, "Unseal Progress: %d/%d\n", status.Progress, status.Threshold)
	}
}

// outputSealStatusJSON outputs the seal state in JSON format for machine consumption.
func outputSealStatusJSON(writer io.Writer, status *cryptoDomain.SealStatus) error {
	result := map[string]interface{}{
		"initialized": status.Initialized,
		"sealed":      status.Sealed,
		"progress":    status.Progress,
		"threshold":   status.Threshold,
		"shares":      status.Shares,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	_, _ = fmt.Fprintln(writer, string(jsonBytes))
	return nil
}
