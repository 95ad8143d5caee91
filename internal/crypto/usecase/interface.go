// Package usecase implements the seal lifecycle: init, unseal, seal, status,
// and rekey. The seal manager is the only writer of the master key cell that
// every other cryptographic operation reads through.
package usecase

import (
	"context"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
)

// SealConfigRepository persists seal configurations.
type SealConfigRepository interface {
	// Create inserts a new seal configuration row.
	Create(ctx context.Context, config *cryptoDomain.SealConfig) error
	// GetLatest returns the active configuration or ErrNotFound.
	GetLatest(ctx context.Context) (*cryptoDomain.SealConfig, error)
}

// SealUseCase manages the seal state machine:
// Uninitialized → Sealed ⇄ Unsealed.
type SealUseCase interface {
	// Init generates the master key, splits it into shares, persists the
	// KEK-wrapped key, and returns the shares exactly once. The vault stays
	// sealed after init.
	Init(ctx context.Context, shares, threshold int) ([]string, error)

	// Unseal accepts one share per call. Source identifies the caller for
	// rate limiting. When enough distinct shares have been provided the
	// master key is reconstructed, verified, and installed.
	Unseal(ctx context.Context, source, share string) (*cryptoDomain.SealStatus, error)

	// Seal zeroizes the master key and clears unseal progress.
	Seal(ctx context.Context) error

	// Status reports seal state without leaking key material.
	Status(ctx context.Context) (*cryptoDomain.SealStatus, error)

	// Rekey splits the existing master key under a new polynomial and new
	// share parameters. Requires the vault to be unsealed.
	Rekey(ctx context.Context, shares, threshold int) ([]string, error)
}
