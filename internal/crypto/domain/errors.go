package domain

import (
	"github.com/allisson/usp/internal/errors"
)

// Cryptographic operation error definitions.
//
// These domain-specific errors wrap standard errors from internal/errors
// to provide context for cryptographic failures while keeping the stable
// taxonomy code reachable through errors.Is.
var (
	// ErrInvalidKeySize indicates a cryptographic key of incorrect length.
	// Master keys and symmetric transit keys must be exactly 32 bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrDecryptionFailed indicates a decryption operation failed.
	//
	// This covers wrong keys, tampered ciphertext (authentication failure),
	// and corrupted data. The specific cause is deliberately not disclosed.
	ErrDecryptionFailed = errors.Wrap(errors.ErrIntegrity, "decryption failed")

	// ErrKeeperNotConfigured indicates no KEK keeper URI was configured.
	ErrKeeperNotConfigured = errors.Wrap(errors.ErrNotSupported, "KEK keeper is not configured")
)
