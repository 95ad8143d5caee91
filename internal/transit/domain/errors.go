package domain

import (
	apperrors "github.com/allisson/usp/internal/errors"
)

var (
	// ErrDeletionNotAllowed indicates the key's DeletionAllowed flag is off.
	ErrDeletionNotAllowed = apperrors.Wrap(
		apperrors.ErrInvalidState, "deletion is not allowed for this key",
	)

	// ErrVersionTooOld indicates a ciphertext's version is below the key's
	// minimum decryption version.
	ErrVersionTooOld = apperrors.Wrap(
		apperrors.ErrInvalidInput, "ciphertext version is below the minimum decryption version",
	)

	// ErrContextRequired indicates a derived key was used without a
	// derivation context.
	ErrContextRequired = apperrors.Wrap(
		apperrors.ErrInvalidInput, "derivation context is required for this key",
	)

	// ErrNotExportable indicates the key's material cannot leave the engine.
	ErrNotExportable = apperrors.Wrap(
		apperrors.ErrInvalidState, "key is not exportable",
	)
)
