package domain

import (
	apperrors "github.com/allisson/usp/internal/errors"
)

var (
	// ErrCasRequired indicates the path demands a check-and-set version on
	// every write and none was provided.
	ErrCasRequired = apperrors.Wrap(
		apperrors.ErrCasMismatch, "check-and-set required for this path",
	)

	// ErrVersionDestroyed indicates the target version's ciphertext has been
	// erased and cannot be read or undeleted.
	ErrVersionDestroyed = apperrors.Wrap(apperrors.ErrNotFound, "secret version destroyed")
)
