// Package errors provides standardized domain errors that express business intent
// rather than infrastructure details. These errors should be used by use cases
// and mapped to stable error codes by the surfaces that expose them.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors forming the platform's closed error taxonomy.
var (
	// ErrVaultSealed indicates a crypto-dependent operation was attempted while sealed.
	ErrVaultSealed = errors.New("vault is sealed")

	// ErrNotInitialized indicates the seal has never been initialized.
	ErrNotInitialized = errors.New("vault is not initialized")

	// ErrAlreadyInitialized indicates init was called on an initialized vault.
	ErrAlreadyInitialized = errors.New("vault is already initialized")

	// ErrInvalidShares indicates unseal share verification failed.
	ErrInvalidShares = errors.New("invalid shares")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness violation (key name, safe name, path+version).
	ErrAlreadyExists = errors.New("already exists")

	// ErrCasMismatch indicates a check-and-set precondition failed; caller should re-read.
	ErrCasMismatch = errors.New("check-and-set mismatch")

	// ErrInvalidState indicates a state-machine violation (e.g., checkin when not active).
	ErrInvalidState = errors.New("invalid state")

	// ErrUnauthorized indicates the request lacks valid authentication credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the authenticated user doesn't have permission.
	ErrForbidden = errors.New("forbidden")

	// ErrMfaRequired indicates the caller must complete a second factor challenge.
	ErrMfaRequired = errors.New("mfa required")

	// ErrStepUpRequired indicates the caller must complete step-up authentication.
	ErrStepUpRequired = errors.New("step-up authentication required")

	// ErrLockedOut indicates the account is temporarily locked.
	ErrLockedOut = errors.New("account locked out")

	// ErrRateLimited indicates the caller exceeded a per-source quota.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIntegrity indicates tampered data: broken audit chain, undecryptable
	// ciphertext, or a malformed envelope.
	ErrIntegrity = errors.New("integrity violation")

	// ErrExternal indicates a connector or provider failed.
	ErrExternal = errors.New("external provider error")

	// ErrNotSupported indicates a feature requires an external integration
	// that is not configured.
	ErrNotSupported = errors.New("not supported")

	// ErrInternal is the catch-all; never returned with sensitive payloads.
	ErrInternal = errors.New("internal error")
)

// Code returns the stable string code for a taxonomy error.
// Unknown errors map to "Internal".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrVaultSealed):
		return "VaultSealed"
	case errors.Is(err, ErrNotInitialized):
		return "NotInitialized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "AlreadyInitialized"
	case errors.Is(err, ErrInvalidShares):
		return "InvalidShares"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrAlreadyExists):
		return "AlreadyExists"
	case errors.Is(err, ErrCasMismatch):
		return "CasMismatch"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrMfaRequired):
		return "MfaRequired"
	case errors.Is(err, ErrStepUpRequired):
		return "StepUpRequired"
	case errors.Is(err, ErrLockedOut):
		return "LockedOut"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrInvalidInput):
		return "ValidationError"
	case errors.Is(err, ErrIntegrity):
		return "IntegrityError"
	case errors.Is(err, ErrExternal):
		return "ExternalError"
	case errors.Is(err, ErrNotSupported):
		return "NotSupported"
	default:
		return "Internal"
	}
}

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message while preserving the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
