package domain

import apperrors "github.com/allisson/usp/internal/errors"

var (
	// ErrInvalidCredentials is returned for unknown usernames and wrong
	// passwords alike, so callers cannot probe for valid accounts.
	ErrInvalidCredentials = apperrors.Wrap(apperrors.ErrUnauthorized, "invalid credentials")

	// ErrChallengeExpired indicates the MFA challenge window closed.
	ErrChallengeExpired = apperrors.Wrap(apperrors.ErrUnauthorized, "challenge expired")

	// ErrInvalidFactor indicates the presented second factor was rejected.
	ErrInvalidFactor = apperrors.Wrap(apperrors.ErrUnauthorized, "second factor rejected")

	// ErrSessionNotFound indicates no usable session matches the token.
	ErrSessionNotFound = apperrors.Wrap(apperrors.ErrUnauthorized, "session not found")

	// ErrRefreshReplay indicates a refresh token was presented after it was
	// already rotated; all sessions for the user are revoked.
	ErrRefreshReplay = apperrors.Wrap(apperrors.ErrUnauthorized, "refresh token replay detected")

	// ErrNotEnrolled indicates the user has no matching MFA enrollment.
	ErrNotEnrolled = apperrors.Wrap(apperrors.ErrInvalidState, "factor not enrolled")
)
