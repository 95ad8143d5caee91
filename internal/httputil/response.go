// Package httputil provides HTTP utility functions for request and response handling.
package httputil

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/usp/internal/errors"
)

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// HandleErrorGin maps domain errors to HTTP status codes and returns a JSON response.
// Internal error details are logged but never exposed to the client.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	var statusCode int
	var errorResponse ErrorResponse

	switch {
	case apperrors.Is(err, apperrors.ErrVaultSealed):
		statusCode = http.StatusServiceUnavailable
		errorResponse = ErrorResponse{
			Error:   "vault_sealed",
			Message: "The vault is sealed",
		}

	case apperrors.Is(err, apperrors.ErrNotInitialized):
		statusCode = http.StatusServiceUnavailable
		errorResponse = ErrorResponse{
			Error:   "not_initialized",
			Message: "The vault is not initialized",
		}

	case apperrors.Is(err, apperrors.ErrAlreadyInitialized):
		statusCode = http.StatusConflict
		errorResponse = ErrorResponse{
			Error:   "already_initialized",
			Message: "The vault is already initialized",
		}

	case apperrors.Is(err, apperrors.ErrInvalidShares):
		statusCode = http.StatusBadRequest
		errorResponse = ErrorResponse{
			Error:   "invalid_shares",
			Message: "The provided unseal share was rejected",
		}

	case apperrors.Is(err, apperrors.ErrNotFound):
		statusCode = http.StatusNotFound
		errorResponse = ErrorResponse{
			Error:   "not_found",
			Message: "The requested resource was not found",
		}

	case apperrors.Is(err, apperrors.ErrAlreadyExists), apperrors.Is(err, apperrors.ErrCasMismatch):
		statusCode = http.StatusConflict
		errorResponse = ErrorResponse{
			Error:   "conflict",
			Message: "A conflict occurred with existing data",
		}

	case apperrors.Is(err, apperrors.ErrInvalidState):
		statusCode = http.StatusConflict
		errorResponse = ErrorResponse{
			Error:   "invalid_state",
			Message: "The resource is not in a state that allows this operation",
		}

	case apperrors.Is(err, apperrors.ErrInvalidInput):
		statusCode = http.StatusUnprocessableEntity
		errorResponse = ErrorResponse{
			Error:   "invalid_input",
			Message: err.Error(),
		}

	case apperrors.Is(err, apperrors.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		errorResponse = ErrorResponse{
			Error:   "unauthorized",
			Message: "Authentication is required",
		}

	case apperrors.Is(err, apperrors.ErrMfaRequired):
		statusCode = http.StatusUnauthorized
		errorResponse = ErrorResponse{
			Error:   "mfa_required",
			Message: "Multi-factor authentication is required",
		}

	case apperrors.Is(err, apperrors.ErrStepUpRequired):
		statusCode = http.StatusForbidden
		errorResponse = ErrorResponse{
			Error:   "step_up_required",
			Message: "Step-up authentication is required for this operation",
		}

	case apperrors.Is(err, apperrors.ErrLockedOut):
		statusCode = http.StatusLocked
		errorResponse = ErrorResponse{
			Error:   "locked_out",
			Message: "Account is locked due to too many failed authentication attempts",
		}

	case apperrors.Is(err, apperrors.ErrRateLimited):
		statusCode = http.StatusTooManyRequests
		errorResponse = ErrorResponse{
			Error:   "rate_limited",
			Message: "Too many attempts, try again later",
		}

	case apperrors.Is(err, apperrors.ErrForbidden):
		statusCode = http.StatusForbidden
		errorResponse = ErrorResponse{
			Error:   "forbidden",
			Message: "You don't have permission to access this resource",
		}

	case apperrors.Is(err, apperrors.ErrNotSupported):
		statusCode = http.StatusNotImplemented
		errorResponse = ErrorResponse{
			Error:   "not_supported",
			Message: "The requested operation is not supported",
		}

	case apperrors.Is(err, apperrors.ErrExternal):
		statusCode = http.StatusBadGateway
		errorResponse = ErrorResponse{
			Error:   "external_error",
			Message: "An external provider failed to complete the operation",
		}

	default:
		// For unknown/internal errors, don't expose details to the client
		statusCode = http.StatusInternalServerError
		errorResponse = ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		}
	}

	// Log the full error details (including wrapped errors)
	if logger != nil {
		logger.Error("request failed",
			slog.Int("status_code", statusCode),
			slog.String("error_code", errorResponse.Error),
			slog.Any("error", err),
		)
	}

	c.JSON(statusCode, errorResponse)
}

// HandleBadRequestGin writes a 400 Bad Request response for malformed JSON or parameters.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("bad request", slog.Any("error", err))
	}

	errorResponse := ErrorResponse{
		Error:   "bad_request",
		Message: err.Error(),
	}

	c.JSON(http.StatusBadRequest, errorResponse)
}
