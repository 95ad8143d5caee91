package httputil

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/usp/internal/errors"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleErrorGin(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedCode  int
		expectedError string
	}{
		{
			name:          "sealed vault",
			err:           apperrors.ErrVaultSealed,
			expectedCode:  http.StatusServiceUnavailable,
			expectedError: "vault_sealed",
		},
		{
			name:          "not initialized",
			err:           apperrors.Wrap(apperrors.ErrNotInitialized, "seal status"),
			expectedCode:  http.StatusServiceUnavailable,
			expectedError: "not_initialized",
		},
		{
			name:          "invalid share",
			err:           apperrors.ErrInvalidShares,
			expectedCode:  http.StatusBadRequest,
			expectedError: "invalid_shares",
		},
		{
			name:          "rate limited",
			err:           apperrors.ErrRateLimited,
			expectedCode:  http.StatusTooManyRequests,
			expectedError: "rate_limited",
		},
		{
			name:          "not found",
			err:           apperrors.ErrNotFound,
			expectedCode:  http.StatusNotFound,
			expectedError: "not_found",
		},
		{
			name:          "cas mismatch maps to conflict",
			err:           apperrors.ErrCasMismatch,
			expectedCode:  http.StatusConflict,
			expectedError: "conflict",
		},
		{
			name:          "invalid input",
			err:           apperrors.Wrap(apperrors.ErrInvalidInput, "name is required"),
			expectedCode:  http.StatusUnprocessableEntity,
			expectedError: "invalid_input",
		},
		{
			name:          "locked out",
			err:           apperrors.ErrLockedOut,
			expectedCode:  http.StatusLocked,
			expectedError: "locked_out",
		},
		{
			name:          "step up required",
			err:           apperrors.ErrStepUpRequired,
			expectedCode:  http.StatusForbidden,
			expectedError: "step_up_required",
		},
		{
			name:          "unknown error hides details",
			err:           errors.New("pq: connection refused"),
			expectedCode:  http.StatusInternalServerError,
			expectedError: "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			HandleErrorGin(c, tt.err, testLogger())

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedError)

			if tt.expectedError == "internal_error" {
				assert.NotContains(t, w.Body.String(), "connection refused")
			}
		})
	}
}

func TestHandleErrorGin_NilError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleErrorGin(c, nil, testLogger())

	assert.Empty(t, w.Body.String())
}

func TestHandleBadRequestGin(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleBadRequestGin(c, errors.New("invalid JSON payload"), testLogger())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bad_request")
	assert.Contains(t, w.Body.String(), "invalid JSON payload")
}
