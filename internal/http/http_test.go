package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	apperrors "github.com/allisson/usp/internal/errors"
	"github.com/allisson/usp/internal/metrics"
)

// TestMain sets Gin to test mode for all tests in this package.
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeSealManager implements SealManager for handler tests.
type fakeSealManager struct {
	status     *cryptoDomain.SealStatus
	unsealErr  error
	sealErr    error
	lastSource string
	lastShare  string
}

func (f *fakeSealManager) Unseal(_ context.Context, source, share string) (*cryptoDomain.SealStatus, error) {
	f.lastSource = source
	f.lastShare = share
	if f.unsealErr != nil {
		return nil, f.unsealErr
	}
	return f.status, nil
}

func (f *fakeSealManager) Seal(_ context.Context) error {
	return f.sealErr
}

func (f *fakeSealManager) Status(_ context.Context) (*cryptoDomain.SealStatus, error) {
	return f.status, nil
}

// createTestServer creates a test server with a discarding logger.
func createTestServer(options ...Option) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(nil, "localhost", 0, logger, options...)
}

func TestHealthHandler(t *testing.T) {
	server := createTestServer()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	server.healthHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "healthy", response["status"])
}

func TestReadinessHandler_NotReady_NilDB(t *testing.T) {
	server := createTestServer()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

	server.readinessHandler(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "not_ready", response["status"])

	components, ok := response["components"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "error", components["database"])
}

func TestSealStatusHandler(t *testing.T) {
	seal := &fakeSealManager{
		status: &cryptoDomain.SealStatus{
			Initialized: true,
			Sealed:      true,
			Progress:    1,
			Threshold:   3,
			Shares:      5,
		},
	}
	server := createTestServer(WithSealManager(seal))
	router := server.setupRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sys/seal-status", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response sealStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Initialized)
	assert.True(t, response.Sealed)
	assert.Equal(t, 1, response.Progress)
	assert.Equal(t, 3, response.Threshold)
	assert.Equal(t, 5, response.Shares)
}

func TestUnsealHandler(t *testing.T) {
	t.Run("submits the share with the client address as source", func(t *testing.T) {
		seal := &fakeSealManager{
			status: &cryptoDomain.SealStatus{Initialized: true, Sealed: false, Threshold: 3, Shares: 5},
		}
		server := createTestServer(WithSealManager(seal))
		router := server.setupRouter()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/v1/sys/unseal", strings.NewReader(`{"share":"s.abc123"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "s.abc123", seal.lastShare)
		assert.NotEmpty(t, seal.lastSource)

		var response sealStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.False(t, response.Sealed)
	})

	t.Run("rejects a missing share", func(t *testing.T) {
		server := createTestServer(WithSealManager(&fakeSealManager{}))
		router := server.setupRouter()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/v1/sys/unseal", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("maps rate limiting to 429", func(t *testing.T) {
		seal := &fakeSealManager{unsealErr: apperrors.ErrRateLimited}
		server := createTestServer(WithSealManager(seal))
		router := server.setupRouter()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/v1/sys/unseal", strings.NewReader(`{"share":"s.abc123"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})
}

func TestSealHandler(t *testing.T) {
	server := createTestServer(WithSealManager(&fakeSealManager{}))
	router := server.setupRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/sys/seal", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

// TestCustomLoggerMiddleware tests the custom logging middleware.
func TestCustomLoggerMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := gin.New()
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(logger))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "test"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "test", response["message"])
}

// TestRecoveryMiddleware tests Gin's built-in recovery middleware.
func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(logger))
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)

	// Should not panic - Recovery middleware catches it
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// TestRouter_NotFoundEndpoint tests 404 handling.
func TestRouter_NotFoundEndpoint(t *testing.T) {
	server := createTestServer()
	router := server.setupRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestServer_ShutdownGracefully tests graceful server shutdown.
func TestServer_ShutdownGracefully(t *testing.T) {
	server := createTestServer()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(context.Background()); err != nil {
			errChan <- err
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	err := server.Shutdown(shutdownCtx)
	assert.NoError(t, err)

	select {
	case err := <-errChan:
		t.Fatalf("server failed to start: %v", err)
	default:
	}
}

// TestMetricsServer_Handler tests that the metrics endpoint is registered.
func TestMetricsServer_Handler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	provider, err := metrics.NewProvider("usp_test")
	require.NoError(t, err)
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	server := NewMetricsServer("localhost", 0, logger, provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	server.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
