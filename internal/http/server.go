// Package http provides the operational HTTP server: health and readiness
// probes plus the seal endpoints. Vault data operations are not exposed here.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	"github.com/allisson/usp/internal/httputil"
)

// SealManager is the seal surface exposed over the operational API. Unseal
// has to run in the server process because the reconstructed master key
// lives only in its memory.
type SealManager interface {
	Unseal(ctx context.Context, source, share string) (*cryptoDomain.SealStatus, error)
	Seal(ctx context.Context) error
	Status(ctx context.Context) (*cryptoDomain.SealStatus, error)
}

// Server represents the operational HTTP server.
type Server struct {
	db     *sql.DB
	seal   SealManager
	cors   gin.HandlerFunc
	router *gin.Engine
	server *http.Server
	logger *slog.Logger
}

// Option configures optional server behavior.
type Option func(*Server)

// WithSealManager registers the seal endpoints.
func WithSealManager(seal SealManager) Option {
	return func(s *Server) {
		s.seal = seal
	}
}

// WithCORS enables CORS for the configured origins.
func WithCORS(enabled bool, allowOrigins string) Option {
	return func(s *Server) {
		s.cors = createCORSMiddleware(enabled, allowOrigins, s.logger)
	}
}

// NewServer creates a new operational HTTP server.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
	options ...Option,
) *Server {
	server := &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	for _, option := range options {
		option(server)
	}

	return server
}

// setupRouter builds the gin router with the operational routes.
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if s.cors != nil {
		router.Use(s.cors)
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	if s.seal != nil {
		sys := router.Group("/v1/sys")
		sys.GET("/seal-status", s.sealStatusHandler)
		sys.PUT("/unseal", s.unsealHandler)
		sys.PUT("/seal", s.sealHandler)
	}

	return router
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		s.router = s.setupRouter()
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the server can serve traffic.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{}
	ready := true

	if s.db == nil {
		components["database"] = "error"
		ready = false
	} else {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := s.db.PingContext(pingCtx); err != nil {
			components["database"] = "error"
			ready = false
		} else {
			components["database"] = "ok"
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": components,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": components,
	})
}

// sealStatusResponse is the wire form of the seal status. It never carries
// key material or shares.
type sealStatusResponse struct {
	Initialized bool `json:"initialized"`
	Sealed      bool `json:"sealed"`
	Progress    int  `json:"progress"`
	Threshold   int  `json:"threshold"`
	Shares      int  `json:"shares"`
}

func newSealStatusResponse(status *cryptoDomain.SealStatus) sealStatusResponse {
	return sealStatusResponse{
		Initialized: status.Initialized,
		Sealed:      status.Sealed,
		Progress:    status.Progress,
		Threshold:   status.Threshold,
		Shares:      status.Shares,
	}
}

func (s *Server) sealStatusHandler(c *gin.Context) {
	status, err := s.seal.Status(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, s.logger)
		return
	}

	c.JSON(http.StatusOK, newSealStatusResponse(status))
}

type unsealRequest struct {
	Share string `json:"share" binding:"required"`
}

func (s *Server) unsealHandler(c *gin.Context) {
	var request unsealRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleBadRequestGin(c, err, s.logger)
		return
	}

	status, err := s.seal.Unseal(c.Request.Context(), c.ClientIP(), request.Share)
	if err != nil {
		httputil.HandleErrorGin(c, err, s.logger)
		return
	}

	c.JSON(http.StatusOK, newSealStatusResponse(status))
}

func (s *Server) sealHandler(c *gin.Context) {
	if err := s.seal.Seal(c.Request.Context()); err != nil {
		httputil.HandleErrorGin(c, err, s.logger)
		return
	}

	c.Status(http.StatusNoContent)
}
