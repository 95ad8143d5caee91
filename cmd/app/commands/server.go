package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/usp/internal/app"
	"github.com/allisson/usp/internal/config"
)

// RunServer starts the platform server with graceful shutdown support.
// Loads configuration, initializes the DI container, starts the audit
// writer, compiles the policy set, launches the background sweepers, and
// serves the operational HTTP API until SIGINT/SIGTERM or a fatal error.
// The vault starts sealed; operators unseal it through the seal endpoints.
func RunServer(ctx context.Context, version string) error {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	// The audit writer must run before any use case records an entry.
	if err := container.StartAuditWriter(); err != nil {
		return fmt.Errorf("failed to start audit writer: %w", err)
	}

	// Compile the enabled policy set so authorization checks are served
	// from memory.
	policyUseCase, err := container.PolicyUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize policy use case: %w", err)
	}
	if err := policyUseCase.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load access policies: %w", err)
	}

	// Get HTTP server from container (this initializes all dependencies)
	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	// Get Metrics server from container
	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Background sweepers expire overdue checkouts and JIT grants and
	// rotate scheduled credentials.
	sweepers, sweeperCtx := errgroup.WithContext(ctx)
	startSweepers(sweeperCtx, sweepers, container, cfg.PamSweepInterval, logger)

	// Start servers in goroutines
	serverErr := make(chan error, 2)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("api server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or server error
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", err))
		runErr = err
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
	defer shutdownCancel()

	var shutdownErrors []error
	if runErr != nil {
		shutdownErrors = append(shutdownErrors, runErr)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if err := sweepers.Wait(); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("sweeper error: %w", err))
	}

	if len(shutdownErrors) > 0 {
		return errors.Join(shutdownErrors...)
	}

	return nil
}

// startSweepers launches the periodic maintenance loops. Sweeper failures
// are logged and retried on the next tick; only initialization failures
// stop the group.
func startSweepers(
	ctx context.Context,
	group *errgroup.Group,
	container *app.Container,
	interval time.Duration,
	logger *slog.Logger,
) {
	if interval <= 0 {
		interval = time.Minute
	}

	group.Go(func() error {
		checkoutUseCase, err := container.CheckoutUseCase()
		if err != nil {
			return fmt.Errorf("failed to initialize checkout use case: %w", err)
		}
		jitUseCase, err := container.JitUseCase()
		if err != nil {
			return fmt.Errorf("failed to initialize jit use case: %w", err)
		}
		rotationUseCase, err := container.RotationUseCase()
		if err != nil {
			return fmt.Errorf("failed to initialize rotation use case: %w", err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				if count, err := checkoutUseCase.ExpireOverdue(ctx, now); err != nil {
					logger.Error("checkout sweep failed", slog.Any("error", err))
				} else if count > 0 {
					logger.Info("expired overdue checkouts", slog.Int("count", count))
				}

				if count, err := jitUseCase.SweepExpired(ctx, now); err != nil {
					logger.Error("jit sweep failed", slog.Any("error", err))
				} else if count > 0 {
					logger.Info("expired jit grants", slog.Int("count", count))
				}

				// Scheduled rotation needs the master key; skip quietly
				// while the vault is sealed.
				if count, err := rotationUseCase.RotateDue(ctx, now); err != nil {
					logger.Debug("scheduled rotation skipped", slog.Any("error", err))
				} else if count > 0 {
					logger.Info("rotated due accounts", slog.Int("count", count))
				}
			}
		}
	})
}
