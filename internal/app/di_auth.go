package app

import (
	"fmt"
	"strings"
	"sync"

	authRepository "github.com/allisson/usp/internal/auth/repository"
	authService "github.com/allisson/usp/internal/auth/service"
	authUseCase "github.com/allisson/usp/internal/auth/usecase"
)

// authComponents groups the authentication dependencies.
type authComponents struct {
	userRepo    authUseCase.UserRepository
	sessionRepo authUseCase.SessionRepository
	mfaRepo     authUseCase.MfaRepository
	deviceRepo  authUseCase.DeviceRepository
	passwords   authService.PasswordService
	tokens      authService.TokenService
	jwt         authService.JwtService
	totp        authService.TotpService
	risk        authService.RiskEngine
	useCase     authUseCase.AuthUseCase
	userUseCase authUseCase.UserUseCase

	userRepoInit    sync.Once
	sessionRepoInit sync.Once
	mfaRepoInit     sync.Once
	deviceRepoInit  sync.Once
	passwordsInit   sync.Once
	tokensInit      sync.Once
	jwtInit         sync.Once
	totpInit        sync.Once
	riskInit        sync.Once
	useCaseInit     sync.Once
	userUseCaseInit sync.Once
}

// UserRepository returns the user repository.
func (c *Container) UserRepository() (authUseCase.UserRepository, error) {
	var err error
	c.auth.userRepoInit.Do(func() {
		c.auth.userRepo, err = c.initUserRepository()
		if err != nil {
			c.initErrors["userRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["userRepo"]; exists {
		return nil, storedErr
	}
	return c.auth.userRepo, nil
}

// SessionRepository returns the session repository.
func (c *Container) SessionRepository() (authUseCase.SessionRepository, error) {
	var err error
	c.auth.sessionRepoInit.Do(func() {
		c.auth.sessionRepo, err = c.initSessionRepository()
		if err != nil {
			c.initErrors["sessionRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sessionRepo"]; exists {
		return nil, storedErr
	}
	return c.auth.sessionRepo, nil
}

// MfaRepository returns the MFA enrollment and challenge repository.
func (c *Container) MfaRepository() (authUseCase.MfaRepository, error) {
	var err error
	c.auth.mfaRepoInit.Do(func() {
		c.auth.mfaRepo, err = c.initMfaRepository()
		if err != nil {
			c.initErrors["mfaRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["mfaRepo"]; exists {
		return nil, storedErr
	}
	return c.auth.mfaRepo, nil
}

// DeviceRepository returns the trusted device repository.
func (c *Container) DeviceRepository() (authUseCase.DeviceRepository, error) {
	var err error
	c.auth.deviceRepoInit.Do(func() {
		c.auth.deviceRepo, err = c.initDeviceRepository()
		if err != nil {
			c.initErrors["deviceRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["deviceRepo"]; exists {
		return nil, storedErr
	}
	return c.auth.deviceRepo, nil
}

// PasswordService returns the argon2id password hasher.
func (c *Container) PasswordService() authService.PasswordService {
	c.auth.passwordsInit.Do(func() {
		c.auth.passwords = authService.NewPasswordService()
	})
	return c.auth.passwords
}

// TokenService returns the opaque token generator.
func (c *Container) TokenService() authService.TokenService {
	c.auth.tokensInit.Do(func() {
		c.auth.tokens = authService.NewTokenService()
	})
	return c.auth.tokens
}

// JwtService returns the JWT signer configured from the environment.
func (c *Container) JwtService() (authService.JwtService, error) {
	var err error
	c.auth.jwtInit.Do(func() {
		c.auth.jwt, err = authService.NewJwtService(c.config.JwtAlgorithm, []byte(c.config.JwtSigningKey))
		if err != nil {
			c.initErrors["jwtService"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["jwtService"]; exists {
		return nil, storedErr
	}
	return c.auth.jwt, nil
}

// TotpService returns the TOTP enrollment and verification service.
func (c *Container) TotpService() authService.TotpService {
	c.auth.totpInit.Do(func() {
		c.auth.totp = authService.NewTotpService(c.config.TotpIssuer)
	})
	return c.auth.totp
}

// RiskEngine returns the login risk scorer.
func (c *Container) RiskEngine() authService.RiskEngine {
	c.auth.riskInit.Do(func() {
		c.auth.risk = authService.NewRiskEngine(splitCommaList(c.config.RiskBadIPs))
	})
	return c.auth.risk
}

// AuthUseCase returns the authentication engine.
func (c *Container) AuthUseCase() (authUseCase.AuthUseCase, error) {
	var err error
	c.auth.useCaseInit.Do(func() {
		c.auth.useCase, err = c.initAuthUseCase()
		if err != nil {
			c.initErrors["authUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["authUseCase"]; exists {
		return nil, storedErr
	}
	return c.auth.useCase, nil
}

// UserUseCase returns the user management use case.
func (c *Container) UserUseCase() (authUseCase.UserUseCase, error) {
	var err error
	c.auth.userUseCaseInit.Do(func() {
		c.auth.userUseCase, err = c.initUserUseCase()
		if err != nil {
			c.initErrors["userUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["userUseCase"]; exists {
		return nil, storedErr
	}
	return c.auth.userUseCase, nil
}

// initUserRepository creates the user repository.
func (c *Container) initUserRepository() (authUseCase.UserRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for user repository: %w", err)
	}
	return authRepository.NewPostgreSQLUserRepository(db), nil
}

// initSessionRepository creates the session repository.
func (c *Container) initSessionRepository() (authUseCase.SessionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for session repository: %w", err)
	}
	return authRepository.NewPostgreSQLSessionRepository(db), nil
}

// initMfaRepository creates the MFA repository.
func (c *Container) initMfaRepository() (authUseCase.MfaRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for mfa repository: %w", err)
	}
	return authRepository.NewPostgreSQLMfaRepository(db), nil
}

// initDeviceRepository creates the trusted device repository.
func (c *Container) initDeviceRepository() (authUseCase.DeviceRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for device repository: %w", err)
	}
	return authRepository.NewPostgreSQLDeviceRepository(db), nil
}

// initAuthUseCase creates the authentication engine with all its dependencies.
func (c *Container) initAuthUseCase() (authUseCase.AuthUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for auth use case: %w", err)
	}

	userRepo, err := c.UserRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get user repository for auth use case: %w", err)
	}

	sessionRepo, err := c.SessionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get session repository for auth use case: %w", err)
	}

	mfaRepo, err := c.MfaRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get mfa repository for auth use case: %w", err)
	}

	deviceRepo, err := c.DeviceRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get device repository for auth use case: %w", err)
	}

	policyUseCase, err := c.PolicyUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy use case for auth use case: %w", err)
	}

	jwtService, err := c.JwtService()
	if err != nil {
		return nil, fmt.Errorf("failed to get jwt service for auth use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for auth use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for auth use case: %w", err)
	}

	useCase := authUseCase.NewAuthUseCase(
		txManager,
		userRepo,
		sessionRepo,
		mfaRepo,
		deviceRepo,
		policyUseCase,
		c.PasswordService(),
		c.TokenService(),
		jwtService,
		c.TotpService(),
		c.RiskEngine(),
		c.Barrier(),
		// Delegated second factors (SMS/email OTP, WebAuthn, hardware OTP,
		// push) need deployment-specific providers; unset factors are
		// rejected with not-supported.
		authUseCase.Providers{},
		auditUseCase,
		c.Logger(),
		authUseCase.Config{
			AccessTokenTTL:        c.config.AccessTokenTTL,
			RefreshTokenTTL:       c.config.RefreshTokenTTL,
			LockoutThreshold:      uint(c.config.LockoutMaxAttempts),
			LockoutCooldown:       c.config.LockoutDuration,
			MaxConcurrentSessions: c.config.MaxConcurrentSessions,
			RotateRefreshTokens:   c.config.RotateRefreshTokens,
			MfaRiskThreshold:      uint(c.config.MfaRiskThreshold),
			DenyRiskThreshold:     uint(c.config.DenyRiskThreshold),
		},
	)

	return authUseCase.NewAuthUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initUserUseCase creates the user management use case.
func (c *Container) initUserUseCase() (authUseCase.UserUseCase, error) {
	userRepo, err := c.UserRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get user repository for user use case: %w", err)
	}

	mfaRepo, err := c.MfaRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get mfa repository for user use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for user use case: %w", err)
	}

	return authUseCase.NewUserUseCase(
		userRepo,
		mfaRepo,
		c.PasswordService(),
		c.TotpService(),
		c.Barrier(),
		auditUseCase,
		c.Logger(),
	), nil
}

// splitCommaList parses a comma-separated list, trimming whitespace and
// dropping empty items.
func splitCommaList(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
