package app

import (
	"fmt"
	"sync"

	"github.com/allisson/usp/internal/pam/connector"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
	pamRepository "github.com/allisson/usp/internal/pam/repository"
	pamService "github.com/allisson/usp/internal/pam/service"
	pamUseCase "github.com/allisson/usp/internal/pam/usecase"
)

// pamComponents groups the privileged access management dependencies.
type pamComponents struct {
	safeRepo     pamUseCase.SafeRepository
	accountRepo  pamUseCase.AccountRepository
	checkoutRepo pamUseCase.CheckoutRepository
	approvalRepo pamUseCase.ApprovalRepository
	sessionRepo  pamUseCase.SessionRepository
	jitRepo      pamUseCase.JitRepository
	registry     *connector.Registry
	safes        pamUseCase.SafeUseCase
	rotation     pamUseCase.RotationUseCase
	checkouts    pamUseCase.CheckoutUseCase
	sessions     pamUseCase.SessionUseCase
	jit          pamUseCase.JitUseCase

	safeRepoInit     sync.Once
	accountRepoInit  sync.Once
	checkoutRepoInit sync.Once
	approvalRepoInit sync.Once
	sessionRepoInit  sync.Once
	jitRepoInit      sync.Once
	registryInit     sync.Once
	safesInit        sync.Once
	rotationInit     sync.Once
	checkoutsInit    sync.Once
	sessionsInit     sync.Once
	jitInit          sync.Once
}

// SafeRepository returns the safe repository.
func (c *Container) SafeRepository() (pamUseCase.SafeRepository, error) {
	var err error
	c.pam.safeRepoInit.Do(func() {
		c.pam.safeRepo, err = c.initSafeRepository()
		if err != nil {
			c.initErrors["safeRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["safeRepo"]; exists {
		return nil, storedErr
	}
	return c.pam.safeRepo, nil
}

// AccountRepository returns the privileged account repository.
func (c *Container) AccountRepository() (pamUseCase.AccountRepository, error) {
	var err error
	c.pam.accountRepoInit.Do(func() {
		c.pam.accountRepo, err = c.initAccountRepository()
		if err != nil {
			c.initErrors["accountRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["accountRepo"]; exists {
		return nil, storedErr
	}
	return c.pam.accountRepo, nil
}

// CheckoutRepository returns the checkout repository.
func (c *Container) CheckoutRepository() (pamUseCase.CheckoutRepository, error) {
	var err error
	c.pam.checkoutRepoInit.Do(func() {
		c.pam.checkoutRepo, err = c.initCheckoutRepository()
		if err != nil {
			c.initErrors["checkoutRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["checkoutRepo"]; exists {
		return nil, storedErr
	}
	return c.pam.checkoutRepo, nil
}

// ApprovalRepository returns the access approval repository.
func (c *Container) ApprovalRepository() (pamUseCase.ApprovalRepository, error) {
	var err error
	c.pam.approvalRepoInit.Do(func() {
		c.pam.approvalRepo, err = c.initApprovalRepository()
		if err != nil {
			c.initErrors["approvalRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["approvalRepo"]; exists {
		return nil, storedErr
	}
	return c.pam.approvalRepo, nil
}

// PamSessionRepository returns the privileged session repository.
func (c *Container) PamSessionRepository() (pamUseCase.SessionRepository, error) {
	var err error
	c.pam.sessionRepoInit.Do(func() {
		c.pam.sessionRepo, err = c.initPamSessionRepository()
		if err != nil {
			c.initErrors["pamSessionRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["pamSessionRepo"]; exists {
		return nil, storedErr
	}
	return c.pam.sessionRepo, nil
}

// JitRepository returns the just-in-time grant repository.
func (c *Container) JitRepository() (pamUseCase.JitRepository, error) {
	var err error
	c.pam.jitRepoInit.Do(func() {
		c.pam.jitRepo, err = c.initJitRepository()
		if err != nil {
			c.initErrors["jitRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["jitRepo"]; exists {
		return nil, storedErr
	}
	return c.pam.jitRepo, nil
}

// ConnectorRegistry returns the platform connector registry. Database
// connectors are registered out of the box; OS and cloud connectors need
// deployment-specific executors and are registered by the embedding binary.
func (c *Container) ConnectorRegistry() (*connector.Registry, error) {
	var err error
	c.pam.registryInit.Do(func() {
		c.pam.registry, err = c.initConnectorRegistry()
		if err != nil {
			c.initErrors["connectorRegistry"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["connectorRegistry"]; exists {
		return nil, storedErr
	}
	return c.pam.registry, nil
}

// SafeUseCase returns the safe management use case.
func (c *Container) SafeUseCase() (pamUseCase.SafeUseCase, error) {
	var err error
	c.pam.safesInit.Do(func() {
		c.pam.safes, err = c.initSafeUseCase()
		if err != nil {
			c.initErrors["safeUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["safeUseCase"]; exists {
		return nil, storedErr
	}
	return c.pam.safes, nil
}

// RotationUseCase returns the credential rotation engine.
func (c *Container) RotationUseCase() (pamUseCase.RotationUseCase, error) {
	var err error
	c.pam.rotationInit.Do(func() {
		c.pam.rotation, err = c.initRotationUseCase()
		if err != nil {
			c.initErrors["rotationUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["rotationUseCase"]; exists {
		return nil, storedErr
	}
	return c.pam.rotation, nil
}

// CheckoutUseCase returns the checkout state machine.
func (c *Container) CheckoutUseCase() (pamUseCase.CheckoutUseCase, error) {
	var err error
	c.pam.checkoutsInit.Do(func() {
		c.pam.checkouts, err = c.initCheckoutUseCase()
		if err != nil {
			c.initErrors["checkoutUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["checkoutUseCase"]; exists {
		return nil, storedErr
	}
	return c.pam.checkouts, nil
}

// PamSessionUseCase returns the session recording and playback use case.
func (c *Container) PamSessionUseCase() (pamUseCase.SessionUseCase, error) {
	var err error
	c.pam.sessionsInit.Do(func() {
		c.pam.sessions, err = c.initPamSessionUseCase()
		if err != nil {
			c.initErrors["pamSessionUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["pamSessionUseCase"]; exists {
		return nil, storedErr
	}
	return c.pam.sessions, nil
}

// JitUseCase returns the just-in-time access use case.
func (c *Container) JitUseCase() (pamUseCase.JitUseCase, error) {
	var err error
	c.pam.jitInit.Do(func() {
		c.pam.jit, err = c.initJitUseCase()
		if err != nil {
			c.initErrors["jitUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["jitUseCase"]; exists {
		return nil, storedErr
	}
	return c.pam.jit, nil
}

// initSafeRepository creates the safe repository.
func (c *Container) initSafeRepository() (pamUseCase.SafeRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for safe repository: %w", err)
	}
	return pamRepository.NewPostgreSQLSafeRepository(db), nil
}

// initAccountRepository creates the privileged account repository.
func (c *Container) initAccountRepository() (pamUseCase.AccountRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for account repository: %w", err)
	}
	return pamRepository.NewPostgreSQLAccountRepository(db), nil
}

// initCheckoutRepository creates the checkout repository.
func (c *Container) initCheckoutRepository() (pamUseCase.CheckoutRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for checkout repository: %w", err)
	}
	return pamRepository.NewPostgreSQLCheckoutRepository(db), nil
}

// initApprovalRepository creates the access approval repository.
func (c *Container) initApprovalRepository() (pamUseCase.ApprovalRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for approval repository: %w", err)
	}
	return pamRepository.NewPostgreSQLApprovalRepository(db), nil
}

// initPamSessionRepository creates the privileged session repository.
func (c *Container) initPamSessionRepository() (pamUseCase.SessionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for pam session repository: %w", err)
	}
	return pamRepository.NewPostgreSQLPamSessionRepository(db), nil
}

// initJitRepository creates the just-in-time grant repository.
func (c *Container) initJitRepository() (pamUseCase.JitRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for jit repository: %w", err)
	}
	return pamRepository.NewPostgreSQLJitRepository(db), nil
}

// initConnectorRegistry creates the registry with the built-in database
// connectors.
func (c *Container) initConnectorRegistry() (*connector.Registry, error) {
	generator, err := pamService.NewPasswordGenerator(pamService.DefaultComplexity)
	if err != nil {
		return nil, fmt.Errorf("failed to create password generator: %w", err)
	}

	registry := connector.NewRegistry()
	registry.Register(pamDomain.PlatformPostgres, connector.NewPostgresConnector(generator))
	registry.Register(pamDomain.PlatformMySQL, connector.NewMySQLConnector(generator))

	return registry, nil
}

// initSafeUseCase creates the safe management use case.
func (c *Container) initSafeUseCase() (pamUseCase.SafeUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for safe use case: %w", err)
	}

	safeRepo, err := c.SafeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get safe repository for safe use case: %w", err)
	}

	accountRepo, err := c.AccountRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get account repository for safe use case: %w", err)
	}

	transitUseCase, err := c.TransitUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get transit use case for safe use case: %w", err)
	}

	authUseCase, err := c.AuthUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth use case for safe use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for safe use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for safe use case: %w", err)
	}

	useCase := pamUseCase.NewSafeUseCase(
		txManager,
		safeRepo,
		accountRepo,
		transitUseCase,
		authUseCase,
		auditUseCase,
		c.Logger(),
	)

	return pamUseCase.NewSafeUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initRotationUseCase creates the credential rotation engine.
func (c *Container) initRotationUseCase() (pamUseCase.RotationUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for rotation use case: %w", err)
	}

	safeRepo, err := c.SafeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get safe repository for rotation use case: %w", err)
	}

	accountRepo, err := c.AccountRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get account repository for rotation use case: %w", err)
	}

	registry, err := c.ConnectorRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get connector registry for rotation use case: %w", err)
	}

	transitUseCase, err := c.TransitUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get transit use case for rotation use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for rotation use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for rotation use case: %w", err)
	}

	useCase := pamUseCase.NewRotationUseCase(
		txManager,
		safeRepo,
		accountRepo,
		registry,
		transitUseCase,
		auditUseCase,
		c.Logger(),
	)

	return pamUseCase.NewRotationUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initCheckoutUseCase creates the checkout state machine.
func (c *Container) initCheckoutUseCase() (pamUseCase.CheckoutUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for checkout use case: %w", err)
	}

	safeRepo, err := c.SafeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get safe repository for checkout use case: %w", err)
	}

	accountRepo, err := c.AccountRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get account repository for checkout use case: %w", err)
	}

	checkoutRepo, err := c.CheckoutRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout repository for checkout use case: %w", err)
	}

	approvalRepo, err := c.ApprovalRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get approval repository for checkout use case: %w", err)
	}

	sessionRepo, err := c.PamSessionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get pam session repository for checkout use case: %w", err)
	}

	rotation, err := c.RotationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get rotation use case for checkout use case: %w", err)
	}

	transitUseCase, err := c.TransitUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get transit use case for checkout use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for checkout use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for checkout use case: %w", err)
	}

	useCase := pamUseCase.NewCheckoutUseCase(
		txManager,
		safeRepo,
		accountRepo,
		checkoutRepo,
		approvalRepo,
		sessionRepo,
		rotation,
		transitUseCase,
		auditUseCase,
		c.Logger(),
	)

	return pamUseCase.NewCheckoutUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initPamSessionUseCase creates the session recording use case.
func (c *Container) initPamSessionUseCase() (pamUseCase.SessionUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for pam session use case: %w", err)
	}

	sessionRepo, err := c.PamSessionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get pam session repository for pam session use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for pam session use case: %w", err)
	}

	return pamUseCase.NewSessionUseCase(
		txManager,
		sessionRepo,
		pamService.NewSuspiciousDetector(nil),
		auditUseCase,
		c.Logger(),
	), nil
}

// initJitUseCase creates the just-in-time access use case.
func (c *Container) initJitUseCase() (pamUseCase.JitUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for jit use case: %w", err)
	}

	jitRepo, err := c.JitRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get jit repository for jit use case: %w", err)
	}

	approvalRepo, err := c.ApprovalRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get approval repository for jit use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for jit use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for jit use case: %w", err)
	}

	useCase := pamUseCase.NewJitUseCase(
		txManager,
		jitRepo,
		approvalRepo,
		auditUseCase,
		c.Logger(),
	)

	return pamUseCase.NewJitUseCaseWithMetrics(useCase, businessMetrics), nil
}
