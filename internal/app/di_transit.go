package app

import (
	"fmt"
	"sync"

	transitDomain "github.com/allisson/usp/internal/transit/domain"
	transitRepository "github.com/allisson/usp/internal/transit/repository"
	transitService "github.com/allisson/usp/internal/transit/service"
	transitUseCase "github.com/allisson/usp/internal/transit/usecase"
)

// transitComponents groups the transit engine dependencies.
type transitComponents struct {
	keyRepo     transitUseCase.TransitKeyRepository
	versionRepo transitUseCase.TransitKeyVersionRepository
	keyOps      transitService.KeyOperations
	useCase     transitUseCase.TransitUseCase

	keyRepoInit     sync.Once
	versionRepoInit sync.Once
	keyOpsInit      sync.Once
	useCaseInit     sync.Once
}

// TransitKeyRepository returns the transit key repository.
func (c *Container) TransitKeyRepository() (transitUseCase.TransitKeyRepository, error) {
	var err error
	c.transit.keyRepoInit.Do(func() {
		c.transit.keyRepo, err = c.initTransitKeyRepository()
		if err != nil {
			c.initErrors["transitKeyRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["transitKeyRepo"]; exists {
		return nil, storedErr
	}
	return c.transit.keyRepo, nil
}

// TransitKeyVersionRepository returns the transit key version repository.
func (c *Container) TransitKeyVersionRepository() (transitUseCase.TransitKeyVersionRepository, error) {
	var err error
	c.transit.versionRepoInit.Do(func() {
		c.transit.versionRepo, err = c.initTransitKeyVersionRepository()
		if err != nil {
			c.initErrors["transitKeyVersionRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["transitKeyVersionRepo"]; exists {
		return nil, storedErr
	}
	return c.transit.versionRepo, nil
}

// KeyOperations returns the transit cryptographic operations service.
func (c *Container) KeyOperations() transitService.KeyOperations {
	c.transit.keyOpsInit.Do(func() {
		c.transit.keyOps = transitService.NewKeyOperations()
	})
	return c.transit.keyOps
}

// TransitUseCase returns the transit engine.
func (c *Container) TransitUseCase() (transitUseCase.TransitUseCase, error) {
	var err error
	c.transit.useCaseInit.Do(func() {
		c.transit.useCase, err = c.initTransitUseCase()
		if err != nil {
			c.initErrors["transitUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["transitUseCase"]; exists {
		return nil, storedErr
	}
	return c.transit.useCase, nil
}

// initTransitKeyRepository creates the transit key repository.
func (c *Container) initTransitKeyRepository() (transitUseCase.TransitKeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for transit key repository: %w", err)
	}
	return transitRepository.NewPostgreSQLTransitKeyRepository(db), nil
}

// initTransitKeyVersionRepository creates the transit key version repository.
func (c *Container) initTransitKeyVersionRepository() (transitUseCase.TransitKeyVersionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for transit key version repository: %w", err)
	}
	return transitRepository.NewPostgreSQLTransitKeyVersionRepository(db), nil
}

// initTransitUseCase creates the transit engine with all its dependencies.
func (c *Container) initTransitUseCase() (transitUseCase.TransitUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for transit use case: %w", err)
	}

	keyRepo, err := c.TransitKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get transit key repository for transit use case: %w", err)
	}

	versionRepo, err := c.TransitKeyVersionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get transit key version repository for transit use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for transit use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for transit use case: %w", err)
	}

	useCase := transitUseCase.NewTransitUseCase(
		txManager,
		keyRepo,
		versionRepo,
		c.KeyOperations(),
		c.Barrier(),
		c.MasterKeyCell(),
		auditUseCase,
		c.Logger(),
		transitUseCase.Config{
			AllowedTypes:           transitDomain.KeyTypes,
			DeletionAllowedDefault: false,
		},
	)

	return transitUseCase.NewTransitUseCaseWithMetrics(useCase, businessMetrics), nil
}
