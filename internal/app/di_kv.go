package app

import (
	"fmt"
	"sync"

	kvRepository "github.com/allisson/usp/internal/kv/repository"
	kvUseCase "github.com/allisson/usp/internal/kv/usecase"
)

// kvComponents groups the versioned secrets engine dependencies.
type kvComponents struct {
	metadataRepo kvUseCase.SecretMetadataRepository
	versionRepo  kvUseCase.SecretVersionRepository
	useCase      kvUseCase.KvUseCase

	metadataRepoInit sync.Once
	versionRepoInit  sync.Once
	useCaseInit      sync.Once
}

// SecretMetadataRepository returns the secret metadata repository.
func (c *Container) SecretMetadataRepository() (kvUseCase.SecretMetadataRepository, error) {
	var err error
	c.kv.metadataRepoInit.Do(func() {
		c.kv.metadataRepo, err = c.initSecretMetadataRepository()
		if err != nil {
			c.initErrors["secretMetadataRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["secretMetadataRepo"]; exists {
		return nil, storedErr
	}
	return c.kv.metadataRepo, nil
}

// SecretVersionRepository returns the secret version repository.
func (c *Container) SecretVersionRepository() (kvUseCase.SecretVersionRepository, error) {
	var err error
	c.kv.versionRepoInit.Do(func() {
		c.kv.versionRepo, err = c.initSecretVersionRepository()
		if err != nil {
			c.initErrors["secretVersionRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["secretVersionRepo"]; exists {
		return nil, storedErr
	}
	return c.kv.versionRepo, nil
}

// KvUseCase returns the versioned secrets engine.
func (c *Container) KvUseCase() (kvUseCase.KvUseCase, error) {
	var err error
	c.kv.useCaseInit.Do(func() {
		c.kv.useCase, err = c.initKvUseCase()
		if err != nil {
			c.initErrors["kvUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kvUseCase"]; exists {
		return nil, storedErr
	}
	return c.kv.useCase, nil
}

// initSecretMetadataRepository creates the secret metadata repository.
func (c *Container) initSecretMetadataRepository() (kvUseCase.SecretMetadataRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for secret metadata repository: %w", err)
	}
	return kvRepository.NewPostgreSQLSecretMetadataRepository(db), nil
}

// initSecretVersionRepository creates the secret version repository.
func (c *Container) initSecretVersionRepository() (kvUseCase.SecretVersionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for secret version repository: %w", err)
	}
	return kvRepository.NewPostgreSQLSecretVersionRepository(db), nil
}

// initKvUseCase creates the versioned secrets engine with all its dependencies.
func (c *Container) initKvUseCase() (kvUseCase.KvUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for kv use case: %w", err)
	}

	metadataRepo, err := c.SecretMetadataRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret metadata repository for kv use case: %w", err)
	}

	versionRepo, err := c.SecretVersionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret version repository for kv use case: %w", err)
	}

	transitUseCase, err := c.TransitUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get transit use case for kv use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for kv use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for kv use case: %w", err)
	}

	useCase := kvUseCase.NewKvUseCase(
		txManager,
		metadataRepo,
		versionRepo,
		transitUseCase,
		c.MasterKeyCell(),
		auditUseCase,
		c.Logger(),
	)

	return kvUseCase.NewKvUseCaseWithMetrics(useCase, businessMetrics), nil
}
