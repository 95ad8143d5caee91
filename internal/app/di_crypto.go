package app

import (
	"context"
	"fmt"
	"sync"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	cryptoRepository "github.com/allisson/usp/internal/crypto/repository"
	cryptoService "github.com/allisson/usp/internal/crypto/service"
	cryptoUseCase "github.com/allisson/usp/internal/crypto/usecase"
)

// cryptoComponents groups the seal and barrier dependencies.
type cryptoComponents struct {
	keeperService cryptoService.KeeperService
	keeper        cryptoService.KekKeeper
	cell          *cryptoDomain.MasterKeyCell
	barrier       cryptoService.Barrier
	sealRepo      cryptoUseCase.SealConfigRepository
	sealUseCase   cryptoUseCase.SealUseCase

	keeperServiceInit sync.Once
	keeperInit        sync.Once
	cellInit          sync.Once
	barrierInit       sync.Once
	sealRepoInit      sync.Once
	sealUseCaseInit   sync.Once
}

// KeeperService returns the KEK keeper opener.
func (c *Container) KeeperService() cryptoService.KeeperService {
	c.crypto.keeperServiceInit.Do(func() {
		c.crypto.keeperService = cryptoService.NewKeeperService()
	})
	return c.crypto.keeperService
}

// KekKeeper returns the opened KEK keeper for the configured provider URI.
func (c *Container) KekKeeper() (cryptoService.KekKeeper, error) {
	var err error
	c.crypto.keeperInit.Do(func() {
		c.crypto.keeper, err = c.initKekKeeper()
		if err != nil {
			c.initErrors["kekKeeper"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kekKeeper"]; exists {
		return nil, storedErr
	}
	return c.crypto.keeper, nil
}

// MasterKeyCell returns the in-memory master key cell shared by the seal
// manager and the barrier.
func (c *Container) MasterKeyCell() *cryptoDomain.MasterKeyCell {
	c.crypto.cellInit.Do(func() {
		c.crypto.cell = cryptoDomain.NewMasterKeyCell()
	})
	return c.crypto.cell
}

// Barrier returns the encryption barrier backed by the master key cell.
func (c *Container) Barrier() cryptoService.Barrier {
	c.crypto.barrierInit.Do(func() {
		c.crypto.barrier = cryptoService.NewBarrier(c.MasterKeyCell())
	})
	return c.crypto.barrier
}

// SealConfigRepository returns the seal configuration repository.
func (c *Container) SealConfigRepository() (cryptoUseCase.SealConfigRepository, error) {
	var err error
	c.crypto.sealRepoInit.Do(func() {
		c.crypto.sealRepo, err = c.initSealConfigRepository()
		if err != nil {
			c.initErrors["sealConfigRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sealConfigRepo"]; exists {
		return nil, storedErr
	}
	return c.crypto.sealRepo, nil
}

// SealUseCase returns the seal manager.
func (c *Container) SealUseCase() (cryptoUseCase.SealUseCase, error) {
	var err error
	c.crypto.sealUseCaseInit.Do(func() {
		c.crypto.sealUseCase, err = c.initSealUseCase()
		if err != nil {
			c.initErrors["sealUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sealUseCase"]; exists {
		return nil, storedErr
	}
	return c.crypto.sealUseCase, nil
}

// initKekKeeper opens the configured KEK keeper.
func (c *Container) initKekKeeper() (cryptoService.KekKeeper, error) {
	keeper, err := c.KeeperService().OpenKeeper(context.Background(), c.config.KekKeeperURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open kek keeper: %w", err)
	}
	return keeper, nil
}

// initSealConfigRepository creates the seal configuration repository.
func (c *Container) initSealConfigRepository() (cryptoUseCase.SealConfigRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for seal config repository: %w", err)
	}
	return cryptoRepository.NewPostgreSQLSealConfigRepository(db), nil
}

// initSealUseCase creates the seal manager with all its dependencies.
func (c *Container) initSealUseCase() (cryptoUseCase.SealUseCase, error) {
	sealRepo, err := c.SealConfigRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get seal config repository for seal use case: %w", err)
	}

	keeper, err := c.KekKeeper()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek keeper for seal use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for seal use case: %w", err)
	}

	return cryptoUseCase.NewSealUseCase(
		sealRepo,
		keeper,
		c.MasterKeyCell(),
		auditUseCase,
		c.config.UnsealAttemptsPerMinute,
		c.config.UnsealBurst,
	), nil
}
