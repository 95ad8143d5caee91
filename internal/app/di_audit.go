package app

import (
	"fmt"
	"sync"

	auditRepository "github.com/allisson/usp/internal/audit/repository"
	auditUseCase "github.com/allisson/usp/internal/audit/usecase"
)

// auditComponents groups the audit log dependencies. started tracks whether
// the single-writer loop is running so Shutdown only drains a live loop.
type auditComponents struct {
	repo    auditUseCase.AuditLogRepository
	useCase auditUseCase.AuditLogUseCase
	started bool

	repoInit    sync.Once
	useCaseInit sync.Once
}

// AuditLogRepository returns the audit log repository.
func (c *Container) AuditLogRepository() (auditUseCase.AuditLogRepository, error) {
	var err error
	c.audit.repoInit.Do(func() {
		c.audit.repo, err = c.initAuditLogRepository()
		if err != nil {
			c.initErrors["auditLogRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["auditLogRepo"]; exists {
		return nil, storedErr
	}
	return c.audit.repo, nil
}

// AuditLogUseCase returns the audit log service. The single-writer loop is
// not started here; call StartAuditWriter before recording entries.
func (c *Container) AuditLogUseCase() (auditUseCase.AuditLogUseCase, error) {
	var err error
	c.audit.useCaseInit.Do(func() {
		c.audit.useCase, err = c.initAuditLogUseCase()
		if err != nil {
			c.initErrors["auditLogUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["auditLogUseCase"]; exists {
		return nil, storedErr
	}
	return c.audit.useCase, nil
}

// StartAuditWriter launches the audit append loop once. Shutdown drains it.
func (c *Container) StartAuditWriter() error {
	useCase, err := c.AuditLogUseCase()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.audit.started {
		useCase.Start()
		c.audit.started = true
	}
	return nil
}

// initAuditLogRepository creates the audit log repository.
func (c *Container) initAuditLogRepository() (auditUseCase.AuditLogRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for audit log repository: %w", err)
	}
	return auditRepository.NewPostgreSQLAuditLogRepository(db), nil
}

// initAuditLogUseCase creates the audit log service with all its dependencies.
func (c *Container) initAuditLogUseCase() (auditUseCase.AuditLogUseCase, error) {
	repo, err := c.AuditLogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log repository for audit log use case: %w", err)
	}

	return auditUseCase.NewAuditLogUseCase(
		repo,
		c.Barrier(),
		c.Logger(),
		c.config.AuditQueueSize,
	), nil
}
