package app

import (
	"fmt"
	"sync"

	policyRepository "github.com/allisson/usp/internal/policy/repository"
	policyUseCase "github.com/allisson/usp/internal/policy/usecase"
)

// policyComponents groups the authorization dependencies.
type policyComponents struct {
	roleRepo   policyUseCase.RoleRepository
	permRepo   policyUseCase.PermissionRepository
	policyRepo policyUseCase.AccessPolicyRepository
	useCase    policyUseCase.PolicyUseCase

	roleRepoInit   sync.Once
	permRepoInit   sync.Once
	policyRepoInit sync.Once
	useCaseInit    sync.Once
}

// RoleRepository returns the role repository.
func (c *Container) RoleRepository() (policyUseCase.RoleRepository, error) {
	var err error
	c.policy.roleRepoInit.Do(func() {
		c.policy.roleRepo, err = c.initRoleRepository()
		if err != nil {
			c.initErrors["roleRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["roleRepo"]; exists {
		return nil, storedErr
	}
	return c.policy.roleRepo, nil
}

// PermissionRepository returns the permission repository.
func (c *Container) PermissionRepository() (policyUseCase.PermissionRepository, error) {
	var err error
	c.policy.permRepoInit.Do(func() {
		c.policy.permRepo, err = c.initPermissionRepository()
		if err != nil {
			c.initErrors["permRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["permRepo"]; exists {
		return nil, storedErr
	}
	return c.policy.permRepo, nil
}

// AccessPolicyRepository returns the ABAC policy repository.
func (c *Container) AccessPolicyRepository() (policyUseCase.AccessPolicyRepository, error) {
	var err error
	c.policy.policyRepoInit.Do(func() {
		c.policy.policyRepo, err = c.initAccessPolicyRepository()
		if err != nil {
			c.initErrors["accessPolicyRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["accessPolicyRepo"]; exists {
		return nil, storedErr
	}
	return c.policy.policyRepo, nil
}

// PolicyUseCase returns the authorization use case. Call Reload before
// serving authorization checks.
func (c *Container) PolicyUseCase() (policyUseCase.PolicyUseCase, error) {
	var err error
	c.policy.useCaseInit.Do(func() {
		c.policy.useCase, err = c.initPolicyUseCase()
		if err != nil {
			c.initErrors["policyUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["policyUseCase"]; exists {
		return nil, storedErr
	}
	return c.policy.useCase, nil
}

// initRoleRepository creates the role repository.
func (c *Container) initRoleRepository() (policyUseCase.RoleRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for role repository: %w", err)
	}
	return policyRepository.NewPostgreSQLRoleRepository(db), nil
}

// initPermissionRepository creates the permission repository.
func (c *Container) initPermissionRepository() (policyUseCase.PermissionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for permission repository: %w", err)
	}
	return policyRepository.NewPostgreSQLPermissionRepository(db), nil
}

// initAccessPolicyRepository creates the ABAC policy repository.
func (c *Container) initAccessPolicyRepository() (policyUseCase.AccessPolicyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for access policy repository: %w", err)
	}
	return policyRepository.NewPostgreSQLAccessPolicyRepository(db), nil
}

// initPolicyUseCase creates the authorization use case with all its dependencies.
func (c *Container) initPolicyUseCase() (policyUseCase.PolicyUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for policy use case: %w", err)
	}

	roleRepo, err := c.RoleRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get role repository for policy use case: %w", err)
	}

	permRepo, err := c.PermissionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get permission repository for policy use case: %w", err)
	}

	policyRepo, err := c.AccessPolicyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get access policy repository for policy use case: %w", err)
	}

	auditUseCase, err := c.AuditLogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log use case for policy use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for policy use case: %w", err)
	}

	useCase := policyUseCase.NewPolicyUseCase(
		txManager,
		roleRepo,
		permRepo,
		policyRepo,
		auditUseCase,
		c.Logger(),
	)

	return policyUseCase.NewPolicyUseCaseWithMetrics(useCase, businessMetrics), nil
}
