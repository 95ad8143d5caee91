package usecase

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	apperrors "github.com/allisson/usp/internal/errors"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
)

func TestSafeUseCase_CreateSafe(t *testing.T) {
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV7())

	t.Run("applies the default checkout duration", func(t *testing.T) {
		f := newPamFixture(t)

		safe, err := f.safes.CreateSafe(ctx, CreateSafeInput{Name: "prod-db", OwnerID: owner})
		require.NoError(t, err)
		assert.Equal(t, uint(60), safe.MaxCheckoutDurationMinutes)
		assert.NotNil(t, f.recorder.lastOf(auditDomain.EventPamSafeCreate))
	})

	t.Run("rejects a duplicate name", func(t *testing.T) {
		f := newPamFixture(t)
		f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})

		_, err := f.safes.CreateSafe(ctx, CreateSafeInput{Name: "prod-db", OwnerID: owner})
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})

	t.Run("rejects a missing name", func(t *testing.T) {
		f := newPamFixture(t)

		_, err := f.safes.CreateSafe(ctx, CreateSafeInput{OwnerID: owner})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestSafeUseCase_UpdateSafe(t *testing.T) {
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV7())
	stranger := uuid.Must(uuid.NewV7())

	t.Run("patches only the provided fields", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db", Description: "production"})

		requireApproval := true
		updated, err := f.safes.UpdateSafe(ctx, owner, safe.ID, SafeUpdate{RequireApproval: &requireApproval})
		require.NoError(t, err)
		assert.True(t, updated.RequireApproval)
		assert.Equal(t, "production", updated.Description)
	})

	t.Run("requires manage", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})
		require.NoError(t, f.safes.GrantAccess(ctx, owner, safe.ID, stranger, pamDomain.PermissionCheckout))

		_, err := f.safes.UpdateSafe(ctx, stranger, safe.ID, SafeUpdate{})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})
}

func TestSafeUseCase_DeleteSafe(t *testing.T) {
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV7())

	t.Run("deletes an empty safe", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})

		require.NoError(t, f.safes.DeleteSafe(ctx, owner, safe.ID))

		_, err := f.safeRepo.GetByID(ctx, safe.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("refuses a safe that still holds accounts", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})
		f.createAccount(t, owner, CreateAccountInput{SafeID: safe.ID})

		err := f.safes.DeleteSafe(ctx, owner, safe.ID)
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	})
}

func TestSafeUseCase_Acl(t *testing.T) {
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV7())
	grantee := uuid.Must(uuid.NewV7())

	t.Run("grant and revoke change the effective permission", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})

		require.NoError(t, f.safes.GrantAccess(ctx, owner, safe.ID, grantee, pamDomain.PermissionRead))
		listed, err := f.safes.ListSafes(ctx, grantee)
		require.NoError(t, err)
		assert.Len(t, listed, 1)

		require.NoError(t, f.safes.RevokeAccess(ctx, owner, safe.ID, grantee))
		listed, err = f.safes.ListSafes(ctx, grantee)
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("rejects an unknown permission level", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})

		err := f.safes.GrantAccess(ctx, owner, safe.ID, grantee, pamDomain.SafePermission("root"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("only manage holders may grant", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})
		require.NoError(t, f.safes.GrantAccess(ctx, owner, safe.ID, grantee, pamDomain.PermissionCheckout))

		err := f.safes.GrantAccess(ctx, grantee, safe.ID, uuid.Must(uuid.NewV7()), pamDomain.PermissionRead)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})
}

func TestSafeUseCase_CreateAccount(t *testing.T) {
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV7())

	t.Run("stores the password encrypted under the credential key", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})

		account, err := f.safes.CreateAccount(ctx, owner, CreateAccountInput{
			SafeID:      safe.ID,
			AccountName: "db-admin",
			Username:    "app_user",
			Password:    "Initial!Secret9",
			Platform:    pamDomain.PlatformPostgres,
		})
		require.NoError(t, err)

		assert.Equal(t, "enc:Initial!Secret9", account.EncryptedPassword)
		assert.Equal(t, pamDomain.AccountActive, account.Status)
		assert.Equal(t, pamDomain.RotationManual, account.RotationPolicy)
		assert.Contains(t, f.cipher.ensuredKeys, CredentialKeyName)
		assert.NotNil(t, f.recorder.lastOf(auditDomain.EventPamAccountCreate))
	})

	t.Run("schedules the first rotation from the interval", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})

		account, err := f.safes.CreateAccount(ctx, owner, CreateAccountInput{
			SafeID:               safe.ID,
			AccountName:          "db-admin",
			Username:             "app_user",
			Password:             "Initial!Secret9",
			Platform:             pamDomain.PlatformPostgres,
			RotationPolicy:       pamDomain.RotationScheduled,
			RotationIntervalDays: 30,
		})
		require.NoError(t, err)
		require.NotNil(t, account.NextRotation)
	})

	t.Run("requires manage on the safe", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})

		_, err := f.safes.CreateAccount(ctx, uuid.Must(uuid.NewV7()), CreateAccountInput{
			SafeID:      safe.ID,
			AccountName: "db-admin",
			Username:    "app_user",
			Password:    "Initial!Secret9",
			Platform:    pamDomain.PlatformPostgres,
		})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})
}

func TestSafeUseCase_Reveal(t *testing.T) {
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV7())
	reader := uuid.Must(uuid.NewV7())

	t.Run("returns the plaintext for a read holder", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})
		account := f.createAccount(t, owner, CreateAccountInput{SafeID: safe.ID})
		require.NoError(t, f.safes.GrantAccess(ctx, owner, safe.ID, reader, pamDomain.PermissionRead))

		password, err := f.safes.Reveal(ctx, reader, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "Initial!Secret9", password)

		entry := f.recorder.lastOf(auditDomain.EventPamAccountReveal)
		require.NotNil(t, entry)
		assert.True(t, entry.Success)
		assert.Equal(t, "pam/safe/prod-db/db-admin", entry.Resource)
	})

	t.Run("demands step-up on approval-guarded safes", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db", RequireApproval: true})
		account := f.createAccount(t, owner, CreateAccountInput{SafeID: safe.ID})

		_, err := f.safes.Reveal(ctx, owner, account.ID)
		assert.ErrorIs(t, err, apperrors.ErrStepUpRequired)

		entry := f.recorder.lastOf(auditDomain.EventPamAccountReveal)
		require.NotNil(t, entry)
		assert.False(t, entry.Success)

		f.stepUp.active[owner] = true
		password, err := f.safes.Reveal(ctx, owner, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "Initial!Secret9", password)
	})

	t.Run("denies a user without read", func(t *testing.T) {
		f := newPamFixture(t)
		safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})
		account := f.createAccount(t, owner, CreateAccountInput{SafeID: safe.ID})

		_, err := f.safes.Reveal(ctx, uuid.Must(uuid.NewV7()), account.ID)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})
}

func TestSafeUseCase_ListAccounts(t *testing.T) {
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV7())

	f := newPamFixture(t)
	safe := f.createSafe(t, owner, CreateSafeInput{Name: "prod-db"})
	f.createAccount(t, owner, CreateAccountInput{SafeID: safe.ID})

	accounts, err := f.safes.ListAccounts(ctx, owner, safe.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	_, err = f.safes.ListAccounts(ctx, uuid.Must(uuid.NewV7()), safe.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
