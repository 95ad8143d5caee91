package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/validation"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
)

// safeUseCase implements SafeUseCase.
type safeUseCase struct {
	txManager   database.TxManager
	safeRepo    SafeRepository
	accountRepo AccountRepository
	cipher      CredentialCipher
	stepUp      StepUpChecker
	audit       auditDomain.Recorder
	logger      *slog.Logger
}

// NewSafeUseCase creates the safe management use case. stepUp may be nil
// when no step-up provider is deployed; reveal then skips the check for
// safes that do not require approval and refuses it for safes that do.
func NewSafeUseCase(
	txManager database.TxManager,
	safeRepo SafeRepository,
	accountRepo AccountRepository,
	cipher CredentialCipher,
	stepUp StepUpChecker,
	audit auditDomain.Recorder,
	logger *slog.Logger,
) SafeUseCase {
	return &safeUseCase{
		txManager:   txManager,
		safeRepo:    safeRepo,
		accountRepo: accountRepo,
		cipher:      cipher,
		stepUp:      stepUp,
		audit:       audit,
		logger:      logger,
	}
}

func (s *safeUseCase) CreateSafe(
	ctx context.Context,
	input CreateSafeInput,
) (*pamDomain.Safe, error) {
	err := validation.Errors{
		"name":    validation.Validate(input.Name, validation.Required, validation.Length(1, 128)),
		"ownerId": validation.Validate(input.OwnerID, validation.Required),
	}.Filter()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}

	if _, err := s.safeRepo.GetByName(ctx, input.Name); err == nil {
		return nil, apperrors.Wrap(apperrors.ErrAlreadyExists, "safe name already taken")
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	safe := &pamDomain.Safe{
		ID:                         uuid.Must(uuid.NewV7()),
		Name:                       input.Name,
		Description:                input.Description,
		OwnerID:                    input.OwnerID,
		RequireApproval:            input.RequireApproval,
		RequireDualControl:         input.RequireDualControl,
		MaxCheckoutDurationMinutes: input.MaxCheckoutDurationMinutes,
		RotateOnCheckin:            input.RotateOnCheckin,
		SessionRecordingEnabled:    input.SessionRecordingEnabled,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	if safe.MaxCheckoutDurationMinutes == 0 {
		safe.MaxCheckoutDurationMinutes = pamDomain.DefaultCheckoutDurationMinutes
	}

	err = s.safeRepo.Create(ctx, safe)
	s.recordEvent(ctx, auditDomain.EventPamSafeCreate, "safe:"+safe.Name, "create", err, nil)
	if err != nil {
		return nil, err
	}

	return safe, nil
}

func (s *safeUseCase) UpdateSafe(
	ctx context.Context,
	userID, safeID uuid.UUID,
	update SafeUpdate,
) (*pamDomain.Safe, error) {
	safe, err := s.authorize(ctx, userID, safeID, pamDomain.PermissionManage)
	if err != nil {
		return nil, err
	}

	if update.Description != nil {
		safe.Description = *update.Description
	}
	if update.RequireApproval != nil {
		safe.RequireApproval = *update.RequireApproval
	}
	if update.RequireDualControl != nil {
		safe.RequireDualControl = *update.RequireDualControl
	}
	if update.MaxCheckoutDurationMinutes != nil {
		safe.MaxCheckoutDurationMinutes = *update.MaxCheckoutDurationMinutes
	}
	if update.RotateOnCheckin != nil {
		safe.RotateOnCheckin = *update.RotateOnCheckin
	}
	if update.SessionRecordingEnabled != nil {
		safe.SessionRecordingEnabled = *update.SessionRecordingEnabled
	}
	safe.UpdatedAt = time.Now().UTC()

	err = s.safeRepo.Update(ctx, safe)
	s.recordEvent(ctx, auditDomain.EventPamSafeUpdate, "safe:"+safe.Name, "update", err, nil)
	if err != nil {
		return nil, err
	}

	return safe, nil
}

func (s *safeUseCase) DeleteSafe(ctx context.Context, userID, safeID uuid.UUID) error {
	safe, err := s.authorize(ctx, userID, safeID, pamDomain.PermissionManage)
	if err != nil {
		return err
	}

	accounts, err := s.accountRepo.ListBySafe(ctx, safeID)
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return apperrors.Wrap(apperrors.ErrInvalidState, "safe still contains accounts")
	}

	err = s.txManager.WithTx(ctx, func(ctx context.Context) error {
		return s.safeRepo.Delete(ctx, safeID)
	})
	s.recordEvent(ctx, auditDomain.EventPamSafeDelete, "safe:"+safe.Name, "delete", err, nil)
	return err
}

func (s *safeUseCase) ListSafes(ctx context.Context, userID uuid.UUID) ([]*pamDomain.Safe, error) {
	return s.safeRepo.ListByUser(ctx, userID)
}

func (s *safeUseCase) GrantAccess(
	ctx context.Context,
	userID, safeID, granteeID uuid.UUID,
	permission pamDomain.SafePermission,
) error {
	if !permission.Covers(pamDomain.PermissionRead) {
		return apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown permission %q", permission)
	}

	safe, err := s.authorize(ctx, userID, safeID, pamDomain.PermissionManage)
	if err != nil {
		return err
	}

	err = s.safeRepo.GrantAcl(ctx, pamDomain.AclEntry{
		SafeID:     safeID,
		UserID:     granteeID,
		Permission: permission,
	})
	s.recordEvent(ctx, auditDomain.EventPamSafeUpdate, "safe:"+safe.Name, "acl.grant", err, map[string]any{
		"grantee":    granteeID.String(),
		"permission": string(permission),
	})
	return err
}

func (s *safeUseCase) RevokeAccess(ctx context.Context, userID, safeID, granteeID uuid.UUID) error {
	safe, err := s.authorize(ctx, userID, safeID, pamDomain.PermissionManage)
	if err != nil {
		return err
	}

	err = s.safeRepo.RevokeAcl(ctx, safeID, granteeID)
	s.recordEvent(ctx, auditDomain.EventPamSafeUpdate, "safe:"+safe.Name, "acl.revoke", err, map[string]any{
		"grantee": granteeID.String(),
	})
	return err
}

func (s *safeUseCase) CreateAccount(
	ctx context.Context,
	userID uuid.UUID,
	input CreateAccountInput,
) (*pamDomain.PrivilegedAccount, error) {
	err := validation.Errors{
		"accountName": validation.Validate(input.AccountName, validation.Required, validation.Length(1, 128)),
		"username":    validation.Validate(input.Username, validation.Required),
		"password":    validation.Validate(input.Password, validation.Required),
		"platform":    validation.Validate(string(input.Platform), validation.Required),
	}.Filter()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}

	safe, err := s.authorize(ctx, userID, input.SafeID, pamDomain.PermissionManage)
	if err != nil {
		return nil, err
	}

	if err := s.cipher.EnsureKey(ctx, CredentialKeyName); err != nil {
		return nil, err
	}

	accountID := uuid.Must(uuid.NewV7())
	encrypted, err := s.cipher.Encrypt(ctx, CredentialKeyName, []byte(input.Password), accountID[:])
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := &pamDomain.PrivilegedAccount{
		ID:                   accountID,
		SafeID:               safe.ID,
		AccountName:          input.AccountName,
		Username:             input.Username,
		EncryptedPassword:    encrypted,
		Platform:             input.Platform,
		Host:                 input.Host,
		Port:                 input.Port,
		Database:             input.Database,
		RotationPolicy:       input.RotationPolicy,
		RotationIntervalDays: input.RotationIntervalDays,
		Status:               pamDomain.AccountActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if account.RotationPolicy == "" {
		account.RotationPolicy = pamDomain.RotationManual
	}
	account.ScheduleNextRotation(now)

	err = s.accountRepo.Create(ctx, account)
	s.recordEvent(ctx, auditDomain.EventPamAccountCreate, accountResource(safe, account), "create", err, map[string]any{
		"platform": string(account.Platform),
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

func (s *safeUseCase) ListAccounts(
	ctx context.Context,
	userID, safeID uuid.UUID,
) ([]*pamDomain.PrivilegedAccount, error) {
	if _, err := s.authorize(ctx, userID, safeID, pamDomain.PermissionRead); err != nil {
		return nil, err
	}
	return s.accountRepo.ListBySafe(ctx, safeID)
}

func (s *safeUseCase) Reveal(ctx context.Context, userID, accountID uuid.UUID) (string, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	safe, err := s.authorize(ctx, userID, account.SafeID, pamDomain.PermissionRead)
	if err != nil {
		return "", err
	}

	if safe.RequireApproval || safe.RequireDualControl {
		if err := s.requireStepUp(ctx, userID, safe, account); err != nil {
			s.recordEvent(ctx, auditDomain.EventPamAccountReveal, accountResource(safe, account), "reveal", err, nil)
			return "", err
		}
	}

	plaintext, err := s.cipher.Decrypt(ctx, CredentialKeyName, account.EncryptedPassword, account.ID[:])
	s.recordEvent(ctx, auditDomain.EventPamAccountReveal, accountResource(safe, account), "reveal", err, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func (s *safeUseCase) requireStepUp(
	ctx context.Context,
	userID uuid.UUID,
	safe *pamDomain.Safe,
	account *pamDomain.PrivilegedAccount,
) error {
	if s.stepUp == nil {
		return apperrors.Wrap(apperrors.ErrStepUpRequired, "step-up provider not configured")
	}

	active, err := s.stepUp.StepUpActive(ctx, userID, accountResource(safe, account))
	if err != nil {
		return err
	}
	if !active {
		return apperrors.Wrap(apperrors.ErrStepUpRequired, "reveal requires step-up verification")
	}
	return nil
}

// authorize loads the safe and checks the caller's effective permission.
func (s *safeUseCase) authorize(
	ctx context.Context,
	userID, safeID uuid.UUID,
	required pamDomain.SafePermission,
) (*pamDomain.Safe, error) {
	safe, err := s.safeRepo.GetByID(ctx, safeID)
	if err != nil {
		return nil, err
	}

	acl, err := s.safeRepo.ListAcl(ctx, safeID)
	if err != nil {
		return nil, err
	}

	if !safe.PermissionFor(userID, acl).Covers(required) {
		return nil, apperrors.Wrapf(apperrors.ErrForbidden, "requires %s on safe", required)
	}
	return safe, nil
}

func accountResource(safe *pamDomain.Safe, account *pamDomain.PrivilegedAccount) string {
	return "pam/safe/" + safe.Name + "/" + account.AccountName
}

func (s *safeUseCase) recordEvent(
	ctx context.Context,
	eventType auditDomain.EventType,
	resource, action string,
	opErr error,
	details map[string]any,
) {
	recordPamEvent(ctx, s.audit, s.logger, eventType, resource, action, opErr, details)
}

// recordPamEvent is the shared audit helper of the PAM use cases.
func recordPamEvent(
	ctx context.Context,
	recorder auditDomain.Recorder,
	logger *slog.Logger,
	eventType auditDomain.EventType,
	resource, action string,
	opErr error,
	details map[string]any,
) {
	entry := &auditDomain.Entry{
		EventType: eventType,
		Resource:  resource,
		Action:    action,
		Success:   opErr == nil,
		Details:   details,
	}
	auditDomain.ActorFromContext(ctx).Apply(entry)

	if err := recorder.Record(ctx, entry); err != nil {
		logger.Error("failed to record pam audit entry",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}
