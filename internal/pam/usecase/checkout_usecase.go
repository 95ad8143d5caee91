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

// checkoutResourceType tags approvals created for checkouts.
const checkoutResourceType = "checkout"

// checkoutUseCase implements CheckoutUseCase.
type checkoutUseCase struct {
	txManager    database.TxManager
	safeRepo     SafeRepository
	accountRepo  AccountRepository
	checkoutRepo CheckoutRepository
	approvalRepo ApprovalRepository
	sessionRepo  SessionRepository
	rotation     RotationUseCase
	cipher       CredentialCipher
	audit        auditDomain.Recorder
	logger       *slog.Logger
}

// NewCheckoutUseCase creates the checkout state machine.
func NewCheckoutUseCase(
	txManager database.TxManager,
	safeRepo SafeRepository,
	accountRepo AccountRepository,
	checkoutRepo CheckoutRepository,
	approvalRepo ApprovalRepository,
	sessionRepo SessionRepository,
	rotation RotationUseCase,
	cipher CredentialCipher,
	audit auditDomain.Recorder,
	logger *slog.Logger,
) CheckoutUseCase {
	return &checkoutUseCase{
		txManager:    txManager,
		safeRepo:     safeRepo,
		accountRepo:  accountRepo,
		checkoutRepo: checkoutRepo,
		approvalRepo: approvalRepo,
		sessionRepo:  sessionRepo,
		rotation:     rotation,
		cipher:       cipher,
		audit:        audit,
		logger:       logger,
	}
}

func (c *checkoutUseCase) Request(
	ctx context.Context,
	input RequestCheckoutInput,
) (*CheckoutResult, error) {
	if err := validation.Validate(input.Reason, validation.Required); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "checkout reason is required")
	}

	account, err := c.accountRepo.GetByID(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Status != pamDomain.AccountActive {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidState, "account status is %s", account.Status)
	}

	safe, err := c.authorize(ctx, input.UserID, account.SafeID, pamDomain.PermissionCheckout)
	if err != nil {
		return nil, err
	}

	duration := input.DurationMinutes
	if duration == 0 {
		duration = pamDomain.DefaultCheckoutDurationMinutes
	}
	if duration > safe.MaxCheckoutDurationMinutes {
		return nil, apperrors.Wrapf(
			apperrors.ErrInvalidInput,
			"duration exceeds safe cap of %d minutes", safe.MaxCheckoutDurationMinutes,
		)
	}

	now := time.Now().UTC()
	checkout := &pamDomain.Checkout{
		ID:              uuid.Must(uuid.NewV7()),
		AccountID:       account.ID,
		UserID:          input.UserID,
		Reason:          input.Reason,
		DurationMinutes: duration,
		RotateOnCheckin: safe.RotateOnCheckin,
		Status:          pamDomain.CheckoutPending,
		RequestedAt:     now,
	}

	result := &CheckoutResult{Checkout: checkout}
	policy := safe.ApprovalPolicy()

	err = c.txManager.WithTx(ctx, func(ctx context.Context) error {
		// The account row lock serializes concurrent requests so the
		// one-open-checkout invariant holds.
		if _, err := c.accountRepo.GetByIDForUpdate(ctx, account.ID); err != nil {
			return err
		}
		if _, err := c.checkoutRepo.GetOpenByAccount(ctx, account.ID); err == nil {
			return apperrors.Wrap(apperrors.ErrInvalidState, "account already has an open checkout")
		} else if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		if policy != "" {
			approval, err := c.openApproval(ctx, safe, checkout, policy, now)
			if err != nil {
				return err
			}
			result.Approval = approval
			return c.checkoutRepo.Create(ctx, checkout)
		}

		checkout.Activate(now)
		if err := c.checkoutRepo.Create(ctx, checkout); err != nil {
			return err
		}

		session, err := c.openSession(ctx, safe, account, checkout, now)
		if err != nil {
			return err
		}
		result.Session = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	if checkout.Status == pamDomain.CheckoutActive {
		password, err := c.cipher.Decrypt(ctx, CredentialKeyName, account.EncryptedPassword, account.ID[:])
		if err != nil {
			return nil, err
		}
		result.Password = string(password)

		recordPamEvent(ctx, c.audit, c.logger, auditDomain.EventPamCheckoutOpened,
			accountResource(safe, account), "checkout", nil, map[string]any{
				"checkout_id": checkout.ID.String(),
				"duration":    duration,
			})
	}

	return result, nil
}

// openApproval creates the pending approval for a guarded checkout. The
// approver set is the safe's manage holders plus the owner.
func (c *checkoutUseCase) openApproval(
	ctx context.Context,
	safe *pamDomain.Safe,
	checkout *pamDomain.Checkout,
	policy pamDomain.ApprovalPolicyType,
	now time.Time,
) (*pamDomain.AccessApproval, error) {
	acl, err := c.safeRepo.ListAcl(ctx, safe.ID)
	if err != nil {
		return nil, err
	}

	approvers := []uuid.UUID{safe.OwnerID}
	for _, entry := range acl {
		if entry.Permission == pamDomain.PermissionManage && entry.UserID != safe.OwnerID {
			approvers = append(approvers, entry.UserID)
		}
	}

	approval := &pamDomain.AccessApproval{
		ID:           uuid.Must(uuid.NewV7()),
		RequesterID:  checkout.UserID,
		ResourceType: checkoutResourceType,
		ResourceID:   checkout.ID,
		Policy:       policy,
		Approvers:    approvers,
		Actions:      []pamDomain.ApproverAction{},
		Status:       pamDomain.ApprovalPending,
		ExpiresAt:    now.Add(pamDomain.DefaultApprovalTTL),
		CreatedAt:    now,
	}
	if err := c.approvalRepo.Create(ctx, approval); err != nil {
		return nil, err
	}

	checkout.ApprovalID = &approval.ID
	return approval, nil
}

func (c *checkoutUseCase) openSession(
	ctx context.Context,
	safe *pamDomain.Safe,
	account *pamDomain.PrivilegedAccount,
	checkout *pamDomain.Checkout,
	now time.Time,
) (*pamDomain.PrivilegedSession, error) {
	if !safe.SessionRecordingEnabled {
		return nil, nil
	}

	session := &pamDomain.PrivilegedSession{
		ID:              uuid.Must(uuid.NewV7()),
		CheckoutID:      checkout.ID,
		AccountID:       account.ID,
		UserID:          checkout.UserID,
		Protocol:        string(account.Platform),
		Platform:        account.Platform,
		StartedAt:       now,
		RecordingFormat: pamDomain.RecordingFormatCommandLog,
	}
	if err := c.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *checkoutUseCase) Decide(
	ctx context.Context,
	approvalID, approverID uuid.UUID,
	approved bool,
	comment string,
) (*CheckoutResult, error) {
	now := time.Now().UTC()
	result := &CheckoutResult{}

	err := c.txManager.WithTx(ctx, func(ctx context.Context) error {
		approval, err := c.approvalRepo.GetByIDForUpdate(ctx, approvalID)
		if err != nil {
			return err
		}
		if approval.ResourceType != checkoutResourceType {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "approval is not for a checkout")
		}

		if err := approval.RecordAction(pamDomain.ApproverAction{
			ApproverID: approverID,
			Approved:   approved,
			Comment:    comment,
			ActedAt:    now,
		}); err != nil {
			// An expired approval still persists its terminal status.
			if approval.Status == pamDomain.ApprovalExpired {
				_ = c.approvalRepo.Update(ctx, approval)
			}
			return err
		}
		if err := c.approvalRepo.Update(ctx, approval); err != nil {
			return err
		}
		result.Approval = approval

		checkout, err := c.checkoutRepo.GetByIDForUpdate(ctx, approval.ResourceID)
		if err != nil {
			return err
		}
		if checkout.Status != pamDomain.CheckoutPending {
			return apperrors.Wrapf(apperrors.ErrInvalidState, "checkout status is %s", checkout.Status)
		}

		switch approval.Status {
		case pamDomain.ApprovalApproved:
			checkout.ApprovedAt = &now
			checkout.Activate(now)
			if err := c.checkoutRepo.Update(ctx, checkout); err != nil {
				return err
			}

			account, err := c.accountRepo.GetByID(ctx, checkout.AccountID)
			if err != nil {
				return err
			}
			safe, err := c.safeRepo.GetByID(ctx, account.SafeID)
			if err != nil {
				return err
			}
			session, err := c.openSession(ctx, safe, account, checkout, now)
			if err != nil {
				return err
			}
			result.Session = session
		case pamDomain.ApprovalDenied:
			checkout.Status = pamDomain.CheckoutDenied
			if err := c.checkoutRepo.Update(ctx, checkout); err != nil {
				return err
			}
		}

		result.Checkout = checkout
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.recordDecision(ctx, result, approverID, approved)
	return result, nil
}

func (c *checkoutUseCase) recordDecision(
	ctx context.Context,
	result *CheckoutResult,
	approverID uuid.UUID,
	approved bool,
) {
	details := map[string]any{
		"approver": approverID.String(),
		"approved": approved,
		"status":   string(result.Approval.Status),
	}
	resource := "checkout:" + result.Checkout.ID.String()
	recordPamEvent(ctx, c.audit, c.logger, auditDomain.EventPamApprovalDecision, resource, "approve", nil, details)

	switch result.Checkout.Status {
	case pamDomain.CheckoutActive:
		recordPamEvent(ctx, c.audit, c.logger, auditDomain.EventPamCheckoutOpened, resource, "checkout", nil, nil)
	case pamDomain.CheckoutDenied:
		recordPamEvent(ctx, c.audit, c.logger, auditDomain.EventPamCheckoutDenied, resource, "checkout", nil, nil)
	}
}

func (c *checkoutUseCase) Credential(
	ctx context.Context,
	checkoutID, userID uuid.UUID,
) (string, error) {
	checkout, err := c.checkoutRepo.GetByID(ctx, checkoutID)
	if err != nil {
		return "", err
	}
	if checkout.UserID != userID {
		return "", apperrors.Wrap(apperrors.ErrForbidden, "checkout belongs to another user")
	}
	if checkout.Status != pamDomain.CheckoutActive || checkout.Overdue(time.Now().UTC()) {
		return "", apperrors.Wrap(apperrors.ErrInvalidState, "checkout is not active")
	}

	account, err := c.accountRepo.GetByID(ctx, checkout.AccountID)
	if err != nil {
		return "", err
	}
	safe, err := c.safeRepo.GetByID(ctx, account.SafeID)
	if err != nil {
		return "", err
	}

	password, err := c.cipher.Decrypt(ctx, CredentialKeyName, account.EncryptedPassword, account.ID[:])
	recordPamEvent(ctx, c.audit, c.logger, auditDomain.EventPamAccountReveal,
		accountResource(safe, account), "reveal", err, map[string]any{
			"checkout_id": checkout.ID.String(),
		})
	if err != nil {
		return "", err
	}
	return string(password), nil
}

func (c *checkoutUseCase) Checkin(
	ctx context.Context,
	checkoutID, userID uuid.UUID,
	notes string,
) error {
	var checkout *pamDomain.Checkout

	now := time.Now().UTC()
	err := c.txManager.WithTx(ctx, func(ctx context.Context) error {
		locked, err := c.checkoutRepo.GetByIDForUpdate(ctx, checkoutID)
		if err != nil {
			return err
		}
		if locked.Status != pamDomain.CheckoutActive {
			return apperrors.Wrapf(apperrors.ErrInvalidState, "checkout status is %s", locked.Status)
		}
		if locked.UserID != userID {
			return apperrors.Wrap(apperrors.ErrForbidden, "checkout belongs to another user")
		}

		locked.Status = pamDomain.CheckoutCheckedIn
		locked.CheckedInAt = &now
		locked.Notes = notes
		if err := c.checkoutRepo.Update(ctx, locked); err != nil {
			return err
		}
		checkout = locked
		return c.endSession(ctx, locked.ID, now)
	})
	if err != nil {
		return err
	}

	recordPamEvent(ctx, c.audit, c.logger, auditDomain.EventPamCheckin,
		"checkout:"+checkout.ID.String(), "checkin", nil, nil)

	if checkout.RotateOnCheckin {
		// The credential was exposed during the checkout and must change
		// before it is handed out again. A failed rotation is recorded by
		// the engine but the checkin stands.
		if err := c.rotation.Rotate(ctx, checkout.AccountID, TriggerOnCheckin); err != nil {
			c.logger.Error("rotate-on-checkin failed",
				slog.String("account_id", checkout.AccountID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

func (c *checkoutUseCase) ForceCheckin(
	ctx context.Context,
	checkoutID, operatorID uuid.UUID,
	reason string,
) error {
	if err := validation.Validate(reason, validation.Required); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "force checkin reason is required")
	}

	var checkout *pamDomain.Checkout

	now := time.Now().UTC()
	err := c.txManager.WithTx(ctx, func(ctx context.Context) error {
		locked, err := c.checkoutRepo.GetByIDForUpdate(ctx, checkoutID)
		if err != nil {
			return err
		}
		if locked.Status != pamDomain.CheckoutActive {
			return apperrors.Wrapf(apperrors.ErrInvalidState, "checkout status is %s", locked.Status)
		}

		account, err := c.accountRepo.GetByID(ctx, locked.AccountID)
		if err != nil {
			return err
		}
		if _, err := c.authorize(ctx, operatorID, account.SafeID, pamDomain.PermissionManage); err != nil {
			return err
		}

		locked.Status = pamDomain.CheckoutForceCheckedIn
		locked.CheckedInAt = &now
		locked.Notes = reason
		if err := c.checkoutRepo.Update(ctx, locked); err != nil {
			return err
		}
		checkout = locked
		return c.endSession(ctx, locked.ID, now)
	})
	if err != nil {
		return err
	}

	recordPamEvent(ctx, c.audit, c.logger, auditDomain.EventPamForceCheckin,
		"checkout:"+checkout.ID.String(), "checkin.force", nil, map[string]any{
			"operator": operatorID.String(),
			"reason":   reason,
		})

	if checkout.RotateOnCheckin {
		if err := c.rotation.Rotate(ctx, checkout.AccountID, TriggerOnCheckin); err != nil {
			c.logger.Error("rotate-on-checkin failed",
				slog.String("account_id", checkout.AccountID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

func (c *checkoutUseCase) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := c.checkoutRepo.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, checkout := range overdue {
		err := c.txManager.WithTx(ctx, func(ctx context.Context) error {
			locked, err := c.checkoutRepo.GetByIDForUpdate(ctx, checkout.ID)
			if err != nil {
				return err
			}
			if !locked.Overdue(now) {
				// Someone checked it in between the listing and the lock.
				return nil
			}
			locked.Status = pamDomain.CheckoutExpired
			if err := c.checkoutRepo.Update(ctx, locked); err != nil {
				return err
			}
			expired++
			return c.endSession(ctx, locked.ID, now)
		})
		if err != nil {
			return expired, err
		}

		recordPamEvent(ctx, c.audit, c.logger, auditDomain.EventPamCheckoutExpired,
			"checkout:"+checkout.ID.String(), "expire", nil, nil)

		account, err := c.accountRepo.GetByID(ctx, checkout.AccountID)
		if err == nil && account.RotationPolicy == pamDomain.RotationOnExpiration {
			if err := c.rotation.Rotate(ctx, account.ID, TriggerOnExpiration); err != nil {
				c.logger.Error("rotate-on-expiration failed",
					slog.String("account_id", account.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return expired, nil
}

// endSession closes the checkout's recording, if one exists.
func (c *checkoutUseCase) endSession(ctx context.Context, checkoutID uuid.UUID, now time.Time) error {
	session, err := c.sessionRepo.GetByCheckout(ctx, checkoutID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if session.EndedAt != nil {
		return nil
	}
	session.EndedAt = &now
	return c.sessionRepo.Update(ctx, session)
}

func (c *checkoutUseCase) authorize(
	ctx context.Context,
	userID, safeID uuid.UUID,
	required pamDomain.SafePermission,
) (*pamDomain.Safe, error) {
	safe, err := c.safeRepo.GetByID(ctx, safeID)
	if err != nil {
		return nil, err
	}
	acl, err := c.safeRepo.ListAcl(ctx, safeID)
	if err != nil {
		return nil, err
	}
	if !safe.PermissionFor(userID, acl).Covers(required) {
		return nil, apperrors.Wrapf(apperrors.ErrForbidden, "requires %s on safe", required)
	}
	return safe, nil
}
