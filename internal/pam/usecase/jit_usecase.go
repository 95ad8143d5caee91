package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
)

const jitResourceType = "jit"

// jitUseCase implements JitUseCase.
type jitUseCase struct {
	txManager    database.TxManager
	jitRepo      JitRepository
	approvalRepo ApprovalRepository
	audit        auditDomain.Recorder
	logger       *slog.Logger
}

// NewJitUseCase creates the just-in-time access use case.
func NewJitUseCase(
	txManager database.TxManager,
	jitRepo JitRepository,
	approvalRepo ApprovalRepository,
	audit auditDomain.Recorder,
	logger *slog.Logger,
) JitUseCase {
	return &jitUseCase{
		txManager:    txManager,
		jitRepo:      jitRepo,
		approvalRepo: approvalRepo,
		audit:        audit,
		logger:       logger,
	}
}

func (j *jitUseCase) Request(
	ctx context.Context,
	input JitRequestInput,
) (*pamDomain.JitAccessGrant, error) {
	if input.Justification == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "justification is required")
	}
	if input.DurationMinutes == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "duration is required")
	}
	if input.RequiresApproval && len(input.Approvers) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "approvers are required when approval is enabled")
	}

	now := time.Now().UTC()
	grant := &pamDomain.JitAccessGrant{
		ID:              uuid.Must(uuid.NewV7()),
		UserID:          input.UserID,
		ResourceType:    input.ResourceType,
		ResourceID:      input.ResourceID,
		AccessLevel:     input.AccessLevel,
		DurationMinutes: input.DurationMinutes,
		Justification:   input.Justification,
		RequestedAt:     now,
		Status:          pamDomain.JitPending,
	}

	err := j.txManager.WithTx(ctx, func(ctx context.Context) error {
		if input.RequiresApproval {
			policy := input.ApprovalPolicy
			if policy == "" {
				policy = pamDomain.PolicySingleApprover
			}
			approval := &pamDomain.AccessApproval{
				ID:           uuid.Must(uuid.NewV7()),
				RequesterID:  input.UserID,
				ResourceType: jitResourceType,
				ResourceID:   grant.ID,
				Policy:       policy,
				Approvers:    input.Approvers,
				Status:       pamDomain.ApprovalPending,
				ExpiresAt:    now.Add(pamDomain.DefaultApprovalTTL),
				CreatedAt:    now,
			}
			if err := j.approvalRepo.Create(ctx, approval); err != nil {
				return err
			}
			grant.ApprovalID = &approval.ID
		} else {
			grant.Grant(now)
		}
		return j.jitRepo.Create(ctx, grant)
	})
	if err != nil {
		return nil, err
	}

	if grant.Status == pamDomain.JitActive {
		j.recordGranted(ctx, grant)
	}
	return grant, nil
}

func (j *jitUseCase) Decide(
	ctx context.Context,
	approvalID, approverID uuid.UUID,
	approved bool,
	comment string,
) (*pamDomain.JitAccessGrant, error) {
	var (
		grant    *pamDomain.JitAccessGrant
		approval *pamDomain.AccessApproval
	)

	now := time.Now().UTC()
	err := j.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		approval, err = j.approvalRepo.GetByIDForUpdate(ctx, approvalID)
		if err != nil {
			return err
		}
		if approval.ResourceType != jitResourceType {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "approval is not for a jit grant")
		}

		actionErr := approval.RecordAction(pamDomain.ApproverAction{
			ApproverID: approverID,
			Approved:   approved,
			Comment:    comment,
			ActedAt:    now,
		})
		// An expired approval still has its new status persisted.
		if actionErr != nil && approval.Status == pamDomain.ApprovalPending {
			return actionErr
		}
		if err := j.approvalRepo.Update(ctx, approval); err != nil {
			return err
		}
		if actionErr != nil && approval.Status != pamDomain.ApprovalExpired {
			return actionErr
		}

		grant, err = j.jitRepo.GetByID(ctx, approval.ResourceID)
		if err != nil {
			return err
		}
		if grant.Status != pamDomain.JitPending {
			return apperrors.Wrap(apperrors.ErrInvalidState, "grant is not pending")
		}

		switch approval.Status {
		case pamDomain.ApprovalApproved:
			grant.Grant(now)
		case pamDomain.ApprovalDenied:
			grant.Status = pamDomain.JitDenied
		case pamDomain.ApprovalExpired:
			grant.Status = pamDomain.JitExpired
		default:
			return nil
		}
		return j.jitRepo.Update(ctx, grant)
	})
	if err != nil {
		return nil, err
	}

	recordPamEvent(ctx, j.audit, j.logger, auditDomain.EventPamApprovalDecision,
		jitResourceType+":"+grant.ID.String(), "decide", nil, map[string]any{
			"approver_id": approverID.String(),
			"approved":    approved,
			"status":      string(approval.Status),
		})
	if grant.Status == pamDomain.JitActive {
		j.recordGranted(ctx, grant)
	}
	return grant, nil
}

func (j *jitUseCase) Active(
	ctx context.Context,
	userID uuid.UUID,
	resourceType string,
	resourceID uuid.UUID,
) (bool, error) {
	now := time.Now().UTC()
	grant, err := j.jitRepo.FindActive(ctx, userID, resourceType, resourceID, now)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	// FindActive matches on columns; re-check the full predicate so a lagging
	// sweeper can never extend access.
	return grant.Active(now), nil
}

func (j *jitUseCase) Revoke(
	ctx context.Context,
	grantID, operatorID uuid.UUID,
	reason string,
) error {
	if reason == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "revocation reason is required")
	}

	now := time.Now().UTC()
	err := j.txManager.WithTx(ctx, func(ctx context.Context) error {
		grant, err := j.jitRepo.GetByID(ctx, grantID)
		if err != nil {
			return err
		}
		if grant.Status != pamDomain.JitActive && grant.Status != pamDomain.JitPending {
			return apperrors.Wrapf(apperrors.ErrInvalidState, "grant status is %s", grant.Status)
		}
		grant.Status = pamDomain.JitRevoked
		grant.RevokedAt = &now
		grant.RevokedBy = &operatorID
		grant.RevocationReason = reason
		return j.jitRepo.Update(ctx, grant)
	})

	recordPamEvent(ctx, j.audit, j.logger, auditDomain.EventPamJitRevoked,
		jitResourceType+":"+grantID.String(), "revoke", err, map[string]any{
			"operator_id": operatorID.String(),
			"reason":      reason,
		})
	return err
}

func (j *jitUseCase) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	grants, err := j.jitRepo.ListSweepable(ctx, now)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, grant := range grants {
		err := j.txManager.WithTx(ctx, func(ctx context.Context) error {
			current, err := j.jitRepo.GetByID(ctx, grant.ID)
			if err != nil {
				return err
			}
			if current.Status != pamDomain.JitActive || current.Active(now) {
				return nil
			}
			current.Status = pamDomain.JitExpired
			return j.jitRepo.Update(ctx, current)
		})
		if err != nil {
			j.logger.Error("failed to expire jit grant",
				slog.String("grant_id", grant.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		swept++
		recordPamEvent(ctx, j.audit, j.logger, auditDomain.EventPamJitExpired,
			jitResourceType+":"+grant.ID.String(), "expire", nil, nil)
	}
	return swept, nil
}

func (j *jitUseCase) recordGranted(ctx context.Context, grant *pamDomain.JitAccessGrant) {
	recordPamEvent(ctx, j.audit, j.logger, auditDomain.EventPamJitGranted,
		jitResourceType+":"+grant.ID.String(), "grant", nil, map[string]any{
			"resource_type": grant.ResourceType,
			"resource_id":   grant.ResourceID.String(),
			"access_level":  grant.AccessLevel,
			"duration":      grant.DurationMinutes,
		})
}
