package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	"github.com/allisson/usp/internal/pam/connector"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
)

// rotationRetries bounds extra attempts against a platform that answered
// with a transient failure (connection drop, timeout, deadlock).
const rotationRetries = 3

// rotationUseCase implements RotationUseCase.
type rotationUseCase struct {
	txManager   database.TxManager
	safeRepo    SafeRepository
	accountRepo AccountRepository
	registry    *connector.Registry
	cipher      CredentialCipher
	audit       auditDomain.Recorder
	logger      *slog.Logger
}

// NewRotationUseCase creates the credential rotation engine.
func NewRotationUseCase(
	txManager database.TxManager,
	safeRepo SafeRepository,
	accountRepo AccountRepository,
	registry *connector.Registry,
	cipher CredentialCipher,
	audit auditDomain.Recorder,
	logger *slog.Logger,
) RotationUseCase {
	return &rotationUseCase{
		txManager:   txManager,
		safeRepo:    safeRepo,
		accountRepo: accountRepo,
		registry:    registry,
		cipher:      cipher,
		audit:       audit,
		logger:      logger,
	}
}

func (r *rotationUseCase) Rotate(
	ctx context.Context,
	accountID uuid.UUID,
	trigger RotationTrigger,
) error {
	account, err := r.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status != pamDomain.AccountActive {
		return apperrors.Wrapf(apperrors.ErrInvalidState, "account status is %s", account.Status)
	}

	safe, err := r.safeRepo.GetByID(ctx, account.SafeID)
	if err != nil {
		return err
	}
	resource := accountResource(safe, account)
	details := map[string]any{"trigger": string(trigger), "platform": string(account.Platform)}

	conn, err := r.registry.Get(account.Platform)
	if err != nil {
		recordPamEvent(ctx, r.audit, r.logger, auditDomain.EventPamRotationFailed, resource, "rotate", err, details)
		return err
	}

	currentBytes, err := r.cipher.Decrypt(ctx, CredentialKeyName, account.EncryptedPassword, account.ID[:])
	if err != nil {
		return err
	}
	current := string(currentBytes)

	next, err := conn.Generate()
	if err != nil {
		return err
	}

	target := connector.Target{
		Platform: account.Platform,
		Username: account.Username,
		Host:     account.Host,
		Port:     account.Port,
		Database: account.Database,
	}

	if err := retryTransient(ctx, func() error {
		return conn.Rotate(ctx, target, current, next)
	}); err != nil {
		recordPamEvent(ctx, r.audit, r.logger, auditDomain.EventPamRotationFailed, resource, "rotate", err, details)
		return err
	}

	// The platform accepted the new credential; prove it works before
	// committing. A failed verify means the platform is in an unknown
	// state, so revert to the old credential.
	if verifyErr := retryTransient(ctx, func() error {
		return conn.Verify(ctx, target, next)
	}); verifyErr != nil {
		revertErr := retryTransient(ctx, func() error {
			return conn.Rotate(ctx, target, next, current)
		})
		if revertErr != nil {
			return r.markRotationFailed(ctx, account, resource, details, revertErr)
		}
		recordPamEvent(ctx, r.audit, r.logger, auditDomain.EventPamRotationFailed, resource, "rotate", verifyErr, details)
		return apperrors.Wrap(apperrors.ErrExternal, "new credential failed verification; reverted")
	}

	encrypted, err := r.cipher.Encrypt(ctx, CredentialKeyName, []byte(next), account.ID[:])
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = r.txManager.WithTx(ctx, func(ctx context.Context) error {
		locked, err := r.accountRepo.GetByIDForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}
		locked.EncryptedPassword = encrypted
		locked.LastRotated = &now
		locked.ScheduleNextRotation(now)
		locked.UpdatedAt = now
		return r.accountRepo.Update(ctx, locked)
	})
	recordPamEvent(ctx, r.audit, r.logger, auditDomain.EventPamRotationSuccess, resource, "rotate", err, details)
	return err
}

// retryTransient runs op, retrying with exponential backoff while it fails
// with a transient-tagged connector error. Anything else surfaces on the
// first attempt.
func retryTransient(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !connector.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, rotationRetries), ctx))
}

// markRotationFailed parks the account in its terminal failure status and
// emits the alert-class audit event. Operators must intervene.
func (r *rotationUseCase) markRotationFailed(
	ctx context.Context,
	account *pamDomain.PrivilegedAccount,
	resource string,
	details map[string]any,
	cause error,
) error {
	now := time.Now().UTC()
	err := r.txManager.WithTx(ctx, func(ctx context.Context) error {
		locked, err := r.accountRepo.GetByIDForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}
		locked.Status = pamDomain.AccountRotationFailed
		locked.UpdatedAt = now
		return r.accountRepo.Update(ctx, locked)
	})
	if err != nil {
		r.logger.Error("failed to mark account rotationFailed",
			slog.String("account_id", account.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	details["alert"] = true
	recordPamEvent(ctx, r.audit, r.logger, auditDomain.EventPamRotationFailed, resource, "rotate", cause, details)
	return apperrors.Wrap(apperrors.ErrExternal, "rotation and revert both failed; account requires operator intervention")
}

func (r *rotationUseCase) RotateDue(ctx context.Context, now time.Time) (int, error) {
	due, err := r.accountRepo.ListRotationDue(ctx, now)
	if err != nil {
		return 0, err
	}

	attempted := 0
	for _, account := range due {
		attempted++
		if err := r.Rotate(ctx, account.ID, TriggerScheduled); err != nil {
			// Keep going: one broken platform must not block the others.
			r.logger.Error("scheduled rotation failed",
				slog.String("account_id", account.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return attempted, nil
}
