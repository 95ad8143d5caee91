package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/validation"
	"github.com/jellydator/validation/is"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	authDomain "github.com/allisson/usp/internal/auth/domain"
	authService "github.com/allisson/usp/internal/auth/service"
	cryptoService "github.com/allisson/usp/internal/crypto/service"
	apperrors "github.com/allisson/usp/internal/errors"
	appvalidation "github.com/allisson/usp/internal/validation"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 12

// DefaultBackupCodeCount is generated when the caller does not ask for a
// specific number of backup codes.
const DefaultBackupCodeCount = 10

// userUseCase implements UserUseCase.
type userUseCase struct {
	userRepo  UserRepository
	mfaRepo   MfaRepository
	passwords authService.PasswordService
	totp      authService.TotpService
	barrier   cryptoService.Barrier
	audit     auditDomain.Recorder
	logger    *slog.Logger
}

// NewUserUseCase creates the user management use case.
func NewUserUseCase(
	userRepo UserRepository,
	mfaRepo MfaRepository,
	passwords authService.PasswordService,
	totp authService.TotpService,
	barrier cryptoService.Barrier,
	audit auditDomain.Recorder,
	logger *slog.Logger,
) UserUseCase {
	return &userUseCase{
		userRepo:  userRepo,
		mfaRepo:   mfaRepo,
		passwords: passwords,
		totp:      totp,
		barrier:   barrier,
		audit:     audit,
		logger:    logger,
	}
}

func (u *userUseCase) Create(ctx context.Context, input CreateUserInput) (*authDomain.User, error) {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.Username, validation.Required, validation.Length(3, 64)),
		validation.Field(&input.Name, validation.Required, appvalidation.NotBlank),
		validation.Field(&input.Email, validation.Required, is.Email),
		validation.Field(&input.Password, validation.Required,
			appvalidation.PasswordStrength{MinLength: MinPasswordLength}),
	)
	if err != nil {
		return nil, appvalidation.WrapValidationError(err)
	}

	username, err := authDomain.NormalizeUsername(input.Username)
	if err != nil {
		return nil, err
	}

	if _, err := u.userRepo.GetByUsername(ctx, username); err == nil {
		return nil, apperrors.Wrap(apperrors.ErrAlreadyExists, "username already taken")
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	passwordHash, err := u.passwords.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &authDomain.User{
		ID:           uuid.Must(uuid.NewV7()),
		Username:     username,
		Name:         input.Name,
		Email:        input.Email,
		GivenName:    input.GivenName,
		FamilyName:   input.FamilyName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	u.recordUserEvent(ctx, auditDomain.EventUserCreate, user, "create", nil)

	return user, nil
}

func (u *userUseCase) GetByID(ctx context.Context, userID uuid.UUID) (*authDomain.User, error) {
	return u.userRepo.GetByID(ctx, userID)
}

func (u *userUseCase) GetByUsername(ctx context.Context, username string) (*authDomain.User, error) {
	normalized, err := authDomain.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	return u.userRepo.GetByUsername(ctx, normalized)
}

func (u *userUseCase) Delete(ctx context.Context, userID uuid.UUID) error {
	user, err := u.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := u.userRepo.Delete(ctx, userID); err != nil {
		return err
	}

	u.recordUserEvent(ctx, auditDomain.EventUserDelete, user, "delete", nil)

	return nil
}

func (u *userUseCase) ChangePassword(
	ctx context.Context,
	userID uuid.UUID,
	current, next string,
) error {
	rule := appvalidation.PasswordStrength{MinLength: MinPasswordLength}
	if err := rule.Validate(next); err != nil {
		return appvalidation.WrapValidationError(err)
	}

	user, err := u.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !u.passwords.Compare(current, user.PasswordHash) {
		u.recordUserEvent(ctx, auditDomain.EventUserPasswordChange, user, "change-password",
			authDomain.ErrInvalidCredentials)
		return authDomain.ErrInvalidCredentials
	}

	hash, err := u.passwords.Hash(next)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	if err := u.userRepo.Update(ctx, user); err != nil {
		return err
	}

	u.recordUserEvent(ctx, auditDomain.EventUserPasswordChange, user, "change-password", nil)

	return nil
}

func (u *userUseCase) EnrollTotp(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := u.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	secret, err := u.totp.GenerateSecret(user.Username)
	if err != nil {
		return "", err
	}

	encrypted, err := u.barrier.Encrypt(ctx, []byte(secret), user.ID[:])
	if err != nil {
		return "", err
	}

	enrollment, err := u.loadOrNewEnrollment(ctx, userID)
	if err != nil {
		return "", err
	}
	enrollment.EncryptedTotpSecret = encrypted
	enrollment.UpdatedAt = time.Now().UTC()
	if err := u.mfaRepo.UpsertEnrollment(ctx, enrollment); err != nil {
		return "", err
	}

	u.recordUserEvent(ctx, auditDomain.EventUserMfaEnroll, user, "enroll-totp", nil)

	return secret, nil
}

func (u *userUseCase) GenerateBackupCodes(
	ctx context.Context,
	userID uuid.UUID,
	count int,
) ([]string, error) {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}

	user, err := u.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, count)
	hashes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw := make([]byte, 10)
		if _, err := rand.Read(raw); err != nil {
			return nil, apperrors.Wrap(err, "failed to generate backup code")
		}
		code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
		sum := sha256.Sum256([]byte(code))

		codes = append(codes, code)
		hashes = append(hashes, hex.EncodeToString(sum[:]))
	}

	enrollment, err := u.loadOrNewEnrollment(ctx, userID)
	if err != nil {
		return nil, err
	}
	enrollment.BackupCodeHashes = hashes
	enrollment.UpdatedAt = time.Now().UTC()
	if err := u.mfaRepo.UpsertEnrollment(ctx, enrollment); err != nil {
		return nil, err
	}

	u.recordUserEvent(ctx, auditDomain.EventUserMfaEnroll, user, "generate-backup-codes", nil)

	return codes, nil
}

func (u *userUseCase) SetOtpDestination(
	ctx context.Context,
	userID uuid.UUID,
	destination string,
) error {
	user, err := u.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	enrollment, err := u.loadOrNewEnrollment(ctx, userID)
	if err != nil {
		return err
	}
	enrollment.OtpDestination = destination
	enrollment.UpdatedAt = time.Now().UTC()
	if err := u.mfaRepo.UpsertEnrollment(ctx, enrollment); err != nil {
		return err
	}

	u.recordUserEvent(ctx, auditDomain.EventUserMfaEnroll, user, "set-otp-destination", nil)

	return nil
}

func (u *userUseCase) loadOrNewEnrollment(
	ctx context.Context,
	userID uuid.UUID,
) (*authDomain.MfaEnrollment, error) {
	enrollment, err := u.mfaRepo.GetEnrollment(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return &authDomain.MfaEnrollment{UserID: userID}, nil
		}
		return nil, err
	}
	return enrollment, nil
}

func (u *userUseCase) recordUserEvent(
	ctx context.Context,
	eventType auditDomain.EventType,
	user *authDomain.User,
	action string,
	opErr error,
) {
	entry := &auditDomain.Entry{
		EventType: eventType,
		Resource:  "user:" + user.Username,
		Action:    action,
		Success:   opErr == nil,
	}
	auditDomain.ActorFromContext(ctx).Apply(entry)

	if err := u.audit.Record(ctx, entry); err != nil {
		u.logger.Error("failed to record user audit entry",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}
