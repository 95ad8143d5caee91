package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	auditUseCase "github.com/allisson/usp/internal/audit/usecase"
	authDomain "github.com/allisson/usp/internal/auth/domain"
	authUseCase "github.com/allisson/usp/internal/auth/usecase"
	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	apperrors "github.com/allisson/usp/internal/errors"
	pamUseCase "github.com/allisson/usp/internal/pam/usecase"
)

// fakeSealUseCase tracks unseal progress in memory and hands out canned
// shares from Init and Rekey.
type fakeSealUseCase struct {
	status      cryptoDomain.SealStatus
	initShares  []string
	rekeyShares []string
	initErr     error
	rekeyErr    error
	unsealErr   error
	fed         []string
}

func (f *fakeSealUseCase) Init(_ context.Context, shares, threshold int) ([]string, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.status = cryptoDomain.SealStatus{Initialized: true, Sealed: true, Shares: shares, Threshold: threshold}
	return f.initShares, nil
}

func (f *fakeSealUseCase) Unseal(_ context.Context, _, share string) (*cryptoDomain.SealStatus, error) {
	if f.unsealErr != nil {
		return nil, f.unsealErr
	}
	f.fed = append(f.fed, share)
	f.status.Progress = len(f.fed)
	if f.status.Progress >= f.status.Threshold {
		f.status.Sealed = false
		f.status.Progress = 0
	}
	status := f.status
	return &status, nil
}

func (f *fakeSealUseCase) Seal(_ context.Context) error {
	f.status.Sealed = true
	f.fed = nil
	return nil
}

func (f *fakeSealUseCase) Status(_ context.Context) (*cryptoDomain.SealStatus, error) {
	status := f.status
	return &status, nil
}

func (f *fakeSealUseCase) Rekey(_ context.Context, shares, threshold int) ([]string, error) {
	if f.rekeyErr != nil {
		return nil, f.rekeyErr
	}
	if f.status.Sealed {
		return nil, apperrors.ErrVaultSealed
	}
	f.status.Shares = shares
	f.status.Threshold = threshold
	return f.rekeyShares, nil
}

// fakeAuditLogUseCase serves a canned integrity report and counts.
type fakeAuditLogUseCase struct {
	report       *auditDomain.IntegrityReport
	verifyErr    error
	cleanCount   int64
	cleanErr     error
	cleanedDays  int
	exportOutput string
	exportErr    error
}

func (f *fakeAuditLogUseCase) Record(_ context.Context, _ *auditDomain.Entry) error { return nil }

func (f *fakeAuditLogUseCase) Start() {}

func (f *fakeAuditLogUseCase) Close() {}

func (f *fakeAuditLogUseCase) Search(
	_ context.Context, _ auditDomain.Filter, _, _ int,
) ([]*auditDomain.Entry, error) {
	return nil, nil
}

func (f *fakeAuditLogUseCase) VerifyIntegrity(
	_ context.Context, _, _ time.Time,
) (*auditDomain.IntegrityReport, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.report, nil
}

func (f *fakeAuditLogUseCase) Export(
	_ context.Context, w io.Writer, _, _ time.Time, _ auditUseCase.ExportFormat,
) error {
	if f.exportErr != nil {
		return f.exportErr
	}
	_, err := fmt.Fprint(w, f.exportOutput)
	return err
}

func (f *fakeAuditLogUseCase) Cleanup(_ context.Context, retentionDays int) (int64, error) {
	if f.cleanErr != nil {
		return 0, f.cleanErr
	}
	f.cleanedDays = retentionDays
	return f.cleanCount, nil
}

// fakeUserUseCase returns a canned user from Create.
type fakeUserUseCase struct {
	authUseCase.UserUseCase

	user      *authDomain.User
	createErr error
	lastInput authUseCase.CreateUserInput
}

func (f *fakeUserUseCase) Create(
	_ context.Context, input authUseCase.CreateUserInput,
) (*authDomain.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastInput = input
	return f.user, nil
}

// fakeAuthUseCase stubs session cleanup.
type fakeAuthUseCase struct {
	authUseCase.AuthUseCase

	sessions   int64
	challenges int64
	cleanErr   error
}

func (f *fakeAuthUseCase) CleanExpired(
	_ context.Context, _ time.Time,
) (int64, int64, error) {
	if f.cleanErr != nil {
		return 0, 0, f.cleanErr
	}
	return f.sessions, f.challenges, nil
}

// fakeRotationUseCase stubs scheduled rotation.
type fakeRotationUseCase struct {
	count     int
	rotateErr error
}

func (f *fakeRotationUseCase) Rotate(
	_ context.Context, _ uuid.UUID, _ pamUseCase.RotationTrigger,
) error {
	return nil
}

func (f *fakeRotationUseCase) RotateDue(_ context.Context, _ time.Time) (int, error) {
	if f.rotateErr != nil {
		return 0, f.rotateErr
	}
	return f.count, nil
}

func newTestUser() *authDomain.User {
	return &authDomain.User{
		ID:       uuid.Must(uuid.NewV7()),
		Username: "alice",
		Email:    "alice@example.com",
	}
}
