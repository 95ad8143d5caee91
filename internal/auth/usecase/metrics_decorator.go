package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	authDomain "github.com/allisson/usp/internal/auth/domain"
	authService "github.com/allisson/usp/internal/auth/service"
	"github.com/allisson/usp/internal/metrics"
)

// authUseCaseWithMetrics decorates AuthUseCase with metrics instrumentation.
type authUseCaseWithMetrics struct {
	next    AuthUseCase
	metrics metrics.BusinessMetrics
}

// NewAuthUseCaseWithMetrics wraps an AuthUseCase with metrics recording.
func NewAuthUseCaseWithMetrics(useCase AuthUseCase, m metrics.BusinessMetrics) AuthUseCase {
	return &authUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (a *authUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	a.metrics.RecordOperation(ctx, "auth", operation, status)
	a.metrics.RecordDuration(ctx, "auth", operation, time.Since(start), status)
}

func (a *authUseCaseWithMetrics) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	start := time.Now()
	result, err := a.next.Login(ctx, input)
	a.record(ctx, "login", start, err)
	return result, err
}

func (a *authUseCaseWithMetrics) VerifyMfa(
	ctx context.Context,
	challengeToken string,
	method authDomain.MfaMethod,
	proof string,
) (*LoginResult, error) {
	start := time.Now()
	result, err := a.next.VerifyMfa(ctx, challengeToken, method, proof)
	a.record(ctx, "mfa_verify", start, err)
	return result, err
}

func (a *authUseCaseWithMetrics) SendOtp(ctx context.Context, challengeToken string) error {
	start := time.Now()
	err := a.next.SendOtp(ctx, challengeToken)
	a.record(ctx, "otp_send", start, err)
	return err
}

func (a *authUseCaseWithMetrics) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	start := time.Now()
	tokens, err := a.next.Refresh(ctx, refreshToken)
	a.record(ctx, "refresh", start, err)
	return tokens, err
}

func (a *authUseCaseWithMetrics) Logout(ctx context.Context, accessToken string, everywhere bool) error {
	start := time.Now()
	err := a.next.Logout(ctx, accessToken, everywhere)
	a.record(ctx, "logout", start, err)
	return err
}

func (a *authUseCaseWithMetrics) Authenticate(
	ctx context.Context,
	accessToken string,
) (*authService.AccessTokenClaims, error) {
	return a.next.Authenticate(ctx, accessToken)
}

func (a *authUseCaseWithMetrics) StartStepUp(
	ctx context.Context,
	userID uuid.UUID,
	resourcePath string,
) (string, error) {
	start := time.Now()
	token, err := a.next.StartStepUp(ctx, userID, resourcePath)
	a.record(ctx, "stepup_start", start, err)
	return token, err
}

func (a *authUseCaseWithMetrics) StepUpActive(
	ctx context.Context,
	userID uuid.UUID,
	resourcePath string,
) (bool, error) {
	return a.next.StepUpActive(ctx, userID, resourcePath)
}

func (a *authUseCaseWithMetrics) CleanExpired(
	ctx context.Context,
	before time.Time,
) (int64, int64, error) {
	start := time.Now()
	sessions, challenges, err := a.next.CleanExpired(ctx, before)
	a.record(ctx, "clean_expired", start, err)
	return sessions, challenges, err
}
