package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	authDomain "github.com/allisson/usp/internal/auth/domain"
	authService "github.com/allisson/usp/internal/auth/service"
	cryptoService "github.com/allisson/usp/internal/crypto/service"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
)

// Providers bundles the delegated second-factor integrations. Nil fields
// reject the corresponding factor with ErrNotSupported.
type Providers struct {
	OtpSender   authService.OtpSender
	Webauthn    authService.WebauthnVerifier
	HardwareOtp authService.HardwareOtpVerifier
	Push        authService.PushApprover
}

// authUseCase implements AuthUseCase.
type authUseCase struct {
	txManager   database.TxManager
	userRepo    UserRepository
	sessionRepo SessionRepository
	mfaRepo     MfaRepository
	deviceRepo  DeviceRepository
	roles       RoleProvider
	passwords   authService.PasswordService
	tokens      authService.TokenService
	jwt         authService.JwtService
	totp        authService.TotpService
	risk        authService.RiskEngine
	barrier     cryptoService.Barrier
	providers   Providers
	audit       auditDomain.Recorder
	logger      *slog.Logger
	config      Config
}

// NewAuthUseCase creates the authentication engine.
func NewAuthUseCase(
	txManager database.TxManager,
	userRepo UserRepository,
	sessionRepo SessionRepository,
	mfaRepo MfaRepository,
	deviceRepo DeviceRepository,
	roles RoleProvider,
	passwords authService.PasswordService,
	tokens authService.TokenService,
	jwt authService.JwtService,
	totp authService.TotpService,
	risk authService.RiskEngine,
	barrier cryptoService.Barrier,
	providers Providers,
	audit auditDomain.Recorder,
	logger *slog.Logger,
	config Config,
) AuthUseCase {
	return &authUseCase{
		txManager:   txManager,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		mfaRepo:     mfaRepo,
		deviceRepo:  deviceRepo,
		roles:       roles,
		passwords:   passwords,
		tokens:      tokens,
		jwt:         jwt,
		totp:        totp,
		risk:        risk,
		barrier:     barrier,
		providers:   providers,
		audit:       audit,
		logger:      logger,
		config:      config,
	}
}

func (a *authUseCase) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	username, err := authDomain.NormalizeUsername(input.Username)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if input.Attempt.At.IsZero() {
		input.Attempt.At = now
	}

	user, err := a.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			a.recordLoginEvent(ctx, nil, input, authDomain.ErrInvalidCredentials, nil)
			return nil, authDomain.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.Locked(now) {
		err := apperrors.Wrap(apperrors.ErrLockedOut, "account locked")
		a.recordLoginEvent(ctx, user, input, err, nil)
		return nil, err
	}

	if !a.passwords.Compare(input.Password, user.PasswordHash) {
		if lockErr := a.registerFailedAttempt(ctx, user, input, now); lockErr != nil {
			return nil, lockErr
		}
		a.recordLoginEvent(ctx, user, input, authDomain.ErrInvalidCredentials, nil)
		return nil, authDomain.ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
		user.UpdatedAt = now
		if err := a.userRepo.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	assessment := a.assessRisk(ctx, user, input.Attempt)

	if a.config.DenyRiskThreshold > 0 && assessment.Score >= a.config.DenyRiskThreshold {
		err := apperrors.Wrapf(apperrors.ErrForbidden, "login denied at risk score %d", assessment.Score)
		a.recordLoginEvent(ctx, user, input, err, map[string]any{
			"risk_score":   assessment.Score,
			"risk_factors": assessment.Factors,
		})
		return nil, err
	}

	enrollment, err := a.mfaRepo.GetEnrollment(ctx, user.ID)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	if a.mfaRequired(enrollment, assessment) {
		challengeToken, methods, err := a.openChallenge(
			ctx, user, enrollment, authDomain.PurposeLogin, "", input.Attempt.IPAddress, input.UserAgent, now,
		)
		if err != nil {
			return nil, err
		}
		return &LoginResult{
			MfaRequired:    true,
			ChallengeToken: challengeToken,
			Methods:        methods,
			Risk:           assessment,
		}, nil
	}

	tokens, err := a.issueTokens(ctx, user, input.Attempt, input.UserAgent, now)
	if err != nil {
		a.recordLoginEvent(ctx, user, input, err, nil)
		return nil, err
	}

	a.recordLoginEvent(ctx, user, input, nil, map[string]any{
		"risk_score": assessment.Score,
		"session_id": tokens.SessionID.String(),
	})

	return &LoginResult{Risk: assessment, Tokens: tokens}, nil
}

// registerFailedAttempt bumps the failure counter and applies the lockout
// threshold. The lockout event is audited separately from the login failure.
func (a *authUseCase) registerFailedAttempt(
	ctx context.Context,
	user *authDomain.User,
	input LoginInput,
	now time.Time,
) error {
	user.FailedLoginAttempts++
	user.UpdatedAt = now

	if a.config.LockoutThreshold > 0 && user.FailedLoginAttempts >= a.config.LockoutThreshold {
		lockedUntil := now.Add(a.config.LockoutCooldown)
		user.LockedUntil = &lockedUntil
		a.recordAuthEvent(ctx, auditDomain.EventAuthLockout, user, "lockout", nil, map[string]any{
			"failed_attempts": user.FailedLoginAttempts,
			"locked_until":    lockedUntil.Format(time.RFC3339),
			"ip_address":      input.Attempt.IPAddress,
		})
	}

	return a.userRepo.Update(ctx, user)
}

func (a *authUseCase) assessRisk(
	ctx context.Context,
	user *authDomain.User,
	attempt authDomain.LoginAttempt,
) authDomain.RiskAssessment {
	knownDevice := false
	if attempt.DeviceFingerprint != "" {
		seen, err := a.deviceRepo.Seen(ctx, user.ID, attempt.DeviceFingerprint)
		if err != nil {
			a.logger.Error("failed to check device fingerprint", slog.String("error", err.Error()))
		} else {
			knownDevice = seen
		}
	}

	return a.risk.Assess(user, attempt, knownDevice)
}

func (a *authUseCase) mfaRequired(
	enrollment *authDomain.MfaEnrollment,
	assessment authDomain.RiskAssessment,
) bool {
	if enrollment == nil {
		return false
	}
	hasFactor := enrollment.TotpEnrolled() ||
		len(enrollment.BackupCodeHashes) > 0 ||
		enrollment.OtpDestination != ""
	return hasFactor && assessment.Score >= a.config.MfaRiskThreshold
}

func (a *authUseCase) openChallenge(
	ctx context.Context,
	user *authDomain.User,
	enrollment *authDomain.MfaEnrollment,
	purpose authDomain.ChallengePurpose,
	resourcePath string,
	ipAddress, userAgent string,
	now time.Time,
) (string, []authDomain.MfaMethod, error) {
	plain, hash, err := a.tokens.GenerateToken()
	if err != nil {
		return "", nil, err
	}

	challenge := &authDomain.MfaChallenge{
		ID:           uuid.Must(uuid.NewV7()),
		UserID:       user.ID,
		Purpose:      purpose,
		ResourcePath: resourcePath,
		TokenHash:    hash,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		ExpiresAt:    now.Add(authDomain.ChallengeTTL),
		CreatedAt:    now,
	}
	if err := a.mfaRepo.CreateChallenge(ctx, challenge); err != nil {
		return "", nil, err
	}

	a.recordAuthEvent(ctx, auditDomain.EventAuthMfaChallenge, user, "challenge", nil, map[string]any{
		"purpose": string(purpose),
	})

	return plain, availableMethods(enrollment, a.providers), nil
}

func availableMethods(enrollment *authDomain.MfaEnrollment, providers Providers) []authDomain.MfaMethod {
	methods := make([]authDomain.MfaMethod, 0, 4)
	if enrollment != nil {
		if enrollment.TotpEnrolled() {
			methods = append(methods, authDomain.MfaMethodTotp)
		}
		if enrollment.OtpDestination != "" && providers.OtpSender != nil {
			methods = append(methods, authDomain.MfaMethodOtp)
		}
		if len(enrollment.BackupCodeHashes) > 0 {
			methods = append(methods, authDomain.MfaMethodBackupCode)
		}
	}
	if providers.Webauthn != nil {
		methods = append(methods, authDomain.MfaMethodWebauthn)
	}
	if providers.HardwareOtp != nil {
		methods = append(methods, authDomain.MfaMethodHardwareOtp)
	}
	if providers.Push != nil {
		methods = append(methods, authDomain.MfaMethodPush)
	}
	return methods
}

func (a *authUseCase) VerifyMfa(
	ctx context.Context,
	challengeToken string,
	method authDomain.MfaMethod,
	proof string,
) (*LoginResult, error) {
	now := time.Now().UTC()

	challenge, err := a.mfaRepo.GetChallengeByTokenHash(ctx, a.tokens.HashToken(challengeToken))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, authDomain.ErrChallengeExpired
		}
		return nil, err
	}
	if challenge.Expired(now) {
		return nil, authDomain.ErrChallengeExpired
	}
	if challenge.Completed() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "challenge already completed")
	}

	user, err := a.userRepo.GetByID(ctx, challenge.UserID)
	if err != nil {
		return nil, err
	}

	ok, err := a.verifyFactor(ctx, user, challenge, method, proof, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		a.recordAuthEvent(ctx, auditDomain.EventAuthMfaFailed, user, "verify", authDomain.ErrInvalidFactor,
			map[string]any{"method": string(method)})
		return nil, authDomain.ErrInvalidFactor
	}

	challenge.CompletedAt = &now
	if challenge.Purpose == authDomain.PurposeStepUp {
		// A completed step-up stays satisfied for its own window.
		challenge.ExpiresAt = now.Add(authDomain.StepUpTTL)
	}
	if err := a.mfaRepo.UpdateChallenge(ctx, challenge); err != nil {
		return nil, err
	}

	a.recordAuthEvent(ctx, auditDomain.EventAuthMfaVerified, user, "verify", nil,
		map[string]any{"method": string(method), "purpose": string(challenge.Purpose)})

	if challenge.Purpose == authDomain.PurposeStepUp {
		a.recordAuthEvent(ctx, auditDomain.EventAuthStepUp, user, "stepup", nil,
			map[string]any{"resource_path": challenge.ResourcePath})
		return &LoginResult{StepUpSatisfied: true}, nil
	}

	attempt := authDomain.LoginAttempt{IPAddress: challenge.IPAddress, At: now}
	tokens, err := a.issueTokens(ctx, user, attempt, challenge.UserAgent, now)
	if err != nil {
		return nil, err
	}

	a.recordAuthEvent(ctx, auditDomain.EventAuthLogin, user, "login", nil, map[string]any{
		"mfa_method": string(method),
		"session_id": tokens.SessionID.String(),
	})

	return &LoginResult{Tokens: tokens}, nil
}

func (a *authUseCase) verifyFactor(
	ctx context.Context,
	user *authDomain.User,
	challenge *authDomain.MfaChallenge,
	method authDomain.MfaMethod,
	proof string,
	now time.Time,
) (bool, error) {
	switch method {
	case authDomain.MfaMethodTotp:
		return a.verifyTotp(ctx, user, proof, now)
	case authDomain.MfaMethodOtp:
		return a.verifyOtp(ctx, challenge, proof)
	case authDomain.MfaMethodBackupCode:
		return a.verifyBackupCode(ctx, user, proof, now)
	case authDomain.MfaMethodWebauthn:
		if a.providers.Webauthn == nil {
			return false, apperrors.Wrap(apperrors.ErrNotSupported, "webauthn provider not configured")
		}
		return a.providers.Webauthn.VerifyAssertion(ctx, user.ID, []byte(proof))
	case authDomain.MfaMethodHardwareOtp:
		if a.providers.HardwareOtp == nil {
			return false, apperrors.Wrap(apperrors.ErrNotSupported, "hardware otp provider not configured")
		}
		return a.providers.HardwareOtp.VerifyCode(ctx, user.ID, proof)
	case authDomain.MfaMethodPush:
		if a.providers.Push == nil {
			return false, apperrors.Wrap(apperrors.ErrNotSupported, "push provider not configured")
		}
		return a.providers.Push.Confirm(ctx, user.ID, challenge.ID)
	default:
		return false, apperrors.Wrapf(apperrors.ErrNotSupported, "unknown mfa method %q", method)
	}
}

func (a *authUseCase) verifyTotp(
	ctx context.Context,
	user *authDomain.User,
	code string,
	now time.Time,
) (bool, error) {
	enrollment, err := a.mfaRepo.GetEnrollment(ctx, user.ID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return false, authDomain.ErrNotEnrolled
		}
		return false, err
	}
	if !enrollment.TotpEnrolled() {
		return false, authDomain.ErrNotEnrolled
	}

	secret, err := a.barrier.Decrypt(ctx, enrollment.EncryptedTotpSecret, user.ID[:])
	if err != nil {
		return false, err
	}

	return a.totp.Validate(code, string(secret), now), nil
}

// verifyOtp compares the presented code against the challenge's stored hash
// in constant time and consumes it on success.
func (a *authUseCase) verifyOtp(
	ctx context.Context,
	challenge *authDomain.MfaChallenge,
	code string,
) (bool, error) {
	if challenge.OtpHash == "" {
		return false, nil
	}

	sum := sha256.Sum256([]byte(code))
	if !hmac.Equal([]byte(hex.EncodeToString(sum[:])), []byte(challenge.OtpHash)) {
		return false, nil
	}

	challenge.OtpHash = ""
	if err := a.mfaRepo.UpdateChallenge(ctx, challenge); err != nil {
		return false, err
	}
	return true, nil
}

// verifyBackupCode scans every stored hash so timing does not reveal which
// position matched, then removes the used code.
func (a *authUseCase) verifyBackupCode(
	ctx context.Context,
	user *authDomain.User,
	code string,
	now time.Time,
) (bool, error) {
	enrollment, err := a.mfaRepo.GetEnrollment(ctx, user.ID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return false, authDomain.ErrNotEnrolled
		}
		return false, err
	}

	sum := sha256.Sum256([]byte(code))
	codeHash := []byte(hex.EncodeToString(sum[:]))

	matched := -1
	for i, stored := range enrollment.BackupCodeHashes {
		if hmac.Equal(codeHash, []byte(stored)) {
			matched = i
		}
	}
	if matched < 0 {
		return false, nil
	}

	enrollment.BackupCodeHashes = append(
		enrollment.BackupCodeHashes[:matched],
		enrollment.BackupCodeHashes[matched+1:]...,
	)
	enrollment.UpdatedAt = now
	if err := a.mfaRepo.UpsertEnrollment(ctx, enrollment); err != nil {
		return false, err
	}
	return true, nil
}

func (a *authUseCase) SendOtp(ctx context.Context, challengeToken string) error {
	if a.providers.OtpSender == nil {
		return apperrors.Wrap(apperrors.ErrNotSupported, "otp delivery not configured")
	}

	now := time.Now().UTC()
	challenge, err := a.mfaRepo.GetChallengeByTokenHash(ctx, a.tokens.HashToken(challengeToken))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return authDomain.ErrChallengeExpired
		}
		return err
	}
	if challenge.Expired(now) {
		return authDomain.ErrChallengeExpired
	}

	enrollment, err := a.mfaRepo.GetEnrollment(ctx, challenge.UserID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return authDomain.ErrNotEnrolled
		}
		return err
	}
	if enrollment.OtpDestination == "" {
		return authDomain.ErrNotEnrolled
	}

	code, err := generateNumericCode(6)
	if err != nil {
		return err
	}

	sum := sha256.Sum256([]byte(code))
	challenge.OtpHash = hex.EncodeToString(sum[:])
	// The delivered code is valid for the full OTP window even if the
	// original challenge was about to expire.
	if expiry := now.Add(authDomain.OtpTTL); expiry.After(challenge.ExpiresAt) {
		challenge.ExpiresAt = expiry
	}
	if err := a.mfaRepo.UpdateChallenge(ctx, challenge); err != nil {
		return err
	}

	return a.providers.OtpSender.Send(ctx, enrollment.OtpDestination, code)
}

func generateNumericCode(digits int) (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to generate otp code")
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

// issueTokens signs a JWT, generates a refresh token, persists the session,
// and enforces the concurrent session cap by revoking the oldest sessions by
// last activity.
func (a *authUseCase) issueTokens(
	ctx context.Context,
	user *authDomain.User,
	attempt authDomain.LoginAttempt,
	userAgent string,
	now time.Time,
) (*TokenPair, error) {
	roles, err := a.roleNames(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	accessToken, _, err := a.jwt.Sign(authService.AccessTokenClaims{
		UserID:     user.ID,
		Name:       user.Name,
		Email:      user.Email,
		GivenName:  user.GivenName,
		FamilyName: user.FamilyName,
		Roles:      roles,
	}, a.config.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshHash, err := a.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	session := &authDomain.Session{
		ID:               uuid.Must(uuid.NewV7()),
		UserID:           user.ID,
		TokenHash:        a.tokens.HashToken(accessToken),
		RefreshTokenHash: refreshHash,
		IPAddress:        attempt.IPAddress,
		UserAgent:        userAgent,
		CreatedAt:        now,
		ExpiresAt:        now.Add(a.config.RefreshTokenTTL),
		LastActivity:     now,
	}

	err = a.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := a.enforceSessionCap(ctx, user, now); err != nil {
			return err
		}
		if err := a.sessionRepo.Create(ctx, session); err != nil {
			return err
		}

		user.LastLoginAt = &now
		user.LastLoginIP = attempt.IPAddress
		if attempt.Country != "" {
			user.LastLoginCountry = attempt.Country
		}
		user.UpdatedAt = now
		return a.userRepo.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	if attempt.DeviceFingerprint != "" {
		if err := a.deviceRepo.Remember(ctx, user.ID, attempt.DeviceFingerprint, now); err != nil {
			a.logger.Error("failed to remember device fingerprint", slog.String("error", err.Error()))
		}
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    session.ExpiresAt,
		SessionID:    session.ID,
	}, nil
}

func (a *authUseCase) enforceSessionCap(
	ctx context.Context,
	user *authDomain.User,
	now time.Time,
) error {
	if a.config.MaxConcurrentSessions <= 0 {
		return nil
	}

	active, err := a.sessionRepo.ListActiveByUser(ctx, user.ID, now)
	if err != nil {
		return err
	}
	if len(active) < a.config.MaxConcurrentSessions {
		return nil
	}

	// Evict just enough oldest-by-lastActivity sessions to make room.
	evict := len(active) - a.config.MaxConcurrentSessions + 1
	for _, session := range active[:evict] {
		session.Revoked = true
		if err := a.sessionRepo.Update(ctx, session); err != nil {
			return err
		}
		a.recordAuthEvent(ctx, auditDomain.EventSessionEvicted, user, "evict", nil, map[string]any{
			"session_id": session.ID.String(),
		})
	}

	return nil
}

func (a *authUseCase) roleNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if a.roles == nil {
		return nil, nil
	}
	return a.roles.RoleNames(ctx, userID)
}

func (a *authUseCase) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	now := time.Now().UTC()

	session, err := a.sessionRepo.GetByRefreshTokenHash(ctx, a.tokens.HashToken(refreshToken))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, authDomain.ErrSessionNotFound
		}
		return nil, err
	}

	user, err := a.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	if session.Revoked {
		// A revoked session presenting its refresh token means the token was
		// stolen or replayed after rotation. Kill everything.
		revoked, revokeErr := a.sessionRepo.RevokeAllByUser(ctx, session.UserID)
		if revokeErr != nil {
			return nil, revokeErr
		}
		a.recordAuthEvent(ctx, auditDomain.EventAuthRefreshReplay, user, "refresh", authDomain.ErrRefreshReplay,
			map[string]any{"sessions_revoked": revoked})
		return nil, authDomain.ErrRefreshReplay
	}
	if !session.Usable(now) {
		return nil, authDomain.ErrSessionNotFound
	}

	roles, err := a.roleNames(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	accessToken, _, err := a.jwt.Sign(authService.AccessTokenClaims{
		UserID:     user.ID,
		Name:       user.Name,
		Email:      user.Email,
		GivenName:  user.GivenName,
		FamilyName: user.FamilyName,
		Roles:      roles,
	}, a.config.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	plainRefresh := refreshToken
	if a.config.RotateRefreshTokens {
		rotated, rotatedHash, err := a.tokens.GenerateRefreshToken()
		if err != nil {
			return nil, err
		}
		plainRefresh = rotated
		session.RefreshTokenHash = rotatedHash
	}

	session.TokenHash = a.tokens.HashToken(accessToken)
	session.LastActivity = now
	session.ExpiresAt = now.Add(a.config.RefreshTokenTTL)
	if err := a.sessionRepo.Update(ctx, session); err != nil {
		return nil, err
	}

	a.recordAuthEvent(ctx, auditDomain.EventAuthRefresh, user, "refresh", nil, map[string]any{
		"session_id": session.ID.String(),
	})

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: plainRefresh,
		ExpiresAt:    session.ExpiresAt,
		SessionID:    session.ID,
	}, nil
}

func (a *authUseCase) Logout(ctx context.Context, accessToken string, everywhere bool) error {
	session, err := a.sessionRepo.GetByTokenHash(ctx, a.tokens.HashToken(accessToken))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return authDomain.ErrSessionNotFound
		}
		return err
	}

	user, err := a.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		return err
	}

	if everywhere {
		if _, err := a.sessionRepo.RevokeAllByUser(ctx, session.UserID); err != nil {
			return err
		}
	} else {
		session.Revoked = true
		if err := a.sessionRepo.Update(ctx, session); err != nil {
			return err
		}
	}

	a.recordAuthEvent(ctx, auditDomain.EventAuthLogout, user, "logout", nil, map[string]any{
		"everywhere": everywhere,
	})

	return nil
}

func (a *authUseCase) Authenticate(
	ctx context.Context,
	accessToken string,
) (*authService.AccessTokenClaims, error) {
	claims, err := a.jwt.Parse(accessToken)
	if err != nil {
		return nil, err
	}

	session, err := a.sessionRepo.GetByTokenHash(ctx, a.tokens.HashToken(accessToken))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, authDomain.ErrSessionNotFound
		}
		return nil, err
	}
	if !session.Usable(time.Now().UTC()) {
		return nil, authDomain.ErrSessionNotFound
	}

	return claims, nil
}

func (a *authUseCase) StartStepUp(
	ctx context.Context,
	userID uuid.UUID,
	resourcePath string,
) (string, error) {
	now := time.Now().UTC()

	user, err := a.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	enrollment, err := a.mfaRepo.GetEnrollment(ctx, userID)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return "", err
	}

	token, _, err := a.openChallenge(
		ctx, user, enrollment, authDomain.PurposeStepUp, resourcePath, "", "", now,
	)
	return token, err
}

func (a *authUseCase) StepUpActive(
	ctx context.Context,
	userID uuid.UUID,
	resourcePath string,
) (bool, error) {
	_, err := a.mfaRepo.GetActiveStepUp(ctx, userID, resourcePath, time.Now().UTC())
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *authUseCase) CleanExpired(
	ctx context.Context,
	before time.Time,
) (int64, int64, error) {
	sessions, err := a.sessionRepo.DeleteExpired(ctx, before)
	if err != nil {
		return 0, 0, err
	}
	challenges, err := a.mfaRepo.DeleteExpiredChallenges(ctx, before)
	if err != nil {
		return sessions, 0, err
	}
	return sessions, challenges, nil
}

// recordLoginEvent audits a login attempt with the attempted username as the
// actor, even when the user row was never found.
func (a *authUseCase) recordLoginEvent(
	ctx context.Context,
	user *authDomain.User,
	input LoginInput,
	opErr error,
	details map[string]any,
) {
	entry := &auditDomain.Entry{
		EventType: auditDomain.EventAuthLogin,
		ActorType: auditDomain.ActorUser,
		ActorName: input.Username,
		Resource:  "user:" + input.Username,
		Action:    "login",
		Success:   opErr == nil,
		IPAddress: input.Attempt.IPAddress,
		UserAgent: input.UserAgent,
		Details:   details,
	}
	if user != nil {
		entry.ActorID = user.ID
		entry.ActorName = user.Username
	}

	if err := a.audit.Record(ctx, entry); err != nil {
		a.logger.Error("failed to record auth audit entry",
			slog.String("event_type", string(entry.EventType)),
			slog.String("error", err.Error()),
		)
	}
}

func (a *authUseCase) recordAuthEvent(
	ctx context.Context,
	eventType auditDomain.EventType,
	user *authDomain.User,
	action string,
	opErr error,
	details map[string]any,
) {
	entry := &auditDomain.Entry{
		EventType: eventType,
		ActorType: auditDomain.ActorUser,
		ActorID:   user.ID,
		ActorName: user.Username,
		Resource:  "user:" + user.Username,
		Action:    action,
		Success:   opErr == nil,
		Details:   details,
	}

	if err := a.audit.Record(ctx, entry); err != nil {
		a.logger.Error("failed to record auth audit entry",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}
