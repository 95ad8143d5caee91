package usecase

import (
	"bytes"
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	authDomain "github.com/allisson/usp/internal/auth/domain"
	authService "github.com/allisson/usp/internal/auth/service"
	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	cryptoService "github.com/allisson/usp/internal/crypto/service"
	apperrors "github.com/allisson/usp/internal/errors"
)

type fakeTxManager struct{}

func (f *fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeUserRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*authDomain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[uuid.UUID]*authDomain.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *authDomain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *user
	f.byID[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*authDomain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.byID {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "user not found")
}

func (f *fakeUserRepo) GetByID(_ context.Context, userID uuid.UUID) (*authDomain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[userID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "user not found")
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *authDomain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[user.ID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "user not found")
	}
	clone := *user
	f.byID[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[userID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "user not found")
	}
	delete(f.byID, userID)
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions []*authDomain.Session
}

func (f *fakeSessionRepo) Create(_ context.Context, session *authDomain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *session
	f.sessions = append(f.sessions, &clone)
	return nil
}

func (f *fakeSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*authDomain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.TokenHash == tokenHash {
			clone := *s
			return &clone, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "session not found")
}

func (f *fakeSessionRepo) GetByRefreshTokenHash(_ context.Context, hash string) (*authDomain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.RefreshTokenHash == hash {
			clone := *s
			return &clone, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "session not found")
}

func (f *fakeSessionRepo) Update(_ context.Context, session *authDomain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.sessions {
		if s.ID == session.ID {
			clone := *session
			f.sessions[i] = &clone
			return nil
		}
	}
	return apperrors.Wrap(apperrors.ErrNotFound, "session not found")
}

func (f *fakeSessionRepo) ListActiveByUser(
	_ context.Context,
	userID uuid.UUID,
	now time.Time,
) ([]*authDomain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	active := make([]*authDomain.Session, 0)
	for _, s := range f.sessions {
		if s.UserID == userID && !s.Revoked && now.Before(s.ExpiresAt) {
			clone := *s
			active = append(active, &clone)
		}
	}
	// Creation order matches last-activity order in these tests.
	return active, nil
}

func (f *fakeSessionRepo) RevokeAllByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, s := range f.sessions {
		if s.UserID == userID && !s.Revoked {
			s.Revoked = true
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.sessions[:0]
	var count int64
	for _, s := range f.sessions {
		if s.ExpiresAt.Before(before) {
			count++
			continue
		}
		kept = append(kept, s)
	}
	f.sessions = kept
	return count, nil
}

type fakeMfaRepo struct {
	mu          sync.Mutex
	enrollments map[uuid.UUID]*authDomain.MfaEnrollment
	challenges  map[uuid.UUID]*authDomain.MfaChallenge
}

func newFakeMfaRepo() *fakeMfaRepo {
	return &fakeMfaRepo{
		enrollments: make(map[uuid.UUID]*authDomain.MfaEnrollment),
		challenges:  make(map[uuid.UUID]*authDomain.MfaChallenge),
	}
}

func (f *fakeMfaRepo) UpsertEnrollment(_ context.Context, enrollment *authDomain.MfaEnrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *enrollment
	clone.BackupCodeHashes = append([]string(nil), enrollment.BackupCodeHashes...)
	f.enrollments[enrollment.UserID] = &clone
	return nil
}

func (f *fakeMfaRepo) GetEnrollment(_ context.Context, userID uuid.UUID) (*authDomain.MfaEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	enrollment, ok := f.enrollments[userID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "mfa enrollment not found")
	}
	clone := *enrollment
	clone.BackupCodeHashes = append([]string(nil), enrollment.BackupCodeHashes...)
	return &clone, nil
}

func (f *fakeMfaRepo) CreateChallenge(_ context.Context, challenge *authDomain.MfaChallenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *challenge
	f.challenges[challenge.ID] = &clone
	return nil
}

func (f *fakeMfaRepo) GetChallengeByTokenHash(
	_ context.Context,
	tokenHash string,
) (*authDomain.MfaChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.challenges {
		if c.TokenHash == tokenHash {
			clone := *c
			return &clone, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "mfa challenge not found")
}

func (f *fakeMfaRepo) GetActiveStepUp(
	_ context.Context,
	userID uuid.UUID,
	resourcePath string,
	now time.Time,
) (*authDomain.MfaChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.challenges {
		if c.UserID == userID && c.Purpose == authDomain.PurposeStepUp &&
			c.ResourcePath == resourcePath && c.Completed() && now.Before(c.ExpiresAt) {
			clone := *c
			return &clone, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "mfa challenge not found")
}

func (f *fakeMfaRepo) UpdateChallenge(_ context.Context, challenge *authDomain.MfaChallenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.challenges[challenge.ID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "mfa challenge not found")
	}
	clone := *challenge
	f.challenges[challenge.ID] = &clone
	return nil
}

func (f *fakeMfaRepo) DeleteExpiredChallenges(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for id, c := range f.challenges {
		if c.ExpiresAt.Before(before) {
			delete(f.challenges, id)
			count++
		}
	}
	return count, nil
}

type fakeDeviceRepo struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{seen: make(map[string]bool)}
}

func (f *fakeDeviceRepo) Seen(_ context.Context, userID uuid.UUID, fingerprint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[userID.String()+"/"+fingerprint], nil
}

func (f *fakeDeviceRepo) Remember(_ context.Context, userID uuid.UUID, fingerprint string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[userID.String()+"/"+fingerprint] = true
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []*auditDomain.Entry
}

func (f *fakeRecorder) Record(_ context.Context, entry *auditDomain.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *entry
	f.entries = append(f.entries, &clone)
	return nil
}

func (f *fakeRecorder) eventTypes() []auditDomain.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]auditDomain.EventType, 0, len(f.entries))
	for _, e := range f.entries {
		types = append(types, e.EventType)
	}
	return types
}

type fakeRoleProvider struct {
	roles []string
}

func (f *fakeRoleProvider) RoleNames(context.Context, uuid.UUID) ([]string, error) {
	return f.roles, nil
}

type authFixture struct {
	uc          AuthUseCase
	users       *fakeUserRepo
	sessions    *fakeSessionRepo
	mfa         *fakeMfaRepo
	devices     *fakeDeviceRepo
	audit       *fakeRecorder
	passwords   authService.PasswordService
	tokens      authService.TokenService
	jwt         authService.JwtService
	totp        authService.TotpService
	barrier     cryptoService.Barrier
	userID      uuid.UUID
}

const fixturePassword = "correct horse battery staple"

func defaultConfig() Config {
	return Config{
		AccessTokenTTL:        15 * time.Minute,
		RefreshTokenTTL:       24 * time.Hour,
		LockoutThreshold:      3,
		LockoutCooldown:       15 * time.Minute,
		MaxConcurrentSessions: 5,
		RotateRefreshTokens:   true,
		DenyRiskThreshold:     90,
	}
}

func newAuthFixture(t *testing.T, config Config, providers Providers) *authFixture {
	t.Helper()

	cell := cryptoDomain.NewMasterKeyCell()
	masterKey := make([]byte, cryptoDomain.MasterKeySize)
	_, err := rand.Read(masterKey)
	require.NoError(t, err)
	require.NoError(t, cell.Set(masterKey, 1))

	jwtKey := make([]byte, authService.MinHmacKeySize)
	_, err = rand.Read(jwtKey)
	require.NoError(t, err)
	jwtSvc, err := authService.NewJwtService(authService.JwtAlgorithmHS256, jwtKey)
	require.NoError(t, err)

	fixture := &authFixture{
		users:     newFakeUserRepo(),
		sessions:  &fakeSessionRepo{},
		mfa:       newFakeMfaRepo(),
		devices:   newFakeDeviceRepo(),
		audit:     &fakeRecorder{},
		passwords: authService.NewPasswordService(),
		tokens:    authService.NewTokenService(),
		jwt:       jwtSvc,
		totp:      authService.NewTotpService("usp"),
		barrier:   cryptoService.NewBarrier(cell),
	}

	passwordHash, err := fixture.passwords.Hash(fixturePassword)
	require.NoError(t, err)

	now := time.Now().UTC()
	user := &authDomain.User{
		ID:           uuid.Must(uuid.NewV7()),
		Username:     "ada",
		Name:         "Ada Lovelace",
		Email:        "ada@example.com",
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, fixture.users.Create(context.Background(), user))
	fixture.userID = user.ID

	fixture.uc = NewAuthUseCase(
		&fakeTxManager{},
		fixture.users,
		fixture.sessions,
		fixture.mfa,
		fixture.devices,
		&fakeRoleProvider{roles: []string{"operator"}},
		fixture.passwords,
		fixture.tokens,
		fixture.jwt,
		fixture.totp,
		authService.NewRiskEngine(nil),
		fixture.barrier,
		providers,
		fixture.audit,
		slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil)),
		config,
	)
	return fixture
}

// enrollTotp registers a TOTP secret directly through the repo, the way
// UserUseCase.EnrollTotp stores it.
func (f *authFixture) enrollTotp(t *testing.T) string {
	t.Helper()

	secret, err := f.totp.GenerateSecret("ada@example.com")
	require.NoError(t, err)
	encrypted, err := f.barrier.Encrypt(context.Background(), []byte(secret), f.userID[:])
	require.NoError(t, err)

	require.NoError(t, f.mfa.UpsertEnrollment(context.Background(), &authDomain.MfaEnrollment{
		UserID:              f.userID,
		EncryptedTotpSecret: encrypted,
		UpdatedAt:           time.Now().UTC(),
	}))
	return secret
}

func loginInput() LoginInput {
	return LoginInput{
		Username: "Ada",
		Password: fixturePassword,
		Attempt:  authDomain.LoginAttempt{IPAddress: "203.0.113.10"},
	}
}

func TestAuthUseCase_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_IssuesTokens", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})

		result, err := fixture.uc.Login(ctx, loginInput())

		require.NoError(t, err)
		require.NotNil(t, result.Tokens)
		assert.False(t, result.MfaRequired)

		claims, err := fixture.uc.Authenticate(ctx, result.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, fixture.userID, claims.UserID)
		assert.Equal(t, []string{"operator"}, claims.Roles)
		assert.Contains(t, fixture.audit.eventTypes(), auditDomain.EventAuthLogin)
	})

	t.Run("Error_UnknownUser", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})

		input := loginInput()
		input.Username = "nobody"
		_, err := fixture.uc.Login(ctx, input)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("Error_LockoutAfterThreshold", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})

		wrong := loginInput()
		wrong.Password = "wrong password here"
		for i := 0; i < 3; i++ {
			_, err := fixture.uc.Login(ctx, wrong)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		}

		// Even the correct password short-circuits while locked.
		_, err := fixture.uc.Login(ctx, loginInput())
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrLockedOut)
		assert.Contains(t, fixture.audit.eventTypes(), auditDomain.EventAuthLockout)
	})

	t.Run("Success_FailureCounterResetsOnSuccess", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})

		wrong := loginInput()
		wrong.Password = "wrong password here"
		_, err := fixture.uc.Login(ctx, wrong)
		require.Error(t, err)

		_, err = fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)

		user, err := fixture.users.GetByID(ctx, fixture.userID)
		require.NoError(t, err)
		assert.Equal(t, uint(0), user.FailedLoginAttempts)
	})

	t.Run("Success_SessionCapEvictsOldest", func(t *testing.T) {
		config := defaultConfig()
		config.MaxConcurrentSessions = 2
		fixture := newAuthFixture(t, config, Providers{})

		first, err := fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)
		_, err = fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)
		_, err = fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)

		active, err := fixture.sessions.ListActiveByUser(ctx, fixture.userID, time.Now().UTC())
		require.NoError(t, err)
		assert.Len(t, active, 2)
		for _, session := range active {
			assert.NotEqual(t, first.Tokens.SessionID, session.ID)
		}
		assert.Contains(t, fixture.audit.eventTypes(), auditDomain.EventSessionEvicted)
	})

	t.Run("Error_DeniedAtRiskThreshold", func(t *testing.T) {
		config := defaultConfig()
		config.DenyRiskThreshold = 30
		fixture := newAuthFixture(t, config, Providers{})

		// Seed history so the next attempt scores new_ip, new_country, and
		// impossible travel.
		user, err := fixture.users.GetByID(ctx, fixture.userID)
		require.NoError(t, err)
		lastLogin := time.Now().UTC().Add(-10 * time.Minute)
		user.LastLoginAt = &lastLogin
		user.LastLoginIP = "203.0.113.10"
		user.LastLoginCountry = "BR"
		require.NoError(t, fixture.users.Update(ctx, user))

		risky := loginInput()
		risky.Attempt.IPAddress = "198.51.100.7"
		risky.Attempt.Country = "JP"
		_, err = fixture.uc.Login(ctx, risky)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})
}

func TestAuthUseCase_Mfa(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_TotpChallengeFlow", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})
		secret := fixture.enrollTotp(t)

		result, err := fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)
		assert.True(t, result.MfaRequired)
		assert.Nil(t, result.Tokens)
		assert.Contains(t, result.Methods, authDomain.MfaMethodTotp)

		code, err := totp.GenerateCode(secret, time.Now().UTC())
		require.NoError(t, err)

		verified, err := fixture.uc.VerifyMfa(ctx, result.ChallengeToken, authDomain.MfaMethodTotp, code)
		require.NoError(t, err)
		require.NotNil(t, verified.Tokens)

		_, err = fixture.uc.Authenticate(ctx, verified.Tokens.AccessToken)
		require.NoError(t, err)
	})

	t.Run("Error_WrongTotpCode", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})
		fixture.enrollTotp(t)

		result, err := fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)

		_, err = fixture.uc.VerifyMfa(ctx, result.ChallengeToken, authDomain.MfaMethodTotp, "000000")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		assert.Contains(t, fixture.audit.eventTypes(), auditDomain.EventAuthMfaFailed)
	})

	t.Run("Success_BackupCodeSingleUse", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})
		fixture.enrollTotp(t)

		// Register one backup code the way UserUseCase stores them.
		code := "BACKUPCODE123456"
		enrollment, err := fixture.mfa.GetEnrollment(ctx, fixture.userID)
		require.NoError(t, err)
		enrollment.BackupCodeHashes = []string{sha256Hex(code)}
		require.NoError(t, fixture.mfa.UpsertEnrollment(ctx, enrollment))

		result, err := fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)

		verified, err := fixture.uc.VerifyMfa(ctx, result.ChallengeToken, authDomain.MfaMethodBackupCode, code)
		require.NoError(t, err)
		require.NotNil(t, verified.Tokens)

		// The code is consumed; a second challenge cannot reuse it.
		second, err := fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)
		_, err = fixture.uc.VerifyMfa(ctx, second.ChallengeToken, authDomain.MfaMethodBackupCode, code)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("Error_DelegatedFactorNotConfigured", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})
		fixture.enrollTotp(t)

		result, err := fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)

		_, err = fixture.uc.VerifyMfa(ctx, result.ChallengeToken, authDomain.MfaMethodWebauthn, "assertion")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrNotSupported)
	})

	t.Run("Error_UnknownChallengeToken", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})

		_, err := fixture.uc.VerifyMfa(ctx, "bogus", authDomain.MfaMethodTotp, "000000")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})
}

func TestAuthUseCase_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RotatesRefreshToken", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})

		login, err := fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)

		refreshed, err := fixture.uc.Refresh(ctx, login.Tokens.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, login.Tokens.RefreshToken, refreshed.RefreshToken)
		assert.NotEqual(t, login.Tokens.AccessToken, refreshed.AccessToken)

		_, err = fixture.uc.Authenticate(ctx, refreshed.AccessToken)
		require.NoError(t, err)
	})

	t.Run("Error_ReplayRevokesAllSessions", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})

		login, err := fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)
		other, err := fixture.uc.Login(ctx, loginInput())
		require.NoError(t, err)

		// First, log out the session so its refresh token is revoked.
		require.NoError(t, fixture.uc.Logout(ctx, login.Tokens.AccessToken, false))

		_, err = fixture.uc.Refresh(ctx, login.Tokens.RefreshToken)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		assert.Contains(t, fixture.audit.eventTypes(), auditDomain.EventAuthRefreshReplay)

		// The unrelated session got revoked too.
		_, err = fixture.uc.Authenticate(ctx, other.Tokens.AccessToken)
		require.Error(t, err)
	})

	t.Run("Error_UnknownRefreshToken", func(t *testing.T) {
		fixture := newAuthFixture(t, defaultConfig(), Providers{})

		_, err := fixture.uc.Refresh(ctx, "bogus")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})
}

func TestAuthUseCase_Logout(t *testing.T) {
	ctx := context.Background()
	fixture := newAuthFixture(t, defaultConfig(), Providers{})

	login, err := fixture.uc.Login(ctx, loginInput())
	require.NoError(t, err)

	require.NoError(t, fixture.uc.Logout(ctx, login.Tokens.AccessToken, false))

	_, err = fixture.uc.Authenticate(ctx, login.Tokens.AccessToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Contains(t, fixture.audit.eventTypes(), auditDomain.EventAuthLogout)
}

func TestAuthUseCase_StepUp(t *testing.T) {
	ctx := context.Background()
	fixture := newAuthFixture(t, defaultConfig(), Providers{})
	secret := fixture.enrollTotp(t)

	active, err := fixture.uc.StepUpActive(ctx, fixture.userID, "pam/safe/prod")
	require.NoError(t, err)
	assert.False(t, active)

	token, err := fixture.uc.StartStepUp(ctx, fixture.userID, "pam/safe/prod")
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)
	result, err := fixture.uc.VerifyMfa(ctx, token, authDomain.MfaMethodTotp, code)
	require.NoError(t, err)
	assert.True(t, result.StepUpSatisfied)
	assert.Nil(t, result.Tokens)

	active, err = fixture.uc.StepUpActive(ctx, fixture.userID, "pam/safe/prod")
	require.NoError(t, err)
	assert.True(t, active)

	// A different resource path is not covered.
	active, err = fixture.uc.StepUpActive(ctx, fixture.userID, "pam/safe/staging")
	require.NoError(t, err)
	assert.False(t, active)
	assert.Contains(t, fixture.audit.eventTypes(), auditDomain.EventAuthStepUp)
}

func TestAuthUseCase_CleanExpired(t *testing.T) {
	ctx := context.Background()
	fixture := newAuthFixture(t, defaultConfig(), Providers{})

	login, err := fixture.uc.Login(ctx, loginInput())
	require.NoError(t, err)
	_ = login

	sessions, challenges, err := fixture.uc.CleanExpired(ctx, time.Now().UTC().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), sessions)
	assert.Equal(t, int64(0), challenges)
}

func sha256Hex(s string) string {
	return authService.NewTokenService().HashToken(s)
}
