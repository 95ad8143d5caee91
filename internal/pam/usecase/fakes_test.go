package usecase

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	apperrors "github.com/allisson/usp/internal/errors"
	"github.com/allisson/usp/internal/pam/connector"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
	pamService "github.com/allisson/usp/internal/pam/service"
)

type fakeTxManager struct{}

func (f *fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRecorder struct {
	mutex   sync.Mutex
	entries []*auditDomain.Entry
}

func (f *fakeRecorder) Record(_ context.Context, entry *auditDomain.Entry) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeRecorder) eventTypes() []auditDomain.EventType {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	types := make([]auditDomain.EventType, 0, len(f.entries))
	for _, entry := range f.entries {
		types = append(types, entry.EventType)
	}
	return types
}

func (f *fakeRecorder) lastOf(eventType auditDomain.EventType) *auditDomain.Entry {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].EventType == eventType {
			return f.entries[i]
		}
	}
	return nil
}

type fakeSafeRepo struct {
	safes map[uuid.UUID]pamDomain.Safe
	acl   map[uuid.UUID][]pamDomain.AclEntry
}

func newFakeSafeRepo() *fakeSafeRepo {
	return &fakeSafeRepo{
		safes: make(map[uuid.UUID]pamDomain.Safe),
		acl:   make(map[uuid.UUID][]pamDomain.AclEntry),
	}
}

func (f *fakeSafeRepo) Create(_ context.Context, safe *pamDomain.Safe) error {
	f.safes[safe.ID] = *safe
	return nil
}

func (f *fakeSafeRepo) GetByID(_ context.Context, safeID uuid.UUID) (*pamDomain.Safe, error) {
	safe, ok := f.safes[safeID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "safe not found")
	}
	return &safe, nil
}

func (f *fakeSafeRepo) GetByName(_ context.Context, name string) (*pamDomain.Safe, error) {
	for _, safe := range f.safes {
		if safe.Name == name {
			return &safe, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "safe not found")
}

func (f *fakeSafeRepo) Update(_ context.Context, safe *pamDomain.Safe) error {
	if _, ok := f.safes[safe.ID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "safe not found")
	}
	f.safes[safe.ID] = *safe
	return nil
}

func (f *fakeSafeRepo) Delete(_ context.Context, safeID uuid.UUID) error {
	if _, ok := f.safes[safeID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "safe not found")
	}
	delete(f.safes, safeID)
	delete(f.acl, safeID)
	return nil
}

func (f *fakeSafeRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*pamDomain.Safe, error) {
	var result []*pamDomain.Safe
	for id, safe := range f.safes {
		if safe.OwnerID == userID {
			s := safe
			result = append(result, &s)
			continue
		}
		for _, entry := range f.acl[id] {
			if entry.UserID == userID {
				s := safe
				result = append(result, &s)
				break
			}
		}
	}
	return result, nil
}

func (f *fakeSafeRepo) ListAcl(_ context.Context, safeID uuid.UUID) ([]pamDomain.AclEntry, error) {
	return f.acl[safeID], nil
}

func (f *fakeSafeRepo) GrantAcl(_ context.Context, entry pamDomain.AclEntry) error {
	entries := f.acl[entry.SafeID]
	for i, existing := range entries {
		if existing.UserID == entry.UserID {
			entries[i] = entry
			return nil
		}
	}
	f.acl[entry.SafeID] = append(entries, entry)
	return nil
}

func (f *fakeSafeRepo) RevokeAcl(_ context.Context, safeID, userID uuid.UUID) error {
	entries := f.acl[safeID]
	for i, existing := range entries {
		if existing.UserID == userID {
			f.acl[safeID] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return apperrors.Wrap(apperrors.ErrNotFound, "acl entry not found")
}

type fakeAccountRepo struct {
	accounts map[uuid.UUID]pamDomain.PrivilegedAccount
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[uuid.UUID]pamDomain.PrivilegedAccount)}
}

func (f *fakeAccountRepo) Create(_ context.Context, account *pamDomain.PrivilegedAccount) error {
	f.accounts[account.ID] = *account
	return nil
}

func (f *fakeAccountRepo) GetByID(_ context.Context, accountID uuid.UUID) (*pamDomain.PrivilegedAccount, error) {
	account, ok := f.accounts[accountID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "account not found")
	}
	return &account, nil
}

func (f *fakeAccountRepo) GetByIDForUpdate(ctx context.Context, accountID uuid.UUID) (*pamDomain.PrivilegedAccount, error) {
	return f.GetByID(ctx, accountID)
}

func (f *fakeAccountRepo) Update(_ context.Context, account *pamDomain.PrivilegedAccount) error {
	if _, ok := f.accounts[account.ID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "account not found")
	}
	f.accounts[account.ID] = *account
	return nil
}

func (f *fakeAccountRepo) Delete(_ context.Context, accountID uuid.UUID) error {
	if _, ok := f.accounts[accountID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "account not found")
	}
	delete(f.accounts, accountID)
	return nil
}

func (f *fakeAccountRepo) ListBySafe(_ context.Context, safeID uuid.UUID) ([]*pamDomain.PrivilegedAccount, error) {
	var result []*pamDomain.PrivilegedAccount
	for _, account := range f.accounts {
		if account.SafeID == safeID {
			a := account
			result = append(result, &a)
		}
	}
	return result, nil
}

func (f *fakeAccountRepo) ListRotationDue(_ context.Context, now time.Time) ([]*pamDomain.PrivilegedAccount, error) {
	var result []*pamDomain.PrivilegedAccount
	for _, account := range f.accounts {
		if account.RotationDue(now) {
			a := account
			result = append(result, &a)
		}
	}
	return result, nil
}

type fakeCheckoutRepo struct {
	checkouts map[uuid.UUID]pamDomain.Checkout
}

func newFakeCheckoutRepo() *fakeCheckoutRepo {
	return &fakeCheckoutRepo{checkouts: make(map[uuid.UUID]pamDomain.Checkout)}
}

func (f *fakeCheckoutRepo) Create(_ context.Context, checkout *pamDomain.Checkout) error {
	f.checkouts[checkout.ID] = *checkout
	return nil
}

func (f *fakeCheckoutRepo) GetByID(_ context.Context, checkoutID uuid.UUID) (*pamDomain.Checkout, error) {
	checkout, ok := f.checkouts[checkoutID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "checkout not found")
	}
	return &checkout, nil
}

func (f *fakeCheckoutRepo) GetByIDForUpdate(ctx context.Context, checkoutID uuid.UUID) (*pamDomain.Checkout, error) {
	return f.GetByID(ctx, checkoutID)
}

func (f *fakeCheckoutRepo) GetOpenByAccount(_ context.Context, accountID uuid.UUID) (*pamDomain.Checkout, error) {
	for _, checkout := range f.checkouts {
		if checkout.AccountID == accountID && !checkout.Status.Terminal() {
			c := checkout
			return &c, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "no open checkout")
}

func (f *fakeCheckoutRepo) Update(_ context.Context, checkout *pamDomain.Checkout) error {
	if _, ok := f.checkouts[checkout.ID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "checkout not found")
	}
	f.checkouts[checkout.ID] = *checkout
	return nil
}

func (f *fakeCheckoutRepo) ListOverdue(_ context.Context, now time.Time) ([]*pamDomain.Checkout, error) {
	var result []*pamDomain.Checkout
	for _, checkout := range f.checkouts {
		if checkout.Overdue(now) {
			c := checkout
			result = append(result, &c)
		}
	}
	return result, nil
}

type fakeApprovalRepo struct {
	approvals map[uuid.UUID]pamDomain.AccessApproval
}

func newFakeApprovalRepo() *fakeApprovalRepo {
	return &fakeApprovalRepo{approvals: make(map[uuid.UUID]pamDomain.AccessApproval)}
}

func (f *fakeApprovalRepo) Create(_ context.Context, approval *pamDomain.AccessApproval) error {
	f.approvals[approval.ID] = *approval
	return nil
}

func (f *fakeApprovalRepo) GetByIDForUpdate(_ context.Context, approvalID uuid.UUID) (*pamDomain.AccessApproval, error) {
	approval, ok := f.approvals[approvalID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "approval not found")
	}
	return &approval, nil
}

func (f *fakeApprovalRepo) Update(_ context.Context, approval *pamDomain.AccessApproval) error {
	if _, ok := f.approvals[approval.ID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "approval not found")
	}
	f.approvals[approval.ID] = *approval
	return nil
}

type fakeSessionRepo struct {
	sessions map[uuid.UUID]pamDomain.PrivilegedSession
	commands map[uuid.UUID][]pamDomain.SessionCommand
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[uuid.UUID]pamDomain.PrivilegedSession),
		commands: make(map[uuid.UUID][]pamDomain.SessionCommand),
	}
}

func (f *fakeSessionRepo) Create(_ context.Context, session *pamDomain.PrivilegedSession) error {
	f.sessions[session.ID] = *session
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, sessionID uuid.UUID) (*pamDomain.PrivilegedSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "session not found")
	}
	return &session, nil
}

func (f *fakeSessionRepo) GetByIDForUpdate(ctx context.Context, sessionID uuid.UUID) (*pamDomain.PrivilegedSession, error) {
	return f.GetByID(ctx, sessionID)
}

func (f *fakeSessionRepo) GetByCheckout(_ context.Context, checkoutID uuid.UUID) (*pamDomain.PrivilegedSession, error) {
	for _, session := range f.sessions {
		if session.CheckoutID == checkoutID {
			s := session
			return &s, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "session not found")
}

func (f *fakeSessionRepo) Update(_ context.Context, session *pamDomain.PrivilegedSession) error {
	if _, ok := f.sessions[session.ID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "session not found")
	}
	f.sessions[session.ID] = *session
	return nil
}

func (f *fakeSessionRepo) AppendCommand(_ context.Context, command *pamDomain.SessionCommand) error {
	f.commands[command.SessionID] = append(f.commands[command.SessionID], *command)
	return nil
}

func (f *fakeSessionRepo) ListCommands(_ context.Context, sessionID uuid.UUID) ([]pamDomain.SessionCommand, error) {
	return f.commands[sessionID], nil
}

type fakeJitRepo struct {
	grants map[uuid.UUID]pamDomain.JitAccessGrant
}

func newFakeJitRepo() *fakeJitRepo {
	return &fakeJitRepo{grants: make(map[uuid.UUID]pamDomain.JitAccessGrant)}
}

func (f *fakeJitRepo) Create(_ context.Context, grant *pamDomain.JitAccessGrant) error {
	f.grants[grant.ID] = *grant
	return nil
}

func (f *fakeJitRepo) GetByID(_ context.Context, grantID uuid.UUID) (*pamDomain.JitAccessGrant, error) {
	grant, ok := f.grants[grantID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "grant not found")
	}
	return &grant, nil
}

func (f *fakeJitRepo) Update(_ context.Context, grant *pamDomain.JitAccessGrant) error {
	if _, ok := f.grants[grant.ID]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "grant not found")
	}
	f.grants[grant.ID] = *grant
	return nil
}

func (f *fakeJitRepo) FindActive(
	_ context.Context,
	userID uuid.UUID,
	resourceType string,
	resourceID uuid.UUID,
	now time.Time,
) (*pamDomain.JitAccessGrant, error) {
	for _, grant := range f.grants {
		if grant.UserID == userID && grant.ResourceType == resourceType &&
			grant.ResourceID == resourceID && grant.Status == pamDomain.JitActive &&
			grant.Active(now) {
			g := grant
			return &g, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "no active grant")
}

func (f *fakeJitRepo) ListSweepable(_ context.Context, now time.Time) ([]*pamDomain.JitAccessGrant, error) {
	var result []*pamDomain.JitAccessGrant
	for _, grant := range f.grants {
		if grant.Status == pamDomain.JitActive && grant.ExpiresAt != nil && grant.ExpiresAt.Before(now) {
			g := grant
			result = append(result, &g)
		}
	}
	return result, nil
}

// fakeCipher reversibly marks plaintexts so tests can assert what was
// stored without real cryptography.
type fakeCipher struct {
	ensuredKeys []string
}

func (f *fakeCipher) EnsureKey(_ context.Context, name string) error {
	f.ensuredKeys = append(f.ensuredKeys, name)
	return nil
}

func (f *fakeCipher) Encrypt(_ context.Context, _ string, plaintext, _ []byte) (string, error) {
	return "enc:" + string(plaintext), nil
}

func (f *fakeCipher) Decrypt(_ context.Context, _ string, envelope string, _ []byte) ([]byte, error) {
	payload, ok := strings.CutPrefix(envelope, "enc:")
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "not a fake envelope")
	}
	return []byte(payload), nil
}

type fakeStepUp struct {
	active map[uuid.UUID]bool
}

func (f *fakeStepUp) StepUpActive(_ context.Context, userID uuid.UUID, _ string) (bool, error) {
	return f.active[userID], nil
}

// fakeConnector holds one in-memory secret and can be told to fail the
// first rotate, the revert rotate, or the post-rotate verify. Setting
// transientRotateFails makes the first N rotate calls fail with a
// retryable error instead.
type fakeConnector struct {
	mutex                sync.Mutex
	secret               string
	generated            int
	rotateCalls          int
	failVerify           bool
	failRotate           bool
	failRevert           bool
	transientRotateFails int
}

func (f *fakeConnector) Verify(_ context.Context, _ connector.Target, password string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failVerify {
		return apperrors.Wrap(apperrors.ErrExternal, "verification refused")
	}
	if password != f.secret {
		return apperrors.Wrap(apperrors.ErrExternal, "authentication failed")
	}
	return nil
}

func (f *fakeConnector) Rotate(_ context.Context, _ connector.Target, current, next string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.rotateCalls++
	if f.rotateCalls <= f.transientRotateFails {
		return connector.Transient(apperrors.Wrap(apperrors.ErrExternal, "connection reset by peer"))
	}
	if f.failRotate && f.rotateCalls == 1 {
		return apperrors.Wrap(apperrors.ErrExternal, "rotate refused")
	}
	if f.failRevert && f.rotateCalls > 1 {
		return apperrors.Wrap(apperrors.ErrExternal, "revert refused")
	}
	if current != f.secret {
		return apperrors.Wrap(apperrors.ErrExternal, "current credential rejected")
	}
	f.secret = next
	return nil
}

func (f *fakeConnector) Generate() (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.generated++
	return "Rotated!" + strconv.Itoa(f.generated), nil
}

// pamFixture wires every PAM use case over the in-memory fakes with a
// single shared audit recorder.
type pamFixture struct {
	safeRepo     *fakeSafeRepo
	accountRepo  *fakeAccountRepo
	checkoutRepo *fakeCheckoutRepo
	approvalRepo *fakeApprovalRepo
	sessionRepo  *fakeSessionRepo
	jitRepo      *fakeJitRepo
	cipher       *fakeCipher
	stepUp       *fakeStepUp
	recorder     *fakeRecorder
	conn         *fakeConnector
	registry     *connector.Registry

	safes     SafeUseCase
	rotation  RotationUseCase
	checkouts CheckoutUseCase
	sessions  SessionUseCase
	jit       JitUseCase
}

func newPamFixture(t *testing.T) *pamFixture {
	t.Helper()

	f := &pamFixture{
		safeRepo:     newFakeSafeRepo(),
		accountRepo:  newFakeAccountRepo(),
		checkoutRepo: newFakeCheckoutRepo(),
		approvalRepo: newFakeApprovalRepo(),
		sessionRepo:  newFakeSessionRepo(),
		jitRepo:      newFakeJitRepo(),
		cipher:       &fakeCipher{},
		stepUp:       &fakeStepUp{active: make(map[uuid.UUID]bool)},
		recorder:     &fakeRecorder{},
		conn:         &fakeConnector{},
		registry:     connector.NewRegistry(),
	}
	f.registry.Register(pamDomain.PlatformPostgres, f.conn)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	txManager := &fakeTxManager{}

	f.safes = NewSafeUseCase(txManager, f.safeRepo, f.accountRepo, f.cipher, f.stepUp, f.recorder, logger)
	f.rotation = NewRotationUseCase(txManager, f.safeRepo, f.accountRepo, f.registry, f.cipher, f.recorder, logger)
	f.checkouts = NewCheckoutUseCase(
		txManager, f.safeRepo, f.accountRepo, f.checkoutRepo, f.approvalRepo,
		f.sessionRepo, f.rotation, f.cipher, f.recorder, logger,
	)
	f.sessions = NewSessionUseCase(txManager, f.sessionRepo, pamService.NewSuspiciousDetector(nil), f.recorder, logger)
	f.jit = NewJitUseCase(txManager, f.jitRepo, f.approvalRepo, f.recorder, logger)
	return f
}

func (f *pamFixture) createSafe(t *testing.T, ownerID uuid.UUID, input CreateSafeInput) *pamDomain.Safe {
	t.Helper()
	input.OwnerID = ownerID
	safe, err := f.safes.CreateSafe(context.Background(), input)
	require.NoError(t, err)
	return safe
}

func (f *pamFixture) createAccount(t *testing.T, ownerID uuid.UUID, input CreateAccountInput) *pamDomain.PrivilegedAccount {
	t.Helper()
	if input.AccountName == "" {
		input.AccountName = "db-admin"
	}
	if input.Username == "" {
		input.Username = "app_user"
	}
	if input.Password == "" {
		input.Password = "Initial!Secret9"
	}
	if input.Platform == "" {
		input.Platform = pamDomain.PlatformPostgres
	}
	account, err := f.safes.CreateAccount(context.Background(), ownerID, input)
	require.NoError(t, err)
	f.conn.secret = input.Password
	return account
}
