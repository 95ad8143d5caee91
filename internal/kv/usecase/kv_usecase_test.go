package usecase

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	apperrors "github.com/allisson/usp/internal/errors"
	kvDomain "github.com/allisson/usp/internal/kv/domain"
)

// fakeTxManager runs the function directly; the fakes below are in-memory.
type fakeTxManager struct{}

func (f *fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeMetadataRepo struct {
	mu     sync.Mutex
	byPath map[string]*kvDomain.SecretMetadata
}

func newFakeMetadataRepo() *fakeMetadataRepo {
	return &fakeMetadataRepo{byPath: make(map[string]*kvDomain.SecretMetadata)}
}

func (f *fakeMetadataRepo) Create(_ context.Context, metadata *kvDomain.SecretMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byPath[metadata.Path]; ok {
		return apperrors.Wrap(apperrors.ErrAlreadyExists, "secret metadata already exists")
	}
	clone := *metadata
	f.byPath[metadata.Path] = &clone
	return nil
}

func (f *fakeMetadataRepo) GetByPath(_ context.Context, path string) (*kvDomain.SecretMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	metadata, ok := f.byPath[path]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "secret metadata not found")
	}
	clone := *metadata
	return &clone, nil
}

func (f *fakeMetadataRepo) Update(_ context.Context, metadata *kvDomain.SecretMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byPath[metadata.Path]; !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "secret metadata not found")
	}
	clone := *metadata
	f.byPath[metadata.Path] = &clone
	return nil
}

func (f *fakeMetadataRepo) ListPaths(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0)
	for path := range f.byPath {
		if prefix == "" || strings.HasPrefix(path, prefix+"/") {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

type fakeVersionRepo struct {
	mu       sync.Mutex
	versions []*kvDomain.SecretVersion
}

func (f *fakeVersionRepo) Create(_ context.Context, version *kvDomain.SecretVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *version
	f.versions = append(f.versions, &clone)
	return nil
}

func (f *fakeVersionRepo) Get(
	_ context.Context,
	metadataID uuid.UUID,
	version uint,
) (*kvDomain.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions {
		if v.MetadataID == metadataID && v.Version == version {
			clone := *v
			return &clone, nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "secret version not found")
}

func (f *fakeVersionRepo) List(
	_ context.Context,
	metadataID uuid.UUID,
) ([]*kvDomain.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*kvDomain.SecretVersion, 0)
	for _, v := range f.versions {
		if v.MetadataID == metadataID {
			clone := *v
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeVersionRepo) SetDeleted(_ context.Context, versionID uuid.UUID, deletedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions {
		if v.ID == versionID {
			if v.DestroyedAt != nil {
				return apperrors.Wrap(apperrors.ErrNotFound, "secret version not found")
			}
			v.DeletedAt = deletedAt
			return nil
		}
	}
	return apperrors.Wrap(apperrors.ErrNotFound, "secret version not found")
}

func (f *fakeVersionRepo) Destroy(_ context.Context, versionID uuid.UUID, destroyedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions {
		if v.ID == versionID {
			v.EncryptedData = ""
			v.DestroyedAt = &destroyedAt
			if v.DeletedAt == nil {
				v.DeletedAt = &destroyedAt
			}
			return nil
		}
	}
	return apperrors.Wrap(apperrors.ErrNotFound, "secret version not found")
}

// fakeEncrypter encodes plaintext and AAD into a reversible string envelope.
type fakeEncrypter struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newFakeEncrypter() *fakeEncrypter {
	return &fakeEncrypter{keys: make(map[string]struct{})}
}

func (f *fakeEncrypter) EnsureKey(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[name] = struct{}{}
	return nil
}

func (f *fakeEncrypter) Encrypt(_ context.Context, name string, plaintext, aad []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[name]; !ok {
		return "", apperrors.Wrap(apperrors.ErrNotFound, "transit key not found")
	}
	return fmt.Sprintf(
		"enc:%s:%s",
		base64.StdEncoding.EncodeToString(aad),
		base64.StdEncoding.EncodeToString(plaintext),
	), nil
}

func (f *fakeEncrypter) Decrypt(_ context.Context, name string, envelope string, aad []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[name]; !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "transit key not found")
	}
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return nil, apperrors.Wrap(apperrors.ErrIntegrity, "malformed envelope")
	}
	boundAad, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIntegrity, "malformed envelope")
	}
	if !bytes.Equal(boundAad, aad) {
		return nil, apperrors.Wrap(apperrors.ErrIntegrity, "aad mismatch")
	}
	return base64.StdEncoding.DecodeString(parts[2])
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
	for _, entry := range f.entries {
		types = append(types, entry.EventType)
	}
	return types
}

type kvFixture struct {
	uc       KvUseCase
	metadata *fakeMetadataRepo
	versions *fakeVersionRepo
	cell     *cryptoDomain.MasterKeyCell
	audit    *fakeRecorder
}

func newKvFixture(t *testing.T) *kvFixture {
	t.Helper()

	cell := cryptoDomain.NewMasterKeyCell()
	key := make([]byte, cryptoDomain.MasterKeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	require.NoError(t, cell.Set(key, 1))

	fixture := &kvFixture{
		metadata: newFakeMetadataRepo(),
		versions: &fakeVersionRepo{},
		cell:     cell,
		audit:    &fakeRecorder{},
	}
	fixture.uc = NewKvUseCase(
		&fakeTxManager{},
		fixture.metadata,
		fixture.versions,
		newFakeEncrypter(),
		cell,
		fixture.audit,
		slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil)),
	)
	return fixture
}

func uintPtr(v uint) *uint {
	return &v
}

func TestKvUseCase_Write(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_VersioningWithCas", func(t *testing.T) {
		fixture := newKvFixture(t)

		metadata, err := fixture.uc.Write(ctx, "prod/db", map[string]any{"u": "a", "p": "x"}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint(1), metadata.CurrentVersion)

		metadata, err = fixture.uc.Write(ctx, "prod/db", map[string]any{"u": "a", "p": "y"}, uintPtr(1))
		require.NoError(t, err)
		assert.Equal(t, uint(2), metadata.CurrentVersion)

		_, err = fixture.uc.Write(ctx, "prod/db", map[string]any{"u": "a", "p": "z"}, uintPtr(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrCasMismatch)

		result, err := fixture.uc.Read(ctx, "prod/db", 0)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"u": "a", "p": "y"}, result.Data)
		assert.Equal(t, uint(2), result.Version)
	})

	t.Run("Success_PathNormalization", func(t *testing.T) {
		fixture := newKvFixture(t)

		_, err := fixture.uc.Write(ctx, "/prod//db/", map[string]any{"k": "v"}, nil)
		require.NoError(t, err)

		result, err := fixture.uc.Read(ctx, "prod/db", 0)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"k": "v"}, result.Data)
	})

	t.Run("Success_CreateOnlyCas", func(t *testing.T) {
		fixture := newKvFixture(t)

		_, err := fixture.uc.Write(ctx, "prod/db", map[string]any{"k": "v"}, uintPtr(0))
		require.NoError(t, err)

		_, err = fixture.uc.Write(ctx, "prod/db", map[string]any{"k": "w"}, uintPtr(0))
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrCasMismatch)
	})

	t.Run("Error_CasRequired", func(t *testing.T) {
		fixture := newKvFixture(t)

		_, err := fixture.uc.Write(ctx, "prod/db", map[string]any{"k": "v"}, nil)
		require.NoError(t, err)
		_, err = fixture.uc.Configure(ctx, "prod/db", 0, true)
		require.NoError(t, err)

		_, err = fixture.uc.Write(ctx, "prod/db", map[string]any{"k": "w"}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrCasMismatch)

		_, err = fixture.uc.Write(ctx, "prod/db", map[string]any{"k": "w"}, uintPtr(1))
		require.NoError(t, err)
	})

	t.Run("Error_Sealed", func(t *testing.T) {
		fixture := newKvFixture(t)
		fixture.cell.Clear()

		_, err := fixture.uc.Write(ctx, "prod/db", map[string]any{"k": "v"}, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrVaultSealed)
	})

	t.Run("Success_PruneOldestBeyondMaxVersions", func(t *testing.T) {
		fixture := newKvFixture(t)

		_, err := fixture.uc.Write(ctx, "prod/db", map[string]any{"n": 0}, nil)
		require.NoError(t, err)
		_, err = fixture.uc.Configure(ctx, "prod/db", 3, false)
		require.NoError(t, err)

		for i := 1; i < 5; i++ {
			_, err := fixture.uc.Write(ctx, "prod/db", map[string]any{"n": i}, nil)
			require.NoError(t, err)
		}

		// 5 versions with a cap of 3: versions 1 and 2 are soft-deleted.
		for version, wantDeleted := range map[uint]bool{1: true, 2: true, 3: false, 4: false, 5: false} {
			result, err := fixture.uc.Read(ctx, "prod/db", version)
			require.NoError(t, err)
			assert.Equal(t, wantDeleted, result.Deleted, "version %d", version)
		}
	})
}

func TestKvUseCase_DeleteUndeleteDestroy(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_SoftDeleteAndUndelete", func(t *testing.T) {
		fixture := newKvFixture(t)
		_, err := fixture.uc.Write(ctx, "prod/db", map[string]any{"k": "v"}, nil)
		require.NoError(t, err)

		require.NoError(t, fixture.uc.Delete(ctx, "prod/db", []uint{1}))

		result, err := fixture.uc.Read(ctx, "prod/db", 1)
		require.NoError(t, err)
		assert.True(t, result.Deleted)
		assert.Nil(t, result.Data)

		require.NoError(t, fixture.uc.Undelete(ctx, "prod/db", []uint{1}))

		result, err = fixture.uc.Read(ctx, "prod/db", 1)
		require.NoError(t, err)
		assert.False(t, result.Deleted)
		assert.Equal(t, map[string]any{"k": "v"}, result.Data)
	})

	t.Run("Success_DestroyIsTerminal", func(t *testing.T) {
		fixture := newKvFixture(t)
		_, err := fixture.uc.Write(ctx, "prod/db", map[string]any{"u": "a", "p": "x"}, nil)
		require.NoError(t, err)
		_, err = fixture.uc.Write(ctx, "prod/db", map[string]any{"u": "a", "p": "y"}, uintPtr(1))
		require.NoError(t, err)

		require.NoError(t, fixture.uc.Destroy(ctx, "prod/db", []uint{1}))

		_, err = fixture.uc.Read(ctx, "prod/db", 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		err = fixture.uc.Undelete(ctx, "prod/db", []uint{1})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		// The current version is unaffected.
		result, err := fixture.uc.Read(ctx, "prod/db", 0)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"u": "a", "p": "y"}, result.Data)
		assert.Equal(t, uint(2), result.Version)
	})

	t.Run("Error_UnknownVersion", func(t *testing.T) {
		fixture := newKvFixture(t)
		_, err := fixture.uc.Write(ctx, "prod/db", map[string]any{"k": "v"}, nil)
		require.NoError(t, err)

		err = fixture.uc.Delete(ctx, "prod/db", []uint{9})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestKvUseCase_List(t *testing.T) {
	ctx := context.Background()
	fixture := newKvFixture(t)

	for _, path := range []string{"prod/db", "prod/api/key", "prod/api/token", "staging/db"} {
		_, err := fixture.uc.Write(ctx, path, map[string]any{"k": "v"}, nil)
		require.NoError(t, err)
	}

	t.Run("Success_ImmediateChildren", func(t *testing.T) {
		keys, err := fixture.uc.List(ctx, "prod")

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"db", "api/"}, keys)
	})

	t.Run("Success_Root", func(t *testing.T) {
		keys, err := fixture.uc.List(ctx, "")

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"prod/", "staging/"}, keys)
	})
}

func TestKvUseCase_Audit(t *testing.T) {
	ctx := context.Background()
	fixture := newKvFixture(t)

	_, err := fixture.uc.Write(ctx, "prod/db", map[string]any{"k": "v"}, nil)
	require.NoError(t, err)
	_, err = fixture.uc.Read(ctx, "prod/db", 0)
	require.NoError(t, err)
	require.NoError(t, fixture.uc.Destroy(ctx, "prod/db", []uint{1}))

	types := fixture.audit.eventTypes()
	assert.Equal(t, []auditDomain.EventType{
		auditDomain.EventSecretWrite,
		auditDomain.EventSecretRead,
		auditDomain.EventSecretDestroy,
	}, types)

	fixture.audit.mu.Lock()
	defer fixture.audit.mu.Unlock()
	assert.Equal(t, "secret:prod/db", fixture.audit.entries[0].Resource)
	assert.True(t, fixture.audit.entries[0].Success)
}
