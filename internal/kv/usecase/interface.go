// Package usecase implements the versioned key-value secrets engine:
// check-and-set writes, versioned reads, soft delete/undelete, hard
// destroy, and prefix listing. All data is encrypted through a dedicated
// transit key before it reaches storage.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	kvDomain "github.com/allisson/usp/internal/kv/domain"
)

// SecretMetadataRepository defines per-path metadata persistence.
type SecretMetadataRepository interface {
	Create(ctx context.Context, metadata *kvDomain.SecretMetadata) error
	GetByPath(ctx context.Context, path string) (*kvDomain.SecretMetadata, error)
	Update(ctx context.Context, metadata *kvDomain.SecretMetadata) error
	ListPaths(ctx context.Context, prefix string) ([]string, error)
}

// SecretVersionRepository defines secret version persistence.
type SecretVersionRepository interface {
	Create(ctx context.Context, version *kvDomain.SecretVersion) error
	Get(ctx context.Context, metadataID uuid.UUID, version uint) (*kvDomain.SecretVersion, error)
	List(ctx context.Context, metadataID uuid.UUID) ([]*kvDomain.SecretVersion, error)
	SetDeleted(ctx context.Context, versionID uuid.UUID, deletedAt *time.Time) error
	Destroy(ctx context.Context, versionID uuid.UUID, destroyedAt time.Time) error
}

// SecretEncrypter is the slice of the transit engine the secrets engine
// needs: named-key encryption with lazy key creation.
type SecretEncrypter interface {
	// EnsureKey creates the named symmetric key if it does not exist.
	EnsureKey(ctx context.Context, name string) error
	// Encrypt seals plaintext under the named key's latest version.
	Encrypt(ctx context.Context, name string, plaintext, aad []byte) (string, error)
	// Decrypt opens an envelope produced by Encrypt.
	Decrypt(ctx context.Context, name string, envelope string, aad []byte) ([]byte, error)
}

// ReadResult is a decrypted secret version. Data is nil when the version is
// soft-deleted.
type ReadResult struct {
	Data      map[string]any
	Version   uint
	CreatedAt time.Time
	Deleted   bool
}

// KvUseCase is the versioned secrets engine. All operations require the
// vault to be unsealed and record an audit entry.
type KvUseCase interface {
	// Write stores a new version of path. cas, when non-nil, must equal the
	// current version (0 means "create only"); paths with CasRequired set
	// refuse writes without cas.
	Write(ctx context.Context, path string, data map[string]any, cas *uint) (*kvDomain.SecretMetadata, error)

	// Read decrypts a version of path; version 0 means the current version.
	// Reading a destroyed version fails with not-found.
	Read(ctx context.Context, path string, version uint) (*ReadResult, error)

	// Delete soft-deletes the given versions; ciphertexts are retained.
	Delete(ctx context.Context, path string, versions []uint) error

	// Undelete restores soft-deleted versions that are not destroyed.
	Undelete(ctx context.Context, path string, versions []uint) error

	// Destroy permanently erases the given versions' ciphertexts.
	Destroy(ctx context.Context, path string, versions []uint) error

	// List returns the immediate child keys under prefix; subtrees collapse
	// into a single "name/" entry.
	List(ctx context.Context, prefix string) ([]string, error)

	// Configure updates a path's retention and check-and-set settings.
	// maxVersions of 0 leaves the current cap unchanged.
	Configure(ctx context.Context, path string, maxVersions uint, casRequired bool) (*kvDomain.SecretMetadata, error)
}
