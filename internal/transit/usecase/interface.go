// Package usecase implements the transit encryption engine: named versioned
// keys offering encryption-as-a-service, signatures, HMAC, data key
// generation, and batch operations, without ever exposing key material.
package usecase

import (
	"context"

	"github.com/google/uuid"

	transitDomain "github.com/allisson/usp/internal/transit/domain"
)

// TransitKeyRepository defines named transit key persistence.
type TransitKeyRepository interface {
	Create(ctx context.Context, key *transitDomain.TransitKey) error
	GetByName(ctx context.Context, name string) (*transitDomain.TransitKey, error)
	Update(ctx context.Context, key *transitDomain.TransitKey) error
	Delete(ctx context.Context, keyID uuid.UUID) error
	List(ctx context.Context) ([]string, error)
}

// TransitKeyVersionRepository defines key version persistence.
type TransitKeyVersionRepository interface {
	Create(ctx context.Context, version *transitDomain.TransitKeyVersion) error
	Get(ctx context.Context, keyID uuid.UUID, version uint) (*transitDomain.TransitKeyVersion, error)
}

// KeyConfigUpdate carries optional transit key configuration changes; nil
// fields are left untouched.
type KeyConfigUpdate struct {
	MinDecryptionVersion *uint
	MinEncryptionVersion *uint
	DeletionAllowed      *bool
	Exportable           *bool
}

// TransitUseCase is the transit engine. All operations require the vault to
// be unsealed and record an audit entry.
type TransitUseCase interface {
	// Create registers a new named key and generates version 1 of its
	// material. Name collisions fail with already-exists.
	Create(ctx context.Context, name string, keyType transitDomain.KeyType, derivation, exportable bool) (*transitDomain.TransitKey, error)

	// EnsureKey creates a symmetric key with default settings if the name
	// is unknown. Used by engines that lazily provision their own key.
	EnsureKey(ctx context.Context, name string) error

	// Get returns key configuration; key material is never included.
	Get(ctx context.Context, name string) (*transitDomain.TransitKey, error)

	// List returns all key names.
	List(ctx context.Context) ([]string, error)

	// Rotate generates a new key version; older versions keep decrypting
	// until the minimum decryption version is raised past them.
	Rotate(ctx context.Context, name string) (*transitDomain.TransitKey, error)

	// UpdateConfig adjusts the version window and policy flags.
	UpdateConfig(ctx context.Context, name string, update KeyConfigUpdate) (*transitDomain.TransitKey, error)

	// Delete removes a key and its versions; refused unless the key's
	// DeletionAllowed flag is set.
	Delete(ctx context.Context, name string) error

	// Encrypt seals plaintext under the named key's newest allowed version.
	// context is bound as AAD, and selects the subkey for derived keys.
	Encrypt(ctx context.Context, name string, plaintext, context []byte) (string, error)

	// Decrypt opens an envelope, honoring the key's minimum decryption version.
	Decrypt(ctx context.Context, name string, envelope string, context []byte) ([]byte, error)

	// Rewrap re-encrypts an envelope under the newest key version without
	// returning the plaintext.
	Rewrap(ctx context.Context, name string, envelope string, context []byte) (string, error)

	// Sign produces a signature envelope over input with an asymmetric key.
	Sign(ctx context.Context, name string, input []byte, alg transitDomain.HashAlgorithm) (string, error)

	// Verify checks a signature envelope against the version it names.
	Verify(ctx context.Context, name string, input []byte, signature string, alg transitDomain.HashAlgorithm) (bool, error)

	// Hmac produces an HMAC envelope over input with a symmetric key.
	Hmac(ctx context.Context, name string, input []byte, alg transitDomain.HashAlgorithm) (string, error)

	// GenerateDataKey returns a fresh random key (128 or 256 bits) in the
	// clear plus its encryption under the named key.
	GenerateDataKey(ctx context.Context, name string, bits int, context []byte) (*transitDomain.DataKey, error)

	// BatchEncrypt encrypts up to MaxBatchSize items; each item succeeds or
	// fails independently and results preserve input order.
	BatchEncrypt(ctx context.Context, name string, items []transitDomain.BatchItem) ([]transitDomain.BatchResult, error)

	// BatchDecrypt is the decryption counterpart of BatchEncrypt.
	BatchDecrypt(ctx context.Context, name string, items []transitDomain.BatchItem) ([]transitDomain.BatchResult, error)

	// ExportKey returns a version's raw key material; refused unless the
	// key was created exportable.
	ExportKey(ctx context.Context, name string, version uint) ([]byte, error)
}
