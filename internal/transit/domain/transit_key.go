// Package domain defines the transit encryption key model: named keys with
// monotonically increasing versions, symmetric and asymmetric types, and
// version floors controlling which ciphertexts may still be opened.
package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/usp/internal/errors"
)

// KeyType identifies the cryptographic key type of a transit key.
type KeyType string

const (
	KeyTypeAES256GCM KeyType = "aes256-gcm"
	KeyTypeRSA2048   KeyType = "rsa-2048"
	KeyTypeRSA4096   KeyType = "rsa-4096"
	KeyTypeECDSAP256 KeyType = "ecdsa-p256"
	KeyTypeEd25519   KeyType = "ed25519"
)

// KeyTypes lists every supported key type.
var KeyTypes = []KeyType{
	KeyTypeAES256GCM,
	KeyTypeRSA2048,
	KeyTypeRSA4096,
	KeyTypeECDSAP256,
	KeyTypeEd25519,
}

// Valid reports whether the key type is supported.
func (k KeyType) Valid() bool {
	for _, t := range KeyTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Symmetric reports whether the key type supports encrypt/decrypt/hmac.
func (k KeyType) Symmetric() bool {
	return k == KeyTypeAES256GCM
}

// Asymmetric reports whether the key type supports sign/verify.
func (k KeyType) Asymmetric() bool {
	switch k {
	case KeyTypeRSA2048, KeyTypeRSA4096, KeyTypeECDSAP256, KeyTypeEd25519:
		return true
	default:
		return false
	}
}

// HashAlgorithm names a hash used for signatures and HMACs.
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "sha2-256"
	HashSHA512 HashAlgorithm = "sha2-512"
)

// ParseHashAlgorithm validates a hash algorithm name. Anything outside the
// supported set is refused.
func ParseHashAlgorithm(name string) (HashAlgorithm, error) {
	switch HashAlgorithm(name) {
	case HashSHA256, HashSHA512:
		return HashAlgorithm(name), nil
	default:
		return "", apperrors.Wrapf(apperrors.ErrNotSupported, "unsupported hash algorithm %q", name)
	}
}

// TransitKey is a named key. Key material lives in TransitKeyVersion rows;
// this row tracks the version window and policy flags.
type TransitKey struct {
	ID   uuid.UUID
	Name string
	Type KeyType
	// LatestVersion is the newest version; encryption and signing use it.
	LatestVersion uint
	// MinDecryptionVersion refuses ciphertexts sealed under older versions.
	MinDecryptionVersion uint
	// MinEncryptionVersion, when non-zero, floors the version used to encrypt.
	MinEncryptionVersion uint
	// DeletionAllowed gates the delete operation.
	DeletionAllowed bool
	// Exportable allows raw key material to leave the engine.
	Exportable bool
	// Derivation derives a per-context subkey via HKDF; context becomes required.
	Derivation bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TransitKeyVersion holds one version's key material, wrapped by the master
// key. Asymmetric versions also store the public key in the clear (PKIX PEM).
type TransitKeyVersion struct {
	ID                   uuid.UUID
	KeyID                uuid.UUID
	Version              uint
	EncryptedKeyMaterial string
	PublicKey            []byte
	CreatedAt            time.Time
}

// MaxBatchSize caps batch encrypt/decrypt requests.
const MaxBatchSize = 1000

// BatchItem is one input of a batch encrypt or decrypt request. Plaintext is
// set for encryption, Ciphertext for decryption.
type BatchItem struct {
	Plaintext  []byte
	Ciphertext string
	Context    []byte
}

// BatchResult is the per-item outcome; input order is preserved. Error is
// empty on success.
type BatchResult struct {
	Plaintext  []byte
	Ciphertext string
	Error      string
}

// DataKey is a fresh random key returned in the clear together with its
// transit-encrypted form, for envelope encryption by callers.
type DataKey struct {
	Plaintext  []byte
	Ciphertext string
}
