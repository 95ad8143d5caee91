// Package domain defines the versioned key-value secret model. A path owns
// one metadata row tracking the current version and retention policy, plus
// one row per written version. Updates never mutate old versions; each write
// inserts a new row with an incremented version number.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/usp/internal/errors"
)

// DefaultMaxVersions is the number of active versions retained per path
// before the oldest are soft-deleted.
const DefaultMaxVersions = 10

// EncryptionKeyName is the transit key all stored secret data is encrypted
// with. It is created lazily on the first write.
const EncryptionKeyName = "secret-encryption-key"

// SecretMetadata is the per-path row tracking versioning state.
type SecretMetadata struct {
	ID uuid.UUID
	// Path is the normalized logical key (no leading/trailing/duplicate slashes).
	Path string
	// CurrentVersion is the highest version ever written, even if that
	// version has since been deleted or destroyed.
	CurrentVersion uint
	// MaxVersions caps active versions; the oldest are soft-deleted on overflow.
	MaxVersions uint
	// CasRequired forces every write to carry a check-and-set version.
	CasRequired bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SecretVersion is one immutable written version of a path.
type SecretVersion struct {
	ID         uuid.UUID
	MetadataID uuid.UUID
	Version    uint
	// EncryptedData is the transit-encrypted JSON payload. Empty once destroyed.
	EncryptedData string
	CreatedAt     time.Time
	// DeletedAt marks a soft delete; the ciphertext is retained and the
	// version can be undeleted.
	DeletedAt *time.Time
	// DestroyedAt marks a hard delete; the ciphertext is gone for good.
	DestroyedAt *time.Time
}

// Deleted reports whether the version is soft-deleted (or destroyed).
func (v *SecretVersion) Deleted() bool {
	return v.DeletedAt != nil
}

// Destroyed reports whether the version's key material has been erased.
func (v *SecretVersion) Destroyed() bool {
	return v.DestroyedAt != nil
}

// NormalizePath strips leading and trailing slashes and collapses duplicate
// slashes. An empty result is invalid.
func NormalizePath(path string) (string, error) {
	segments := make([]string, 0, 8)
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		segments = append(segments, segment)
	}
	if len(segments) == 0 {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, "secret path must not be empty")
	}
	return strings.Join(segments, "/"), nil
}

// ChildKeys reduces full paths under prefix to their immediate children.
// Paths with deeper segments collapse into a single "name/" folder entry.
// prefix must be normalized or empty (the root).
func ChildKeys(prefix string, paths []string) []string {
	seen := make(map[string]struct{})
	keys := make([]string, 0, len(paths))

	for _, path := range paths {
		rest := path
		if prefix != "" {
			if !strings.HasPrefix(path, prefix+"/") {
				continue
			}
			rest = strings.TrimPrefix(path, prefix+"/")
		}

		key := rest
		if idx := strings.Index(rest, "/"); idx >= 0 {
			key = rest[:idx+1]
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	return keys
}
