package domain

import (
	"sync"

	apperrors "github.com/allisson/usp/internal/errors"
)

// MasterKeySize is the required master key length in bytes (AES-256).
const MasterKeySize = 32

// MasterKeyCell holds the unsealed master key in memory.
//
// The cell is the single in-process home of the key: the seal manager fills
// it on a successful unseal and zeroizes it on seal or on fatal crypto
// errors. Readers copy the bytes out under a short read hold so no caller
// ever retains a reference into the cell's buffer, and the copy can be
// zeroed independently after the AES-GCM call it served.
//
// A sealed (empty) cell fails every read with ErrVaultSealed.
type MasterKeyCell struct {
	mu      sync.RWMutex
	key     []byte
	version uint
}

// NewMasterKeyCell creates an empty (sealed) cell.
func NewMasterKeyCell() *MasterKeyCell {
	return &MasterKeyCell{}
}

// Set installs the master key and its version, zeroizing any previous key.
// The cell takes ownership of its own copy; the caller should zero its copy.
func (c *MasterKeyCell) Set(key []byte, version uint) error {
	if len(key) != MasterKeySize {
		return apperrors.Wrapf(
			apperrors.ErrInvalidInput,
			"master key must be %d bytes, got %d", MasterKeySize, len(key),
		)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	Zero(c.key)
	c.key = make([]byte, MasterKeySize)
	copy(c.key, key)
	c.version = version
	return nil
}

// Copy returns a fresh copy of the master key and its version. The caller
// must zero the copy when done. Fails with ErrVaultSealed when the cell is
// empty.
func (c *MasterKeyCell) Copy() ([]byte, uint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.key == nil {
		return nil, 0, apperrors.ErrVaultSealed
	}

	out := make([]byte, MasterKeySize)
	copy(out, c.key)
	return out, c.version, nil
}

// Sealed reports whether the cell is empty.
func (c *MasterKeyCell) Sealed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key == nil
}

// Clear zeroizes the key and empties the cell, returning it to the sealed
// state.
func (c *MasterKeyCell) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	Zero(c.key)
	c.key = nil
	c.version = 0
}
