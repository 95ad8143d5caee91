package service

import (
	"context"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
)

// Barrier encrypts and decrypts arbitrary blobs against the unsealed master
// key, producing versioned self-describing ciphertext envelopes. Every
// stored secret, wrapped transit key, and encrypted audit detail passes
// through here.
//
// All operations fail with ErrVaultSealed while the master key cell is
// empty. The optional context is fed as AAD, binding the ciphertext to its
// caller-supplied context without encoding it in the envelope.
type Barrier interface {
	// Encrypt seals plaintext under the current master key version.
	Encrypt(ctx context.Context, plaintext, aad []byte) (string, error)

	// Decrypt opens an envelope produced by Encrypt. The envelope's version
	// field names the master key version used at encryption time.
	Decrypt(ctx context.Context, envelope string, aad []byte) ([]byte, error)

	// Rewrap decrypts and re-encrypts an envelope under the latest master
	// key version without exposing the plaintext to the caller.
	Rewrap(ctx context.Context, envelope string, aad []byte) (string, error)

	// KeyVersion returns the current master key version, or ErrVaultSealed.
	KeyVersion() (uint, error)
}

// barrier implements Barrier against a MasterKeyCell.
type barrier struct {
	cell *cryptoDomain.MasterKeyCell
}

// NewBarrier creates a Barrier reading from the given master key cell.
func NewBarrier(cell *cryptoDomain.MasterKeyCell) Barrier {
	return &barrier{cell: cell}
}

func (b *barrier) Encrypt(_ context.Context, plaintext, aad []byte) (string, error) {
	key, version, err := b.cell.Copy()
	if err != nil {
		return "", err
	}
	defer cryptoDomain.Zero(key)

	cipher, err := NewAESGCM(key)
	if err != nil {
		return "", err
	}

	ciphertext, tag, nonce, err := cipher.Encrypt(plaintext, aad)
	if err != nil {
		return "", err
	}

	envelope := cryptoDomain.Envelope{
		Version:    version,
		Nonce:      nonce,
		Tag:        tag,
		Ciphertext: ciphertext,
	}
	return envelope.String(), nil
}

func (b *barrier) Decrypt(_ context.Context, envelope string, aad []byte) ([]byte, error) {
	parsed, err := cryptoDomain.ParseEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	key, _, err := b.cell.Copy()
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(key)

	cipher, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}

	return cipher.Decrypt(parsed.Ciphertext, parsed.Tag, parsed.Nonce, aad)
}

func (b *barrier) Rewrap(ctx context.Context, envelope string, aad []byte) (string, error) {
	plaintext, err := b.Decrypt(ctx, envelope, aad)
	if err != nil {
		return "", err
	}
	defer cryptoDomain.Zero(plaintext)

	return b.Encrypt(ctx, plaintext, aad)
}

func (b *barrier) KeyVersion() (uint, error) {
	key, version, err := b.cell.Copy()
	if err != nil {
		return 0, err
	}
	cryptoDomain.Zero(key)
	return version, nil
}
