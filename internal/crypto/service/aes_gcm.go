// Package service implements the cryptographic services of the platform:
// the AES-256-GCM cipher used by every encryption path, the KEK keeper that
// wraps the master key at rest, and the barrier encryption service that
// turns the unsealed master key into versioned self-describing ciphertexts.
package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	apperrors "github.com/allisson/usp/internal/errors"
)

// AESGCMCipher wraps AES-256-GCM with the tag split out of the sealed
// output, matching the ciphertext envelope layout (nonce, tag, and
// ciphertext are carried as separate fields).
//
// The cipher is stateless and safe for concurrent use; every encryption
// generates a fresh 12-byte nonce from the CSPRNG.
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCM creates an AES-256-GCM cipher. The key must be exactly 32 bytes.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	if len(key) != 32 {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create AES cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create GCM")
	}

	return &AESGCMCipher{aead: aead}, nil
}

// Encrypt seals plaintext with optional additional authenticated data.
// The AAD binds the ciphertext to its context: decryption with a different
// AAD fails authentication. Returns the ciphertext body, the 16-byte
// authentication tag, and the generated 12-byte nonce.
func (a *AESGCMCipher) Encrypt(plaintext, aad []byte) (ciphertext, tag, nonce []byte, err error) {
	nonce = make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, apperrors.Wrap(err, "failed to generate nonce")
	}

	sealed := a.aead.Seal(nil, nonce, plaintext, aad)
	split := len(sealed) - a.aead.Overhead()
	return sealed[:split], sealed[split:], nonce, nil
}

// Decrypt opens a ciphertext with its tag, nonce, and the AAD used at
// encryption time. The tag is verified before any plaintext is returned;
// a failure surfaces as ErrDecryptionFailed without further detail.
func (a *AESGCMCipher) Decrypt(ciphertext, tag, nonce, aad []byte) ([]byte, error) {
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := a.aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	return plaintext, nil
}
