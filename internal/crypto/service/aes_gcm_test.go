package service

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNewAESGCM(t *testing.T) {
	t.Run("Success_ValidKey", func(t *testing.T) {
		cipher, err := NewAESGCM(testKey(t))

		require.NoError(t, err)
		assert.NotNil(t, cipher)
	})

	t.Run("Error_WrongKeySize", func(t *testing.T) {
		_, err := NewAESGCM([]byte("too short"))

		require.Error(t, err)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
	})
}

func TestAESGCMCipher_EncryptDecrypt(t *testing.T) {
	cipher, err := NewAESGCM(testKey(t))
	require.NoError(t, err)

	t.Run("Success_RoundTrip", func(t *testing.T) {
		plaintext := []byte("hello")

		ciphertext, tag, nonce, err := cipher.Encrypt(plaintext, nil)
		require.NoError(t, err)
		assert.Len(t, nonce, cryptoDomain.NonceSize)
		assert.Len(t, tag, cryptoDomain.TagSize)
		assert.Len(t, ciphertext, len(plaintext))

		decrypted, err := cipher.Decrypt(ciphertext, tag, nonce, nil)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("Success_RoundTripWithAAD", func(t *testing.T) {
		plaintext := []byte("bound to a context")
		aad := []byte("tenant-42")

		ciphertext, tag, nonce, err := cipher.Encrypt(plaintext, aad)
		require.NoError(t, err)

		decrypted, err := cipher.Decrypt(ciphertext, tag, nonce, aad)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("Error_WrongAAD", func(t *testing.T) {
		ciphertext, tag, nonce, err := cipher.Encrypt([]byte("data"), []byte("ctx-a"))
		require.NoError(t, err)

		_, err = cipher.Decrypt(ciphertext, tag, nonce, []byte("ctx-b"))

		require.Error(t, err)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("Error_TamperedCiphertext", func(t *testing.T) {
		ciphertext, tag, nonce, err := cipher.Encrypt([]byte("data"), nil)
		require.NoError(t, err)
		ciphertext[0] ^= 0xFF

		_, err = cipher.Decrypt(ciphertext, tag, nonce, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("Error_TamperedTag", func(t *testing.T) {
		ciphertext, tag, nonce, err := cipher.Encrypt([]byte("data"), nil)
		require.NoError(t, err)
		tag[0] ^= 0xFF

		_, err = cipher.Decrypt(ciphertext, tag, nonce, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("NoncesAreUnique", func(t *testing.T) {
		_, _, nonce1, err := cipher.Encrypt([]byte("data"), nil)
		require.NoError(t, err)
		_, _, nonce2, err := cipher.Encrypt([]byte("data"), nil)
		require.NoError(t, err)

		assert.False(t, bytes.Equal(nonce1, nonce2))
	})
}
