package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/usp/internal/errors"
	transitDomain "github.com/allisson/usp/internal/transit/domain"
)

func TestKeyOperations_Generate(t *testing.T) {
	ops := NewKeyOperations()

	t.Run("Success_Symmetric", func(t *testing.T) {
		material, publicKey, err := ops.Generate(transitDomain.KeyTypeAES256GCM)

		require.NoError(t, err)
		assert.Len(t, material, 32)
		assert.Nil(t, publicKey)
	})

	t.Run("Success_AsymmetricTypes", func(t *testing.T) {
		for _, keyType := range []transitDomain.KeyType{
			transitDomain.KeyTypeRSA2048,
			transitDomain.KeyTypeECDSAP256,
			transitDomain.KeyTypeEd25519,
		} {
			material, publicKey, err := ops.Generate(keyType)

			require.NoError(t, err, "type %s", keyType)
			assert.NotEmpty(t, material)
			assert.Contains(t, string(publicKey), "BEGIN PUBLIC KEY")
		}
	})

	t.Run("Error_UnknownType", func(t *testing.T) {
		_, _, err := ops.Generate("dsa-1024")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrNotSupported)
	})
}

func TestKeyOperations_SignVerify(t *testing.T) {
	ops := NewKeyOperations()
	input := []byte("payload to sign")

	for _, keyType := range []transitDomain.KeyType{
		transitDomain.KeyTypeRSA2048,
		transitDomain.KeyTypeECDSAP256,
		transitDomain.KeyTypeEd25519,
	} {
		t.Run("Success_RoundTrip_"+string(keyType), func(t *testing.T) {
			material, publicKey, err := ops.Generate(keyType)
			require.NoError(t, err)

			signature, err := ops.Sign(keyType, material, input, transitDomain.HashSHA256)
			require.NoError(t, err)

			valid, err := ops.Verify(keyType, publicKey, input, signature, transitDomain.HashSHA256)
			require.NoError(t, err)
			assert.True(t, valid)

			valid, err = ops.Verify(keyType, publicKey, []byte("other payload"), signature, transitDomain.HashSHA256)
			require.NoError(t, err)
			assert.False(t, valid)
		})
	}

	t.Run("Success_SHA512", func(t *testing.T) {
		material, publicKey, err := ops.Generate(transitDomain.KeyTypeRSA2048)
		require.NoError(t, err)

		signature, err := ops.Sign(transitDomain.KeyTypeRSA2048, material, input, transitDomain.HashSHA512)
		require.NoError(t, err)

		valid, err := ops.Verify(transitDomain.KeyTypeRSA2048, publicKey, input, signature, transitDomain.HashSHA512)
		require.NoError(t, err)
		assert.True(t, valid)

		// A sha2-256 verification of a sha2-512 signature fails cleanly.
		valid, err = ops.Verify(transitDomain.KeyTypeRSA2048, publicKey, input, signature, transitDomain.HashSHA256)
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("Error_SymmetricCannotSign", func(t *testing.T) {
		material, _, err := ops.Generate(transitDomain.KeyTypeAES256GCM)
		require.NoError(t, err)

		_, err = ops.Sign(transitDomain.KeyTypeAES256GCM, material, input, transitDomain.HashSHA256)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrNotSupported)
	})

	t.Run("Error_UnsupportedHash", func(t *testing.T) {
		material, _, err := ops.Generate(transitDomain.KeyTypeEd25519)
		require.NoError(t, err)

		_, err = ops.Sign(transitDomain.KeyTypeEd25519, material, input, "sha1")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrNotSupported)
	})
}

func TestKeyOperations_Hmac(t *testing.T) {
	ops := NewKeyOperations()

	t.Run("Success_Deterministic", func(t *testing.T) {
		material, _, err := ops.Generate(transitDomain.KeyTypeAES256GCM)
		require.NoError(t, err)

		first, err := ops.Hmac(material, []byte("input"), transitDomain.HashSHA256)
		require.NoError(t, err)
		second, err := ops.Hmac(material, []byte("input"), transitDomain.HashSHA256)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, first, 32)

		wide, err := ops.Hmac(material, []byte("input"), transitDomain.HashSHA512)
		require.NoError(t, err)
		assert.Len(t, wide, 64)
	})
}

func TestKeyOperations_DeriveKey(t *testing.T) {
	ops := NewKeyOperations()

	t.Run("Success_ContextSeparation", func(t *testing.T) {
		material, _, err := ops.Generate(transitDomain.KeyTypeAES256GCM)
		require.NoError(t, err)

		first, err := ops.DeriveKey(material, []byte("tenant-a"))
		require.NoError(t, err)
		second, err := ops.DeriveKey(material, []byte("tenant-b"))
		require.NoError(t, err)
		again, err := ops.DeriveKey(material, []byte("tenant-a"))
		require.NoError(t, err)

		assert.Len(t, first, 32)
		assert.NotEqual(t, first, second)
		assert.Equal(t, first, again)
	})

	t.Run("Error_EmptyContext", func(t *testing.T) {
		_, err := ops.DeriveKey([]byte("material"), nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}
