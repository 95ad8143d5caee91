package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	apperrors "github.com/allisson/usp/internal/errors"
)

func unsealedCell(t *testing.T, version uint) *cryptoDomain.MasterKeyCell {
	t.Helper()
	cell := cryptoDomain.NewMasterKeyCell()
	require.NoError(t, cell.Set(testKey(t), version))
	return cell
}

func TestBarrier_EncryptDecrypt(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RoundTrip", func(t *testing.T) {
		barrier := NewBarrier(unsealedCell(t, 1))

		envelope, err := barrier.Encrypt(ctx, []byte("hello"), nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(envelope, "vault:v1:"))

		plaintext, err := barrier.Decrypt(ctx, envelope, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), plaintext)
	})

	t.Run("Success_ContextAsAAD", func(t *testing.T) {
		barrier := NewBarrier(unsealedCell(t, 1))

		envelope, err := barrier.Encrypt(ctx, []byte("bound"), []byte("ctx"))
		require.NoError(t, err)

		_, err = barrier.Decrypt(ctx, envelope, []byte("other"))
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrIntegrity)

		plaintext, err := barrier.Decrypt(ctx, envelope, []byte("ctx"))
		require.NoError(t, err)
		assert.Equal(t, []byte("bound"), plaintext)
	})

	t.Run("VersionTracksCell", func(t *testing.T) {
		barrier := NewBarrier(unsealedCell(t, 7))

		envelope, err := barrier.Encrypt(ctx, []byte("x"), nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(envelope, "vault:v7:"))

		version, err := barrier.KeyVersion()
		require.NoError(t, err)
		assert.Equal(t, uint(7), version)
	})

	t.Run("Error_SealedCell", func(t *testing.T) {
		barrier := NewBarrier(cryptoDomain.NewMasterKeyCell())

		_, err := barrier.Encrypt(ctx, []byte("x"), nil)
		assert.ErrorIs(t, err, apperrors.ErrVaultSealed)

		_, err = barrier.Decrypt(ctx, "vault:v1:AAAAAAAAAAAAAAAA:AAAAAAAAAAAAAAAAAAAAAA==:AA==", nil)
		assert.ErrorIs(t, err, apperrors.ErrVaultSealed)

		_, err = barrier.KeyVersion()
		assert.ErrorIs(t, err, apperrors.ErrVaultSealed)
	})

	t.Run("Error_MalformedEnvelope", func(t *testing.T) {
		barrier := NewBarrier(unsealedCell(t, 1))

		_, err := barrier.Decrypt(ctx, "not-an-envelope", nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	})
}

func TestBarrier_Rewrap(t *testing.T) {
	ctx := context.Background()
	cell := unsealedCell(t, 1)
	barrier := NewBarrier(cell)

	envelope, err := barrier.Encrypt(ctx, []byte("rotate me"), nil)
	require.NoError(t, err)

	// Simulate a master key version bump (same key material, new version).
	key, _, err := cell.Copy()
	require.NoError(t, err)
	require.NoError(t, cell.Set(key, 2))
	cryptoDomain.Zero(key)

	rewrapped, err := barrier.Rewrap(ctx, envelope, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rewrapped, "vault:v2:"))

	plaintext, err := barrier.Decrypt(ctx, rewrapped, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("rotate me"), plaintext)
}
