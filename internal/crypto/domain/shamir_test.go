package domain_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/usp/internal/crypto/domain"
	apperrors "github.com/allisson/usp/internal/errors"
)

func randomSecret(t *testing.T) []byte {
	t.Helper()
	secret := make([]byte, domain.ShamirSecretSize)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	return secret
}

func TestShamirSplit(t *testing.T) {
	t.Run("Success_SplitProducesDistinctShares", func(t *testing.T) {
		secret := randomSecret(t)

		shares, err := domain.ShamirSplit(secret, 5, 3)

		require.NoError(t, err)
		require.Len(t, shares, 5)
		seen := map[byte]bool{}
		for _, share := range shares {
			assert.Len(t, share, domain.ShamirShareSize)
			assert.False(t, seen[share[0]], "duplicate x-coordinate")
			seen[share[0]] = true
			assert.NotZero(t, share[0])
		}
	})

	t.Run("Success_ThresholdOne", func(t *testing.T) {
		secret := randomSecret(t)

		shares, err := domain.ShamirSplit(secret, 1, 1)

		require.NoError(t, err)
		require.Len(t, shares, 1)
		// With threshold 1 the polynomial is constant: y-bytes equal the secret.
		assert.Equal(t, secret, shares[0][1:])
	})

	t.Run("Error_InvalidSecretSize", func(t *testing.T) {
		_, err := domain.ShamirSplit([]byte("short"), 5, 3)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_ThresholdGreaterThanShares", func(t *testing.T) {
		_, err := domain.ShamirSplit(randomSecret(t), 2, 3)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_ZeroThreshold", func(t *testing.T) {
		_, err := domain.ShamirSplit(randomSecret(t), 5, 0)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestShamirCombine(t *testing.T) {
	t.Run("Success_ExactThreshold", func(t *testing.T) {
		secret := randomSecret(t)
		shares, err := domain.ShamirSplit(secret, 5, 3)
		require.NoError(t, err)

		recovered, err := domain.ShamirCombine(shares[:3])

		require.NoError(t, err)
		assert.Equal(t, secret, recovered)
	})

	t.Run("Success_AnyThresholdSubset", func(t *testing.T) {
		secret := randomSecret(t)
		shares, err := domain.ShamirSplit(secret, 5, 3)
		require.NoError(t, err)

		subsets := [][]int{{0, 1, 2}, {0, 2, 4}, {1, 3, 4}, {2, 3, 4}}
		for _, subset := range subsets {
			picked := make([][]byte, 0, len(subset))
			for _, i := range subset {
				picked = append(picked, shares[i])
			}
			recovered, err := domain.ShamirCombine(picked)
			require.NoError(t, err)
			assert.Equal(t, secret, recovered)
		}
	})

	t.Run("Success_MoreThanThreshold", func(t *testing.T) {
		secret := randomSecret(t)
		shares, err := domain.ShamirSplit(secret, 5, 3)
		require.NoError(t, err)

		recovered, err := domain.ShamirCombine(shares)

		require.NoError(t, err)
		assert.Equal(t, secret, recovered)
	})

	t.Run("BelowThreshold_YieldsWrongSecret", func(t *testing.T) {
		secret := randomSecret(t)
		shares, err := domain.ShamirSplit(secret, 5, 3)
		require.NoError(t, err)

		recovered, err := domain.ShamirCombine(shares[:2])

		// The math succeeds but the value is not the secret; the seal
		// manager catches this via master-key verification.
		require.NoError(t, err)
		assert.NotEqual(t, secret, recovered)
	})

	t.Run("Error_DuplicateShares", func(t *testing.T) {
		shares, err := domain.ShamirSplit(randomSecret(t), 5, 3)
		require.NoError(t, err)

		_, err = domain.ShamirCombine([][]byte{shares[0], shares[0], shares[1]})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_MalformedShare", func(t *testing.T) {
		_, err := domain.ShamirCombine([][]byte{{1, 2, 3}})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_ZeroXCoordinate", func(t *testing.T) {
		share := make([]byte, domain.ShamirShareSize)

		_, err := domain.ShamirCombine([][]byte{share})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestShareEncoding(t *testing.T) {
	t.Run("Success_RoundTrip", func(t *testing.T) {
		shares, err := domain.ShamirSplit(randomSecret(t), 3, 2)
		require.NoError(t, err)

		encoded := domain.EncodeShare(shares[0])
		decoded, err := domain.DecodeShare(encoded)

		require.NoError(t, err)
		assert.Equal(t, shares[0], decoded)
	})

	t.Run("Error_InvalidBase64", func(t *testing.T) {
		_, err := domain.DecodeShare("not-base64!!!")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_WrongLength", func(t *testing.T) {
		_, err := domain.DecodeShare("dGVzdA==")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}
