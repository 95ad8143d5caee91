package domain_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/usp/internal/crypto/domain"
	apperrors "github.com/allisson/usp/internal/errors"
)

func TestMasterKeyCell(t *testing.T) {
	t.Run("SealedByDefault", func(t *testing.T) {
		cell := domain.NewMasterKeyCell()

		assert.True(t, cell.Sealed())
		_, _, err := cell.Copy()
		assert.ErrorIs(t, err, apperrors.ErrVaultSealed)
	})

	t.Run("SetAndCopy", func(t *testing.T) {
		cell := domain.NewMasterKeyCell()
		key := bytes.Repeat([]byte{0xAB}, domain.MasterKeySize)

		require.NoError(t, cell.Set(key, 2))

		copied, version, err := cell.Copy()
		require.NoError(t, err)
		assert.Equal(t, key, copied)
		assert.Equal(t, uint(2), version)
		assert.False(t, cell.Sealed())
	})

	t.Run("CopyIsIndependent", func(t *testing.T) {
		cell := domain.NewMasterKeyCell()
		key := bytes.Repeat([]byte{0x01}, domain.MasterKeySize)
		require.NoError(t, cell.Set(key, 1))

		copied, _, err := cell.Copy()
		require.NoError(t, err)
		domain.Zero(copied)

		again, _, err := cell.Copy()
		require.NoError(t, err)
		assert.Equal(t, key, again)
	})

	t.Run("ClearSeals", func(t *testing.T) {
		cell := domain.NewMasterKeyCell()
		require.NoError(t, cell.Set(bytes.Repeat([]byte{0x02}, domain.MasterKeySize), 1))

		cell.Clear()

		assert.True(t, cell.Sealed())
		_, _, err := cell.Copy()
		assert.ErrorIs(t, err, apperrors.ErrVaultSealed)
	})

	t.Run("Error_WrongKeySize", func(t *testing.T) {
		cell := domain.NewMasterKeyCell()

		err := cell.Set([]byte("short"), 1)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}
