package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/usp/internal/errors"
	kvDomain "github.com/allisson/usp/internal/kv/domain"
)

func TestPostgreSQLSecretMetadataRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CreateAndGet", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() {
			_ = db.Close()
		}()
		repo := NewPostgreSQLSecretMetadataRepository(db)

		now := time.Now().UTC()
		metadata := &kvDomain.SecretMetadata{
			ID:             uuid.Must(uuid.NewV7()),
			Path:           "prod/db",
			CurrentVersion: 1,
			MaxVersions:    kvDomain.DefaultMaxVersions,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO secret_metadata")).
			WithArgs(
				metadata.ID, metadata.Path, metadata.CurrentVersion,
				metadata.MaxVersions, metadata.CasRequired, now, now,
			).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, path, current_version")).
			WithArgs("prod/db").
			WillReturnRows(
				sqlmock.NewRows([]string{
					"id", "path", "current_version", "max_versions",
					"cas_required", "created_at", "updated_at",
				}).AddRow(metadata.ID, "prod/db", 1, 10, false, now, now),
			)

		require.NoError(t, repo.Create(ctx, metadata))
		got, err := repo.GetByPath(ctx, "prod/db")

		require.NoError(t, err)
		assert.Equal(t, metadata.ID, got.ID)
		assert.Equal(t, uint(1), got.CurrentVersion)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_GetNotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() {
			_ = db.Close()
		}()
		repo := NewPostgreSQLSecretMetadataRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, path, current_version")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "path", "current_version", "max_versions",
				"cas_required", "created_at", "updated_at",
			}))

		_, err = repo.GetByPath(ctx, "missing")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_ListPaths", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() {
			_ = db.Close()
		}()
		repo := NewPostgreSQLSecretMetadataRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT path FROM secret_metadata WHERE path LIKE")).
			WithArgs("prod/%").
			WillReturnRows(
				sqlmock.NewRows([]string{"path"}).
					AddRow("prod/api/key").
					AddRow("prod/db"),
			)

		paths, err := repo.ListPaths(ctx, "prod")

		require.NoError(t, err)
		assert.Equal(t, []string{"prod/api/key", "prod/db"}, paths)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgreSQLSecretVersionRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_GetActiveVersion", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() {
			_ = db.Close()
		}()
		repo := NewPostgreSQLSecretVersionRepository(db)

		metadataID := uuid.Must(uuid.NewV7())
		versionID := uuid.Must(uuid.NewV7())
		now := time.Now().UTC()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, metadata_id, version, encrypted_data")).
			WithArgs(metadataID, 2).
			WillReturnRows(
				sqlmock.NewRows([]string{
					"id", "metadata_id", "version", "encrypted_data",
					"created_at", "deleted_at", "destroyed_at",
				}).AddRow(versionID, metadataID, 2, "vault:v1:a:b:c", now, nil, nil),
			)

		version, err := repo.Get(ctx, metadataID, 2)

		require.NoError(t, err)
		assert.Equal(t, uint(2), version.Version)
		assert.False(t, version.Deleted())
		assert.False(t, version.Destroyed())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_Destroy", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() {
			_ = db.Close()
		}()
		repo := NewPostgreSQLSecretVersionRepository(db)

		versionID := uuid.Must(uuid.NewV7())
		now := time.Now().UTC()

		mock.ExpectExec(regexp.QuoteMeta("UPDATE secret_versions")).
			WithArgs(now, versionID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Destroy(ctx, versionID, now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_SetDeletedOnDestroyedVersion", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() {
			_ = db.Close()
		}()
		repo := NewPostgreSQLSecretVersionRepository(db)

		versionID := uuid.Must(uuid.NewV7())
		now := time.Now().UTC()

		// The guard clause skips rows with destroyed_at set.
		mock.ExpectExec(regexp.QuoteMeta("UPDATE secret_versions SET deleted_at")).
			WithArgs(&now, versionID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = repo.SetDeleted(ctx, versionID, &now)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
