// Package repository implements key-value secret persistence for PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	kvDomain "github.com/allisson/usp/internal/kv/domain"
)

// PostgreSQLSecretMetadataRepository implements per-path metadata
// persistence for PostgreSQL. Supports transaction-aware operations via
// database.GetTx.
type PostgreSQLSecretMetadataRepository struct {
	db *sql.DB
}

// NewPostgreSQLSecretMetadataRepository creates a repository bound to the given database.
func NewPostgreSQLSecretMetadataRepository(db *sql.DB) *PostgreSQLSecretMetadataRepository {
	return &PostgreSQLSecretMetadataRepository{db: db}
}

// Create inserts a new metadata row.
func (p *PostgreSQLSecretMetadataRepository) Create(
	ctx context.Context,
	metadata *kvDomain.SecretMetadata,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO secret_metadata (id, path, current_version, max_versions, cas_required, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(
		ctx,
		query,
		metadata.ID,
		metadata.Path,
		metadata.CurrentVersion,
		metadata.MaxVersions,
		metadata.CasRequired,
		metadata.CreatedAt,
		metadata.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create secret metadata")
	}

	return nil
}

// GetByPath retrieves metadata for a normalized path.
func (p *PostgreSQLSecretMetadataRepository) GetByPath(
	ctx context.Context,
	path string,
) (*kvDomain.SecretMetadata, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, path, current_version, max_versions, cas_required, created_at, updated_at
			  FROM secret_metadata WHERE path = $1`

	var metadata kvDomain.SecretMetadata
	err := querier.QueryRowContext(ctx, query, path).Scan(
		&metadata.ID,
		&metadata.Path,
		&metadata.CurrentVersion,
		&metadata.MaxVersions,
		&metadata.CasRequired,
		&metadata.CreatedAt,
		&metadata.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "secret metadata not found")
		}
		return nil, apperrors.Wrap(err, "failed to get secret metadata")
	}

	return &metadata, nil
}

// Update persists current version and retention settings.
func (p *PostgreSQLSecretMetadataRepository) Update(
	ctx context.Context,
	metadata *kvDomain.SecretMetadata,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secret_metadata
			  SET current_version = $1, max_versions = $2, cas_required = $3, updated_at = $4
			  WHERE id = $5`

	result, err := querier.ExecContext(
		ctx,
		query,
		metadata.CurrentVersion,
		metadata.MaxVersions,
		metadata.CasRequired,
		metadata.UpdatedAt,
		metadata.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update secret metadata")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated secret metadata")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "secret metadata not found")
	}

	return nil
}

// ListPaths returns normalized paths under prefix, ordered. An empty prefix
// lists everything.
func (p *PostgreSQLSecretMetadataRepository) ListPaths(
	ctx context.Context,
	prefix string,
) ([]string, error) {
	querier := database.GetTx(ctx, p.db)

	pattern := "%"
	if prefix != "" {
		pattern = prefix + "/%"
	}

	rows, err := querier.QueryContext(
		ctx,
		`SELECT path FROM secret_metadata WHERE path LIKE $1 ORDER BY path ASC`,
		pattern,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret paths")
	}
	defer func() {
		_ = rows.Close()
	}()

	paths := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan secret path")
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate secret paths")
	}

	return paths, nil
}

// PostgreSQLSecretVersionRepository implements secret version persistence
// for PostgreSQL.
type PostgreSQLSecretVersionRepository struct {
	db *sql.DB
}

// NewPostgreSQLSecretVersionRepository creates a repository bound to the given database.
func NewPostgreSQLSecretVersionRepository(db *sql.DB) *PostgreSQLSecretVersionRepository {
	return &PostgreSQLSecretVersionRepository{db: db}
}

// Create inserts a new version row.
func (p *PostgreSQLSecretVersionRepository) Create(
	ctx context.Context,
	version *kvDomain.SecretVersion,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO secret_versions (id, metadata_id, version, encrypted_data, created_at, deleted_at, destroyed_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(
		ctx,
		query,
		version.ID,
		version.MetadataID,
		version.Version,
		version.EncryptedData,
		version.CreatedAt,
		version.DeletedAt,
		version.DestroyedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create secret version")
	}

	return nil
}

// Get retrieves one version of a path.
func (p *PostgreSQLSecretVersionRepository) Get(
	ctx context.Context,
	metadataID uuid.UUID,
	version uint,
) (*kvDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, metadata_id, version, encrypted_data, created_at, deleted_at, destroyed_at
			  FROM secret_versions WHERE metadata_id = $1 AND version = $2`

	row := querier.QueryRowContext(ctx, query, metadataID, version)
	return scanVersion(row)
}

// List retrieves all versions of a path, oldest first.
func (p *PostgreSQLSecretVersionRepository) List(
	ctx context.Context,
	metadataID uuid.UUID,
) ([]*kvDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, metadata_id, version, encrypted_data, created_at, deleted_at, destroyed_at
			  FROM secret_versions WHERE metadata_id = $1 ORDER BY version ASC`

	rows, err := querier.QueryContext(ctx, query, metadataID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret versions")
	}
	defer func() {
		_ = rows.Close()
	}()

	versions := make([]*kvDomain.SecretVersion, 0)
	for rows.Next() {
		var v kvDomain.SecretVersion
		err := rows.Scan(
			&v.ID,
			&v.MetadataID,
			&v.Version,
			&v.EncryptedData,
			&v.CreatedAt,
			&v.DeletedAt,
			&v.DestroyedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan secret version")
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate secret versions")
	}

	return versions, nil
}

// SetDeleted marks a version soft-deleted (non-nil deletedAt) or restores it
// (nil deletedAt).
func (p *PostgreSQLSecretVersionRepository) SetDeleted(
	ctx context.Context,
	versionID uuid.UUID,
	deletedAt *time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`UPDATE secret_versions SET deleted_at = $1 WHERE id = $2 AND destroyed_at IS NULL`,
		deletedAt,
		versionID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update secret version deletion")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated secret version")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "secret version not found")
	}

	return nil
}

// Destroy erases a version's ciphertext and marks it destroyed and deleted.
func (p *PostgreSQLSecretVersionRepository) Destroy(
	ctx context.Context,
	versionID uuid.UUID,
	destroyedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secret_versions
			  SET encrypted_data = '', destroyed_at = $1, deleted_at = COALESCE(deleted_at, $1)
			  WHERE id = $2`

	result, err := querier.ExecContext(ctx, query, destroyedAt, versionID)
	if err != nil {
		return apperrors.Wrap(err, "failed to destroy secret version")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check destroyed secret version")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "secret version not found")
	}

	return nil
}

func scanVersion(row *sql.Row) (*kvDomain.SecretVersion, error) {
	var v kvDomain.SecretVersion
	err := row.Scan(
		&v.ID,
		&v.MetadataID,
		&v.Version,
		&v.EncryptedData,
		&v.CreatedAt,
		&v.DeletedAt,
		&v.DestroyedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "secret version not found")
		}
		return nil, apperrors.Wrap(err, "failed to get secret version")
	}

	return &v, nil
}
