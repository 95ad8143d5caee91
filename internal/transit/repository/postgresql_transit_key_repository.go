// Package repository implements transit key persistence for PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	transitDomain "github.com/allisson/usp/internal/transit/domain"
)

// PostgreSQLTransitKeyRepository implements named transit key persistence
// for PostgreSQL. Supports transaction-aware operations via database.GetTx.
type PostgreSQLTransitKeyRepository struct {
	db *sql.DB
}

// NewPostgreSQLTransitKeyRepository creates a repository bound to the given database.
func NewPostgreSQLTransitKeyRepository(db *sql.DB) *PostgreSQLTransitKeyRepository {
	return &PostgreSQLTransitKeyRepository{db: db}
}

const transitKeyColumns = `id, name, key_type, latest_version, min_decryption_version,
				  min_encryption_version, deletion_allowed, exportable, derivation, created_at, updated_at`

// Create inserts a new transit key row.
func (p *PostgreSQLTransitKeyRepository) Create(
	ctx context.Context,
	key *transitDomain.TransitKey,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO transit_keys (` + transitKeyColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier.ExecContext(
		ctx,
		query,
		key.ID,
		key.Name,
		string(key.Type),
		key.LatestVersion,
		key.MinDecryptionVersion,
		key.MinEncryptionVersion,
		key.DeletionAllowed,
		key.Exportable,
		key.Derivation,
		key.CreatedAt,
		key.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create transit key")
	}

	return nil
}

// GetByName retrieves a transit key by its unique name.
func (p *PostgreSQLTransitKeyRepository) GetByName(
	ctx context.Context,
	name string,
) (*transitDomain.TransitKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + transitKeyColumns + ` FROM transit_keys WHERE name = $1`

	var key transitDomain.TransitKey
	var keyType string
	err := querier.QueryRowContext(ctx, query, name).Scan(
		&key.ID,
		&key.Name,
		&keyType,
		&key.LatestVersion,
		&key.MinDecryptionVersion,
		&key.MinEncryptionVersion,
		&key.DeletionAllowed,
		&key.Exportable,
		&key.Derivation,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "transit key not found")
		}
		return nil, apperrors.Wrap(err, "failed to get transit key")
	}

	key.Type = transitDomain.KeyType(keyType)
	return &key, nil
}

// Update persists version window and policy flag changes.
func (p *PostgreSQLTransitKeyRepository) Update(
	ctx context.Context,
	key *transitDomain.TransitKey,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE transit_keys
			  SET latest_version = $1, min_decryption_version = $2, min_encryption_version = $3,
				  deletion_allowed = $4, exportable = $5, updated_at = $6
			  WHERE id = $7`

	result, err := querier.ExecContext(
		ctx,
		query,
		key.LatestVersion,
		key.MinDecryptionVersion,
		key.MinEncryptionVersion,
		key.DeletionAllowed,
		key.Exportable,
		key.UpdatedAt,
		key.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update transit key")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check updated transit key")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "transit key not found")
	}

	return nil
}

// Delete removes a transit key and all of its versions.
func (p *PostgreSQLTransitKeyRepository) Delete(ctx context.Context, keyID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	if _, err := querier.ExecContext(
		ctx, `DELETE FROM transit_key_versions WHERE key_id = $1`, keyID,
	); err != nil {
		return apperrors.Wrap(err, "failed to delete transit key versions")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM transit_keys WHERE id = $1`, keyID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete transit key")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check deleted transit key")
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, "transit key not found")
	}

	return nil
}

// List returns all key names, ordered.
func (p *PostgreSQLTransitKeyRepository) List(ctx context.Context) ([]string, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, `SELECT name FROM transit_keys ORDER BY name ASC`)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list transit keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan transit key name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate transit keys")
	}

	return names, nil
}

// PostgreSQLTransitKeyVersionRepository implements transit key version
// persistence for PostgreSQL.
type PostgreSQLTransitKeyVersionRepository struct {
	db *sql.DB
}

// NewPostgreSQLTransitKeyVersionRepository creates a repository bound to the given database.
func NewPostgreSQLTransitKeyVersionRepository(db *sql.DB) *PostgreSQLTransitKeyVersionRepository {
	return &PostgreSQLTransitKeyVersionRepository{db: db}
}

// Create inserts a new key version row.
func (p *PostgreSQLTransitKeyVersionRepository) Create(
	ctx context.Context,
	version *transitDomain.TransitKeyVersion,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO transit_key_versions (id, key_id, version, encrypted_key_material, public_key, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := querier.ExecContext(
		ctx,
		query,
		version.ID,
		version.KeyID,
		version.Version,
		version.EncryptedKeyMaterial,
		version.PublicKey,
		version.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create transit key version")
	}

	return nil
}

// Get retrieves one version of a key.
func (p *PostgreSQLTransitKeyVersionRepository) Get(
	ctx context.Context,
	keyID uuid.UUID,
	version uint,
) (*transitDomain.TransitKeyVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, key_id, version, encrypted_key_material, public_key, created_at
			  FROM transit_key_versions WHERE key_id = $1 AND version = $2`

	var v transitDomain.TransitKeyVersion
	err := querier.QueryRowContext(ctx, query, keyID, version).Scan(
		&v.ID,
		&v.KeyID,
		&v.Version,
		&v.EncryptedKeyMaterial,
		&v.PublicKey,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "transit key version not found")
		}
		return nil, apperrors.Wrap(err, "failed to get transit key version")
	}

	return &v, nil
}
