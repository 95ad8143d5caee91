// Package repository implements persistence for the seal configuration.
//
// The seal configuration is effectively a singleton: one row per
// configuration version, with the highest version being the active one.
// Rekey operations insert a new row rather than mutating the existing one,
// preserving the history of share/threshold changes.
package repository

import (
	"context"
	"database/sql"
	"errors"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
)

// PostgreSQLSealConfigRepository implements seal configuration persistence
// for PostgreSQL. Supports transaction-aware operations via database.GetTx.
type PostgreSQLSealConfigRepository struct {
	db *sql.DB
}

// NewPostgreSQLSealConfigRepository creates a repository bound to the given database.
func NewPostgreSQLSealConfigRepository(db *sql.DB) *PostgreSQLSealConfigRepository {
	return &PostgreSQLSealConfigRepository{db: db}
}

// Create inserts a new seal configuration row.
func (p *PostgreSQLSealConfigRepository) Create(
	ctx context.Context,
	config *cryptoDomain.SealConfig,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO seal_configurations
			  (id, version, secret_shares, secret_threshold, encrypted_master_key, initialized_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := querier.ExecContext(
		ctx,
		query,
		config.ID,
		config.Version,
		config.SecretShares,
		config.SecretThreshold,
		config.EncryptedMasterKey,
		config.InitializedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create seal configuration")
	}

	return nil
}

// GetLatest returns the active (highest-version) seal configuration.
// Returns ErrNotFound when the vault has never been initialized.
func (p *PostgreSQLSealConfigRepository) GetLatest(
	ctx context.Context,
) (*cryptoDomain.SealConfig, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, version, secret_shares, secret_threshold, encrypted_master_key, initialized_at
			  FROM seal_configurations
			  ORDER BY version DESC
			  LIMIT 1`

	var config cryptoDomain.SealConfig
	err := querier.QueryRowContext(ctx, query).Scan(
		&config.ID,
		&config.Version,
		&config.SecretShares,
		&config.SecretThreshold,
		&config.EncryptedMasterKey,
		&config.InitializedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "seal configuration not found")
		}
		return nil, apperrors.Wrap(err, "failed to get seal configuration")
	}

	return &config, nil
}
