package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	kvDomain "github.com/allisson/usp/internal/kv/domain"
)

// kvUseCase implements KvUseCase.
type kvUseCase struct {
	txManager    database.TxManager
	metadataRepo SecretMetadataRepository
	versionRepo  SecretVersionRepository
	encrypter    SecretEncrypter
	cell         *cryptoDomain.MasterKeyCell
	audit        auditDomain.Recorder
	logger       *slog.Logger
}

// NewKvUseCase creates the secrets engine with the provided dependencies.
func NewKvUseCase(
	txManager database.TxManager,
	metadataRepo SecretMetadataRepository,
	versionRepo SecretVersionRepository,
	encrypter SecretEncrypter,
	cell *cryptoDomain.MasterKeyCell,
	audit auditDomain.Recorder,
	logger *slog.Logger,
) KvUseCase {
	return &kvUseCase{
		txManager:    txManager,
		metadataRepo: metadataRepo,
		versionRepo:  versionRepo,
		encrypter:    encrypter,
		cell:         cell,
		audit:        audit,
		logger:       logger,
	}
}

// Write stores a new encrypted version of path, enforcing check-and-set and
// pruning versions beyond the retention cap.
func (k *kvUseCase) Write(
	ctx context.Context,
	path string,
	data map[string]any,
	cas *uint,
) (*kvDomain.SecretMetadata, error) {
	if k.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}

	path, err := kvDomain.NormalizePath(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "secret data must not be empty")
	}

	if err := k.encrypter.EnsureKey(ctx, kvDomain.EncryptionKeyName); err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal secret data")
	}

	encrypted, err := k.encrypter.Encrypt(
		ctx, kvDomain.EncryptionKeyName, plaintext, []byte(path),
	)
	if err != nil {
		return nil, err
	}

	var metadata *kvDomain.SecretMetadata
	err = k.txManager.WithTx(ctx, func(txCtx context.Context) error {
		metadata, err = k.loadOrCreateMetadata(txCtx, path)
		if err != nil {
			return err
		}

		if err := checkCas(metadata, cas); err != nil {
			return err
		}

		now := time.Now().UTC()
		metadata.CurrentVersion++
		metadata.UpdatedAt = now

		version := &kvDomain.SecretVersion{
			ID:            uuid.Must(uuid.NewV7()),
			MetadataID:    metadata.ID,
			Version:       metadata.CurrentVersion,
			EncryptedData: encrypted,
			CreatedAt:     now,
		}
		if err := k.versionRepo.Create(txCtx, version); err != nil {
			return err
		}
		if err := k.metadataRepo.Update(txCtx, metadata); err != nil {
			return err
		}

		return k.pruneVersions(txCtx, metadata, now)
	})

	k.recordSecretEvent(ctx, auditDomain.EventSecretWrite, path, "write", err, nil)
	if err != nil {
		return nil, err
	}

	return metadata, nil
}

// loadOrCreateMetadata fetches the path's metadata, creating a fresh row
// with default settings for first writes.
func (k *kvUseCase) loadOrCreateMetadata(
	ctx context.Context,
	path string,
) (*kvDomain.SecretMetadata, error) {
	metadata, err := k.metadataRepo.GetByPath(ctx, path)
	if err == nil {
		return metadata, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	metadata = &kvDomain.SecretMetadata{
		ID:          uuid.Must(uuid.NewV7()),
		Path:        path,
		MaxVersions: kvDomain.DefaultMaxVersions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := k.metadataRepo.Create(ctx, metadata); err != nil {
		return nil, err
	}

	return metadata, nil
}

// checkCas enforces the check-and-set contract against the version state
// before this write.
func checkCas(metadata *kvDomain.SecretMetadata, cas *uint) error {
	if cas == nil {
		if metadata.CasRequired {
			return kvDomain.ErrCasRequired
		}
		return nil
	}
	if *cas != metadata.CurrentVersion {
		return apperrors.Wrapf(
			apperrors.ErrCasMismatch,
			"check-and-set failed: current version is %d", metadata.CurrentVersion,
		)
	}
	return nil
}

// pruneVersions soft-deletes the oldest active versions beyond MaxVersions.
func (k *kvUseCase) pruneVersions(
	ctx context.Context,
	metadata *kvDomain.SecretMetadata,
	now time.Time,
) error {
	if metadata.MaxVersions == 0 {
		return nil
	}

	versions, err := k.versionRepo.List(ctx, metadata.ID)
	if err != nil {
		return err
	}

	active := make([]*kvDomain.SecretVersion, 0, len(versions))
	for _, v := range versions {
		if !v.Deleted() && !v.Destroyed() {
			active = append(active, v)
		}
	}

	excess := len(active) - int(metadata.MaxVersions)
	for i := 0; i < excess; i++ {
		if err := k.versionRepo.SetDeleted(ctx, active[i].ID, &now); err != nil {
			return err
		}
	}

	return nil
}

// Read decrypts a version of path. version 0 selects the current version.
func (k *kvUseCase) Read(
	ctx context.Context,
	path string,
	version uint,
) (*ReadResult, error) {
	result, err := k.read(ctx, path, version)
	k.recordSecretEvent(ctx, auditDomain.EventSecretRead, path, "read", err, map[string]any{
		"version": version,
	})
	return result, err
}

func (k *kvUseCase) read(ctx context.Context, path string, version uint) (*ReadResult, error) {
	if k.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}

	path, err := kvDomain.NormalizePath(path)
	if err != nil {
		return nil, err
	}

	metadata, err := k.metadataRepo.GetByPath(ctx, path)
	if err != nil {
		return nil, err
	}

	if version == 0 {
		version = metadata.CurrentVersion
	}

	stored, err := k.versionRepo.Get(ctx, metadata.ID, version)
	if err != nil {
		return nil, err
	}
	if stored.Destroyed() {
		return nil, kvDomain.ErrVersionDestroyed
	}

	result := &ReadResult{
		Version:   stored.Version,
		CreatedAt: stored.CreatedAt,
		Deleted:   stored.Deleted(),
	}
	if stored.Deleted() {
		return result, nil
	}

	plaintext, err := k.encrypter.Decrypt(
		ctx, kvDomain.EncryptionKeyName, stored.EncryptedData, []byte(path),
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(plaintext, &result.Data); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal secret data")
	}

	return result, nil
}

// Delete soft-deletes the given versions of path.
func (k *kvUseCase) Delete(ctx context.Context, path string, versions []uint) error {
	err := k.updateVersions(ctx, path, versions, func(txCtx context.Context, v *kvDomain.SecretVersion, now time.Time) error {
		if v.Destroyed() || v.Deleted() {
			return nil
		}
		return k.versionRepo.SetDeleted(txCtx, v.ID, &now)
	})

	k.recordSecretEvent(ctx, auditDomain.EventSecretDelete, path, "delete", err, map[string]any{
		"versions": versions,
	})
	return err
}

// Undelete restores soft-deleted versions. Destroyed versions cannot come back.
func (k *kvUseCase) Undelete(ctx context.Context, path string, versions []uint) error {
	err := k.updateVersions(ctx, path, versions, func(txCtx context.Context, v *kvDomain.SecretVersion, _ time.Time) error {
		if v.Destroyed() {
			return kvDomain.ErrVersionDestroyed
		}
		if !v.Deleted() {
			return nil
		}
		return k.versionRepo.SetDeleted(txCtx, v.ID, nil)
	})

	k.recordSecretEvent(ctx, auditDomain.EventSecretUndelete, path, "undelete", err, map[string]any{
		"versions": versions,
	})
	return err
}

// Destroy permanently erases the given versions' ciphertexts.
func (k *kvUseCase) Destroy(ctx context.Context, path string, versions []uint) error {
	err := k.updateVersions(ctx, path, versions, func(txCtx context.Context, v *kvDomain.SecretVersion, now time.Time) error {
		if v.Destroyed() {
			return nil
		}
		return k.versionRepo.Destroy(txCtx, v.ID, now)
	})

	k.recordSecretEvent(ctx, auditDomain.EventSecretDestroy, path, "destroy", err, map[string]any{
		"versions": versions,
	})
	return err
}

// updateVersions applies fn to each named version of path within one
// transaction.
func (k *kvUseCase) updateVersions(
	ctx context.Context,
	path string,
	versions []uint,
	fn func(ctx context.Context, v *kvDomain.SecretVersion, now time.Time) error,
) error {
	if k.cell.Sealed() {
		return apperrors.ErrVaultSealed
	}

	path, err := kvDomain.NormalizePath(path)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "at least one version is required")
	}

	metadata, err := k.metadataRepo.GetByPath(ctx, path)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return k.txManager.WithTx(ctx, func(txCtx context.Context) error {
		for _, version := range versions {
			stored, err := k.versionRepo.Get(txCtx, metadata.ID, version)
			if err != nil {
				return err
			}
			if err := fn(txCtx, stored, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns the immediate child keys under prefix.
func (k *kvUseCase) List(ctx context.Context, prefix string) ([]string, error) {
	if k.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}

	if prefix != "" {
		normalized, err := kvDomain.NormalizePath(prefix)
		if err != nil {
			return nil, err
		}
		prefix = normalized
	}

	paths, err := k.metadataRepo.ListPaths(ctx, prefix)
	k.recordSecretEvent(ctx, auditDomain.EventSecretList, prefix, "list", err, nil)
	if err != nil {
		return nil, err
	}

	return kvDomain.ChildKeys(prefix, paths), nil
}

// Configure updates a path's retention cap and check-and-set requirement.
func (k *kvUseCase) Configure(
	ctx context.Context,
	path string,
	maxVersions uint,
	casRequired bool,
) (*kvDomain.SecretMetadata, error) {
	if k.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}

	path, err := kvDomain.NormalizePath(path)
	if err != nil {
		return nil, err
	}

	metadata, err := k.metadataRepo.GetByPath(ctx, path)
	if err != nil {
		return nil, err
	}

	if maxVersions > 0 {
		metadata.MaxVersions = maxVersions
	}
	metadata.CasRequired = casRequired
	metadata.UpdatedAt = time.Now().UTC()

	if err := k.metadataRepo.Update(ctx, metadata); err != nil {
		return nil, err
	}

	return metadata, nil
}

// recordSecretEvent appends an audit entry for a secrets-engine operation.
// Audit failures are logged, not propagated; the operation outcome stands.
func (k *kvUseCase) recordSecretEvent(
	ctx context.Context,
	eventType auditDomain.EventType,
	path string,
	action string,
	opErr error,
	details map[string]any,
) {
	entry := &auditDomain.Entry{
		EventType: eventType,
		Resource:  "secret:" + path,
		Action:    action,
		Success:   opErr == nil,
		Details:   details,
	}
	auditDomain.ActorFromContext(ctx).Apply(entry)

	if err := k.audit.Record(ctx, entry); err != nil {
		k.logger.Error("failed to record secret audit entry",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}
