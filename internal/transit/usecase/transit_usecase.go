package usecase

import (
	"context"
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	cryptoService "github.com/allisson/usp/internal/crypto/service"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	transitDomain "github.com/allisson/usp/internal/transit/domain"
	transitService "github.com/allisson/usp/internal/transit/service"
)

// Config holds transit engine settings.
type Config struct {
	// AllowedTypes restricts creatable key types; empty allows all.
	AllowedTypes []transitDomain.KeyType
	// DeletionAllowedDefault seeds new keys' DeletionAllowed flag.
	DeletionAllowedDefault bool
}

// transitUseCase implements TransitUseCase.
type transitUseCase struct {
	txManager   database.TxManager
	keyRepo     TransitKeyRepository
	versionRepo TransitKeyVersionRepository
	keyOps      transitService.KeyOperations
	barrier     cryptoService.Barrier
	cell        *cryptoDomain.MasterKeyCell
	audit       auditDomain.Recorder
	logger      *slog.Logger
	config      Config
}

// NewTransitUseCase creates the transit engine with the provided dependencies.
func NewTransitUseCase(
	txManager database.TxManager,
	keyRepo TransitKeyRepository,
	versionRepo TransitKeyVersionRepository,
	keyOps transitService.KeyOperations,
	barrier cryptoService.Barrier,
	cell *cryptoDomain.MasterKeyCell,
	audit auditDomain.Recorder,
	logger *slog.Logger,
	config Config,
) TransitUseCase {
	return &transitUseCase{
		txManager:   txManager,
		keyRepo:     keyRepo,
		versionRepo: versionRepo,
		keyOps:      keyOps,
		barrier:     barrier,
		cell:        cell,
		audit:       audit,
		logger:      logger,
		config:      config,
	}
}

// Create registers a named key and its first version.
func (t *transitUseCase) Create(
	ctx context.Context,
	name string,
	keyType transitDomain.KeyType,
	derivation, exportable bool,
) (*transitDomain.TransitKey, error) {
	key, err := t.create(ctx, name, keyType, derivation, exportable)
	t.recordKeyEvent(ctx, auditDomain.EventTransitKeyCreate, name, "create", err, map[string]any{
		"key_type": string(keyType),
	})
	return key, err
}

func (t *transitUseCase) create(
	ctx context.Context,
	name string,
	keyType transitDomain.KeyType,
	derivation, exportable bool,
) (*transitDomain.TransitKey, error) {
	if t.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}
	if name == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "key name must not be empty")
	}
	if !keyType.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrNotSupported, "unsupported key type %q", keyType)
	}
	if !t.typeAllowed(keyType) {
		return nil, apperrors.Wrapf(apperrors.ErrNotSupported, "key type %q is not allowed", keyType)
	}
	if derivation && !keyType.Symmetric() {
		return nil, apperrors.Wrap(apperrors.ErrNotSupported, "derivation requires a symmetric key")
	}

	if _, err := t.keyRepo.GetByName(ctx, name); err == nil {
		return nil, apperrors.Wrapf(apperrors.ErrAlreadyExists, "transit key %q already exists", name)
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	key := &transitDomain.TransitKey{
		ID:                   uuid.Must(uuid.NewV7()),
		Name:                 name,
		Type:                 keyType,
		LatestVersion:        1,
		MinDecryptionVersion: 1,
		DeletionAllowed:      t.config.DeletionAllowedDefault,
		Exportable:           exportable,
		Derivation:           derivation,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	version, err := t.newVersion(ctx, key, 1, now)
	if err != nil {
		return nil, err
	}

	err = t.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := t.keyRepo.Create(txCtx, key); err != nil {
			return err
		}
		return t.versionRepo.Create(txCtx, version)
	})
	if err != nil {
		return nil, err
	}

	return key, nil
}

// newVersion generates key material for a version and wraps it with the
// master key. The key name is bound as AAD.
func (t *transitUseCase) newVersion(
	ctx context.Context,
	key *transitDomain.TransitKey,
	versionNumber uint,
	now time.Time,
) (*transitDomain.TransitKeyVersion, error) {
	material, publicKey, err := t.keyOps.Generate(key.Type)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(material)

	wrapped, err := t.barrier.Encrypt(ctx, material, []byte(key.Name))
	if err != nil {
		return nil, err
	}

	return &transitDomain.TransitKeyVersion{
		ID:                   uuid.Must(uuid.NewV7()),
		KeyID:                key.ID,
		Version:              versionNumber,
		EncryptedKeyMaterial: wrapped,
		PublicKey:            publicKey,
		CreatedAt:            now,
	}, nil
}

func (t *transitUseCase) typeAllowed(keyType transitDomain.KeyType) bool {
	if len(t.config.AllowedTypes) == 0 {
		return true
	}
	for _, allowed := range t.config.AllowedTypes {
		if keyType == allowed {
			return true
		}
	}
	return false
}

// EnsureKey lazily provisions a symmetric key for internal engines.
func (t *transitUseCase) EnsureKey(ctx context.Context, name string) error {
	if t.cell.Sealed() {
		return apperrors.ErrVaultSealed
	}

	_, err := t.keyRepo.GetByName(ctx, name)
	if err == nil {
		return nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	_, err = t.Create(ctx, name, transitDomain.KeyTypeAES256GCM, false, false)
	if apperrors.Is(err, apperrors.ErrAlreadyExists) {
		// Lost a create race; the key exists now.
		return nil
	}
	return err
}

// Get returns key configuration.
func (t *transitUseCase) Get(ctx context.Context, name string) (*transitDomain.TransitKey, error) {
	if t.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}
	return t.keyRepo.GetByName(ctx, name)
}

// List returns all key names.
func (t *transitUseCase) List(ctx context.Context) ([]string, error) {
	if t.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}
	return t.keyRepo.List(ctx)
}

// Rotate appends a new key version and bumps LatestVersion.
func (t *transitUseCase) Rotate(ctx context.Context, name string) (*transitDomain.TransitKey, error) {
	key, err := t.rotate(ctx, name)
	t.recordKeyEvent(ctx, auditDomain.EventTransitKeyRotate, name, "rotate", err, nil)
	return key, err
}

func (t *transitUseCase) rotate(ctx context.Context, name string) (*transitDomain.TransitKey, error) {
	if t.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}

	key, err := t.keyRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	key.LatestVersion++
	key.UpdatedAt = now

	version, err := t.newVersion(ctx, key, key.LatestVersion, now)
	if err != nil {
		return nil, err
	}

	err = t.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := t.versionRepo.Create(txCtx, version); err != nil {
			return err
		}
		return t.keyRepo.Update(txCtx, key)
	})
	if err != nil {
		return nil, err
	}

	return key, nil
}

// UpdateConfig adjusts a key's version window and policy flags.
func (t *transitUseCase) UpdateConfig(
	ctx context.Context,
	name string,
	update KeyConfigUpdate,
) (*transitDomain.TransitKey, error) {
	if t.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}

	key, err := t.keyRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if update.MinDecryptionVersion != nil {
		if *update.MinDecryptionVersion < 1 || *update.MinDecryptionVersion > key.LatestVersion {
			return nil, apperrors.Wrapf(
				apperrors.ErrInvalidInput,
				"minimum decryption version must be between 1 and %d", key.LatestVersion,
			)
		}
		key.MinDecryptionVersion = *update.MinDecryptionVersion
	}
	if update.MinEncryptionVersion != nil {
		if *update.MinEncryptionVersion > key.LatestVersion {
			return nil, apperrors.Wrapf(
				apperrors.ErrInvalidInput,
				"minimum encryption version must not exceed %d", key.LatestVersion,
			)
		}
		key.MinEncryptionVersion = *update.MinEncryptionVersion
	}
	if update.DeletionAllowed != nil {
		key.DeletionAllowed = *update.DeletionAllowed
	}
	if update.Exportable != nil {
		// Exportable can be turned on but never off again; material may
		// already have left the engine.
		if key.Exportable && !*update.Exportable {
			return nil, apperrors.Wrap(apperrors.ErrInvalidState, "exportable cannot be revoked")
		}
		key.Exportable = *update.Exportable
	}
	key.UpdatedAt = time.Now().UTC()

	if err := t.keyRepo.Update(ctx, key); err != nil {
		return nil, err
	}

	return key, nil
}

// Delete removes a key and its versions if the key allows it.
func (t *transitUseCase) Delete(ctx context.Context, name string) error {
	err := t.delete(ctx, name)
	t.recordKeyEvent(ctx, auditDomain.EventTransitKeyDelete, name, "delete", err, nil)
	return err
}

func (t *transitUseCase) delete(ctx context.Context, name string) error {
	if t.cell.Sealed() {
		return apperrors.ErrVaultSealed
	}

	key, err := t.keyRepo.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if !key.DeletionAllowed {
		return transitDomain.ErrDeletionNotAllowed
	}

	return t.keyRepo.Delete(ctx, key.ID)
}

// Encrypt seals plaintext under the newest allowed version of the named key.
func (t *transitUseCase) Encrypt(
	ctx context.Context,
	name string,
	plaintext, keyContext []byte,
) (string, error) {
	envelope, err := t.encrypt(ctx, name, plaintext, keyContext)
	t.recordKeyEvent(ctx, auditDomain.EventTransitEncrypt, name, "encrypt", err, nil)
	return envelope, err
}

func (t *transitUseCase) encrypt(
	ctx context.Context,
	name string,
	plaintext, keyContext []byte,
) (string, error) {
	if t.cell.Sealed() {
		return "", apperrors.ErrVaultSealed
	}

	key, err := t.keyRepo.GetByName(ctx, name)
	if err != nil {
		return "", err
	}
	if !key.Type.Symmetric() {
		return "", apperrors.Wrapf(apperrors.ErrNotSupported, "key type %q cannot encrypt", key.Type)
	}

	version := key.LatestVersion
	if key.MinEncryptionVersion > version {
		version = key.MinEncryptionVersion
	}

	material, err := t.symmetricMaterial(ctx, key, version, keyContext)
	if err != nil {
		return "", err
	}
	defer cryptoDomain.Zero(material)

	cipher, err := cryptoService.NewAESGCM(material)
	if err != nil {
		return "", err
	}
	ciphertext, tag, nonce, err := cipher.Encrypt(plaintext, keyContext)
	if err != nil {
		return "", err
	}

	envelope := cryptoDomain.Envelope{
		Version:    version,
		Nonce:      nonce,
		Tag:        tag,
		Ciphertext: ciphertext,
	}
	return envelope.String(), nil
}

// Decrypt opens an envelope sealed by Encrypt.
func (t *transitUseCase) Decrypt(
	ctx context.Context,
	name string,
	envelope string,
	keyContext []byte,
) ([]byte, error) {
	plaintext, err := t.decrypt(ctx, name, envelope, keyContext)
	t.recordKeyEvent(ctx, auditDomain.EventTransitDecrypt, name, "decrypt", err, nil)
	return plaintext, err
}

func (t *transitUseCase) decrypt(
	ctx context.Context,
	name string,
	envelope string,
	keyContext []byte,
) ([]byte, error) {
	if t.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}

	parsed, err := cryptoDomain.ParseEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	key, err := t.keyRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !key.Type.Symmetric() {
		return nil, apperrors.Wrapf(apperrors.ErrNotSupported, "key type %q cannot decrypt", key.Type)
	}
	if parsed.Version < key.MinDecryptionVersion {
		return nil, transitDomain.ErrVersionTooOld
	}

	material, err := t.symmetricMaterial(ctx, key, parsed.Version, keyContext)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(material)

	cipher, err := cryptoService.NewAESGCM(material)
	if err != nil {
		return nil, err
	}

	return cipher.Decrypt(parsed.Ciphertext, parsed.Tag, parsed.Nonce, keyContext)
}

// Rewrap re-encrypts an envelope under the newest key version.
func (t *transitUseCase) Rewrap(
	ctx context.Context,
	name string,
	envelope string,
	keyContext []byte,
) (string, error) {
	rewrapped, err := t.rewrap(ctx, name, envelope, keyContext)
	t.recordKeyEvent(ctx, auditDomain.EventTransitRewrap, name, "rewrap", err, nil)
	return rewrapped, err
}

func (t *transitUseCase) rewrap(
	ctx context.Context,
	name string,
	envelope string,
	keyContext []byte,
) (string, error) {
	plaintext, err := t.decrypt(ctx, name, envelope, keyContext)
	if err != nil {
		return "", err
	}
	defer cryptoDomain.Zero(plaintext)

	return t.encrypt(ctx, name, plaintext, keyContext)
}

// Sign produces a signature envelope with the key's latest version.
func (t *transitUseCase) Sign(
	ctx context.Context,
	name string,
	input []byte,
	alg transitDomain.HashAlgorithm,
) (string, error) {
	signature, err := t.sign(ctx, name, input, alg)
	t.recordKeyEvent(ctx, auditDomain.EventTransitSign, name, "sign", err, nil)
	return signature, err
}

func (t *transitUseCase) sign(
	ctx context.Context,
	name string,
	input []byte,
	alg transitDomain.HashAlgorithm,
) (string, error) {
	if t.cell.Sealed() {
		return "", apperrors.ErrVaultSealed
	}
	if _, err := transitDomain.ParseHashAlgorithm(string(alg)); err != nil {
		return "", err
	}

	key, err := t.keyRepo.GetByName(ctx, name)
	if err != nil {
		return "", err
	}
	if !key.Type.Asymmetric() {
		return "", apperrors.Wrapf(apperrors.ErrNotSupported, "key type %q cannot sign", key.Type)
	}

	material, err := t.keyMaterial(ctx, key, key.LatestVersion)
	if err != nil {
		return "", err
	}
	defer cryptoDomain.Zero(material)

	raw, err := t.keyOps.Sign(key.Type, material, input, alg)
	if err != nil {
		return "", err
	}

	envelope := cryptoDomain.SignedEnvelope{
		Version:   key.LatestVersion,
		Algorithm: string(alg),
		Bytes:     raw,
	}
	return envelope.String(), nil
}

// Verify checks a signature envelope against the key version it names.
func (t *transitUseCase) Verify(
	ctx context.Context,
	name string,
	input []byte,
	signature string,
	alg transitDomain.HashAlgorithm,
) (bool, error) {
	valid, err := t.verify(ctx, name, input, signature, alg)
	t.recordKeyEvent(ctx, auditDomain.EventTransitVerify, name, "verify", err, map[string]any{
		"valid": valid,
	})
	return valid, err
}

func (t *transitUseCase) verify(
	ctx context.Context,
	name string,
	input []byte,
	signature string,
	alg transitDomain.HashAlgorithm,
) (bool, error) {
	if t.cell.Sealed() {
		return false, apperrors.ErrVaultSealed
	}
	if _, err := transitDomain.ParseHashAlgorithm(string(alg)); err != nil {
		return false, err
	}

	parsed, err := cryptoDomain.ParseSignedEnvelope(signature)
	if err != nil {
		return false, err
	}
	if parsed.Algorithm != string(alg) {
		return false, nil
	}

	key, err := t.keyRepo.GetByName(ctx, name)
	if err != nil {
		return false, err
	}
	if !key.Type.Asymmetric() {
		return false, apperrors.Wrapf(apperrors.ErrNotSupported, "key type %q cannot verify", key.Type)
	}

	version, err := t.versionRepo.Get(ctx, key.ID, parsed.Version)
	if err != nil {
		return false, err
	}

	return t.keyOps.Verify(key.Type, version.PublicKey, input, parsed.Bytes, alg)
}

// Hmac produces an HMAC envelope with the key's latest version.
func (t *transitUseCase) Hmac(
	ctx context.Context,
	name string,
	input []byte,
	alg transitDomain.HashAlgorithm,
) (string, error) {
	envelope, err := t.hmac(ctx, name, input, alg)
	t.recordKeyEvent(ctx, auditDomain.EventTransitHmac, name, "hmac", err, nil)
	return envelope, err
}

func (t *transitUseCase) hmac(
	ctx context.Context,
	name string,
	input []byte,
	alg transitDomain.HashAlgorithm,
) (string, error) {
	if t.cell.Sealed() {
		return "", apperrors.ErrVaultSealed
	}
	if _, err := transitDomain.ParseHashAlgorithm(string(alg)); err != nil {
		return "", err
	}

	key, err := t.keyRepo.GetByName(ctx, name)
	if err != nil {
		return "", err
	}
	if !key.Type.Symmetric() {
		return "", apperrors.Wrapf(apperrors.ErrNotSupported, "key type %q cannot hmac", key.Type)
	}

	material, err := t.keyMaterial(ctx, key, key.LatestVersion)
	if err != nil {
		return "", err
	}
	defer cryptoDomain.Zero(material)

	raw, err := t.keyOps.Hmac(material, input, alg)
	if err != nil {
		return "", err
	}

	envelope := cryptoDomain.SignedEnvelope{
		Version:   key.LatestVersion,
		Algorithm: string(alg),
		Bytes:     raw,
	}
	return envelope.String(), nil
}

// GenerateDataKey returns a fresh random key plus its encrypted form.
func (t *transitUseCase) GenerateDataKey(
	ctx context.Context,
	name string,
	bits int,
	keyContext []byte,
) (*transitDomain.DataKey, error) {
	dataKey, err := t.generateDataKey(ctx, name, bits, keyContext)
	t.recordKeyEvent(ctx, auditDomain.EventTransitDatakey, name, "datakey", err, map[string]any{
		"bits": bits,
	})
	return dataKey, err
}

func (t *transitUseCase) generateDataKey(
	ctx context.Context,
	name string,
	bits int,
	keyContext []byte,
) (*transitDomain.DataKey, error) {
	if bits != 128 && bits != 256 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "data key size must be 128 or 256 bits")
	}

	plaintext := make([]byte, bits/8)
	if _, err := rand.Read(plaintext); err != nil {
		return nil, apperrors.Wrap(err, "failed to generate data key")
	}

	ciphertext, err := t.encrypt(ctx, name, plaintext, keyContext)
	if err != nil {
		return nil, err
	}

	return &transitDomain.DataKey{Plaintext: plaintext, Ciphertext: ciphertext}, nil
}

// BatchEncrypt encrypts each item independently, preserving input order.
func (t *transitUseCase) BatchEncrypt(
	ctx context.Context,
	name string,
	items []transitDomain.BatchItem,
) ([]transitDomain.BatchResult, error) {
	return t.batch(ctx, name, items, func(item transitDomain.BatchItem) transitDomain.BatchResult {
		ciphertext, err := t.encrypt(ctx, name, item.Plaintext, item.Context)
		if err != nil {
			return transitDomain.BatchResult{Error: err.Error()}
		}
		return transitDomain.BatchResult{Ciphertext: ciphertext}
	})
}

// BatchDecrypt decrypts each item independently, preserving input order.
func (t *transitUseCase) BatchDecrypt(
	ctx context.Context,
	name string,
	items []transitDomain.BatchItem,
) ([]transitDomain.BatchResult, error) {
	return t.batch(ctx, name, items, func(item transitDomain.BatchItem) transitDomain.BatchResult {
		plaintext, err := t.decrypt(ctx, name, item.Ciphertext, item.Context)
		if err != nil {
			return transitDomain.BatchResult{Error: err.Error()}
		}
		return transitDomain.BatchResult{Plaintext: plaintext}
	})
}

func (t *transitUseCase) batch(
	ctx context.Context,
	name string,
	items []transitDomain.BatchItem,
	fn func(item transitDomain.BatchItem) transitDomain.BatchResult,
) ([]transitDomain.BatchResult, error) {
	if t.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}
	if len(items) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "batch must not be empty")
	}
	if len(items) > transitDomain.MaxBatchSize {
		return nil, apperrors.Wrapf(
			apperrors.ErrInvalidInput, "batch exceeds %d items", transitDomain.MaxBatchSize,
		)
	}

	results := make([]transitDomain.BatchResult, len(items))
	for i, item := range items {
		results[i] = fn(item)
	}
	return results, nil
}

// ExportKey returns a version's raw material for exportable keys.
func (t *transitUseCase) ExportKey(ctx context.Context, name string, version uint) ([]byte, error) {
	if t.cell.Sealed() {
		return nil, apperrors.ErrVaultSealed
	}

	key, err := t.keyRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !key.Exportable {
		return nil, transitDomain.ErrNotExportable
	}
	if version == 0 {
		version = key.LatestVersion
	}

	return t.keyMaterial(ctx, key, version)
}

// keyMaterial unwraps a version's key material from storage.
func (t *transitUseCase) keyMaterial(
	ctx context.Context,
	key *transitDomain.TransitKey,
	versionNumber uint,
) ([]byte, error) {
	version, err := t.versionRepo.Get(ctx, key.ID, versionNumber)
	if err != nil {
		return nil, err
	}
	return t.barrier.Decrypt(ctx, version.EncryptedKeyMaterial, []byte(key.Name))
}

// symmetricMaterial unwraps material and applies HKDF derivation for
// derived keys. Non-derived keys ignore context for key selection; it is
// still bound as AAD by the caller.
func (t *transitUseCase) symmetricMaterial(
	ctx context.Context,
	key *transitDomain.TransitKey,
	versionNumber uint,
	keyContext []byte,
) ([]byte, error) {
	material, err := t.keyMaterial(ctx, key, versionNumber)
	if err != nil {
		return nil, err
	}
	if !key.Derivation {
		return material, nil
	}
	defer cryptoDomain.Zero(material)

	return t.keyOps.DeriveKey(material, keyContext)
}

// recordKeyEvent appends an audit entry for a transit operation. Audit
// failures are logged, not propagated.
func (t *transitUseCase) recordKeyEvent(
	ctx context.Context,
	eventType auditDomain.EventType,
	name string,
	action string,
	opErr error,
	details map[string]any,
) {
	entry := &auditDomain.Entry{
		EventType: eventType,
		Resource:  "transit:" + name,
		Action:    action,
		Success:   opErr == nil,
		Details:   details,
	}
	auditDomain.ActorFromContext(ctx).Apply(entry)

	if err := t.audit.Record(ctx, entry); err != nil {
		t.logger.Error("failed to record transit audit entry",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}
