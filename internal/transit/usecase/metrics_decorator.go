package usecase

import (
	"context"
	"time"

	"github.com/allisson/usp/internal/metrics"
	transitDomain "github.com/allisson/usp/internal/transit/domain"
)

// transitUseCaseWithMetrics decorates TransitUseCase with metrics instrumentation.
type transitUseCaseWithMetrics struct {
	next    TransitUseCase
	metrics metrics.BusinessMetrics
}

// NewTransitUseCaseWithMetrics wraps a TransitUseCase with metrics recording.
func NewTransitUseCaseWithMetrics(useCase TransitUseCase, m metrics.BusinessMetrics) TransitUseCase {
	return &transitUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (t *transitUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	t.metrics.RecordOperation(ctx, "transit", operation, status)
	t.metrics.RecordDuration(ctx, "transit", operation, time.Since(start), status)
}

func (t *transitUseCaseWithMetrics) Create(
	ctx context.Context,
	name string,
	keyType transitDomain.KeyType,
	derivation, exportable bool,
) (*transitDomain.TransitKey, error) {
	start := time.Now()
	key, err := t.next.Create(ctx, name, keyType, derivation, exportable)
	t.record(ctx, "key_create", start, err)
	return key, err
}

func (t *transitUseCaseWithMetrics) EnsureKey(ctx context.Context, name string) error {
	return t.next.EnsureKey(ctx, name)
}

func (t *transitUseCaseWithMetrics) Get(ctx context.Context, name string) (*transitDomain.TransitKey, error) {
	return t.next.Get(ctx, name)
}

func (t *transitUseCaseWithMetrics) List(ctx context.Context) ([]string, error) {
	return t.next.List(ctx)
}

func (t *transitUseCaseWithMetrics) Rotate(ctx context.Context, name string) (*transitDomain.TransitKey, error) {
	start := time.Now()
	key, err := t.next.Rotate(ctx, name)
	t.record(ctx, "key_rotate", start, err)
	return key, err
}

func (t *transitUseCaseWithMetrics) UpdateConfig(
	ctx context.Context,
	name string,
	update KeyConfigUpdate,
) (*transitDomain.TransitKey, error) {
	start := time.Now()
	key, err := t.next.UpdateConfig(ctx, name, update)
	t.record(ctx, "key_update_config", start, err)
	return key, err
}

func (t *transitUseCaseWithMetrics) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := t.next.Delete(ctx, name)
	t.record(ctx, "key_delete", start, err)
	return err
}

func (t *transitUseCaseWithMetrics) Encrypt(
	ctx context.Context,
	name string,
	plaintext, keyContext []byte,
) (string, error) {
	start := time.Now()
	envelope, err := t.next.Encrypt(ctx, name, plaintext, keyContext)
	t.record(ctx, "encrypt", start, err)
	return envelope, err
}

func (t *transitUseCaseWithMetrics) Decrypt(
	ctx context.Context,
	name string,
	envelope string,
	keyContext []byte,
) ([]byte, error) {
	start := time.Now()
	plaintext, err := t.next.Decrypt(ctx, name, envelope, keyContext)
	t.record(ctx, "decrypt", start, err)
	return plaintext, err
}

func (t *transitUseCaseWithMetrics) Rewrap(
	ctx context.Context,
	name string,
	envelope string,
	keyContext []byte,
) (string, error) {
	start := time.Now()
	rewrapped, err := t.next.Rewrap(ctx, name, envelope, keyContext)
	t.record(ctx, "rewrap", start, err)
	return rewrapped, err
}

func (t *transitUseCaseWithMetrics) Sign(
	ctx context.Context,
	name string,
	input []byte,
	alg transitDomain.HashAlgorithm,
) (string, error) {
	start := time.Now()
	signature, err := t.next.Sign(ctx, name, input, alg)
	t.record(ctx, "sign", start, err)
	return signature, err
}

func (t *transitUseCaseWithMetrics) Verify(
	ctx context.Context,
	name string,
	input []byte,
	signature string,
	alg transitDomain.HashAlgorithm,
) (bool, error) {
	start := time.Now()
	valid, err := t.next.Verify(ctx, name, input, signature, alg)
	t.record(ctx, "verify", start, err)
	return valid, err
}

func (t *transitUseCaseWithMetrics) Hmac(
	ctx context.Context,
	name string,
	input []byte,
	alg transitDomain.HashAlgorithm,
) (string, error) {
	start := time.Now()
	envelope, err := t.next.Hmac(ctx, name, input, alg)
	t.record(ctx, "hmac", start, err)
	return envelope, err
}

func (t *transitUseCaseWithMetrics) GenerateDataKey(
	ctx context.Context,
	name string,
	bits int,
	keyContext []byte,
) (*transitDomain.DataKey, error) {
	start := time.Now()
	dataKey, err := t.next.GenerateDataKey(ctx, name, bits, keyContext)
	t.record(ctx, "datakey", start, err)
	return dataKey, err
}

func (t *transitUseCaseWithMetrics) BatchEncrypt(
	ctx context.Context,
	name string,
	items []transitDomain.BatchItem,
) ([]transitDomain.BatchResult, error) {
	start := time.Now()
	results, err := t.next.BatchEncrypt(ctx, name, items)
	t.record(ctx, "batch_encrypt", start, err)
	return results, err
}

func (t *transitUseCaseWithMetrics) BatchDecrypt(
	ctx context.Context,
	name string,
	items []transitDomain.BatchItem,
) ([]transitDomain.BatchResult, error) {
	start := time.Now()
	results, err := t.next.BatchDecrypt(ctx, name, items)
	t.record(ctx, "batch_decrypt", start, err)
	return results, err
}

func (t *transitUseCaseWithMetrics) ExportKey(ctx context.Context, name string, version uint) ([]byte, error) {
	start := time.Now()
	material, err := t.next.ExportKey(ctx, name, version)
	t.record(ctx, "key_export", start, err)
	return material, err
}
