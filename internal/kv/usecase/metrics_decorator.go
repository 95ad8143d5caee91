package usecase

import (
	"context"
	"time"

	kvDomain "github.com/allisson/usp/internal/kv/domain"
	"github.com/allisson/usp/internal/metrics"
)

// kvUseCaseWithMetrics decorates KvUseCase with metrics instrumentation.
type kvUseCaseWithMetrics struct {
	next    KvUseCase
	metrics metrics.BusinessMetrics
}

// NewKvUseCaseWithMetrics wraps a KvUseCase with metrics recording.
func NewKvUseCaseWithMetrics(useCase KvUseCase, m metrics.BusinessMetrics) KvUseCase {
	return &kvUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (k *kvUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	k.metrics.RecordOperation(ctx, "kv", operation, status)
	k.metrics.RecordDuration(ctx, "kv", operation, time.Since(start), status)
}

// Write records metrics for secret write operations.
func (k *kvUseCaseWithMetrics) Write(
	ctx context.Context,
	path string,
	data map[string]any,
	cas *uint,
) (*kvDomain.SecretMetadata, error) {
	start := time.Now()
	metadata, err := k.next.Write(ctx, path, data, cas)
	k.record(ctx, "secret_write", start, err)
	return metadata, err
}

// Read records metrics for secret read operations.
func (k *kvUseCaseWithMetrics) Read(
	ctx context.Context,
	path string,
	version uint,
) (*ReadResult, error) {
	start := time.Now()
	result, err := k.next.Read(ctx, path, version)
	k.record(ctx, "secret_read", start, err)
	return result, err
}

// Delete records metrics for secret soft-delete operations.
func (k *kvUseCaseWithMetrics) Delete(ctx context.Context, path string, versions []uint) error {
	start := time.Now()
	err := k.next.Delete(ctx, path, versions)
	k.record(ctx, "secret_delete", start, err)
	return err
}

// Undelete records metrics for secret undelete operations.
func (k *kvUseCaseWithMetrics) Undelete(ctx context.Context, path string, versions []uint) error {
	start := time.Now()
	err := k.next.Undelete(ctx, path, versions)
	k.record(ctx, "secret_undelete", start, err)
	return err
}

// Destroy records metrics for secret destroy operations.
func (k *kvUseCaseWithMetrics) Destroy(ctx context.Context, path string, versions []uint) error {
	start := time.Now()
	err := k.next.Destroy(ctx, path, versions)
	k.record(ctx, "secret_destroy", start, err)
	return err
}

// List records metrics for secret list operations.
func (k *kvUseCaseWithMetrics) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := k.next.List(ctx, prefix)
	k.record(ctx, "secret_list", start, err)
	return keys, err
}

// Configure records metrics for secret configuration operations.
func (k *kvUseCaseWithMetrics) Configure(
	ctx context.Context,
	path string,
	maxVersions uint,
	casRequired bool,
) (*kvDomain.SecretMetadata, error) {
	start := time.Now()
	metadata, err := k.next.Configure(ctx, path, maxVersions, casRequired)
	k.record(ctx, "secret_configure", start, err)
	return metadata, err
}
