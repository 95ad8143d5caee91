package usecase

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	cryptoService "github.com/allisson/usp/internal/crypto/service"
	apperrors "github.com/allisson/usp/internal/errors"
)

// sealUseCase implements SealUseCase.
//
// Unseal progress is an attempt-scoped set of distinct shares keyed by
// x-coordinate; it is cleared on success, on verification failure, and on
// seal. Unseal attempts are rate limited with a token bucket per source.
type sealUseCase struct {
	repo   SealConfigRepository
	keeper cryptoService.KekKeeper
	cell   *cryptoDomain.MasterKeyCell
	audit  auditDomain.Recorder

	mu       sync.Mutex
	progress map[byte][]byte

	limiterMu   sync.Mutex
	limiters    map[string]*rate.Limiter
	limiterRate rate.Limit
	limiterCap  int
}

// NewSealUseCase creates a seal use case. attemptsPerMinute bounds unseal
// attempts per source; burst is the bucket capacity.
func NewSealUseCase(
	repo SealConfigRepository,
	keeper cryptoService.KekKeeper,
	cell *cryptoDomain.MasterKeyCell,
	audit auditDomain.Recorder,
	attemptsPerMinute float64,
	burst int,
) SealUseCase {
	return &sealUseCase{
		repo:        repo,
		keeper:      keeper,
		cell:        cell,
		audit:       audit,
		progress:    make(map[byte][]byte),
		limiters:    make(map[string]*rate.Limiter),
		limiterRate: rate.Limit(attemptsPerMinute / 60.0),
		limiterCap:  burst,
	}
}

// Init generates and splits a fresh master key. Fails with
// ErrAlreadyInitialized when a seal configuration already exists.
func (s *sealUseCase) Init(ctx context.Context, shares, threshold int) ([]string, error) {
	if err := validateShareParams(shares, threshold); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetLatest(ctx); err == nil {
		return nil, apperrors.ErrAlreadyInitialized
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	masterKey := make([]byte, cryptoDomain.MasterKeySize)
	if _, err := rand.Read(masterKey); err != nil {
		return nil, apperrors.Wrap(err, "failed to generate master key")
	}
	defer cryptoDomain.Zero(masterKey)

	encoded, err := s.splitAndEncode(masterKey, shares, threshold)
	if err != nil {
		return nil, err
	}

	wrapped, err := s.keeper.Encrypt(ctx, masterKey)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to wrap master key")
	}

	config := &cryptoDomain.SealConfig{
		ID:                 uuid.Must(uuid.NewV7()),
		Version:            1,
		SecretShares:       shares,
		SecretThreshold:    threshold,
		EncryptedMasterKey: wrapped,
		InitializedAt:      time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, config); err != nil {
		return nil, err
	}

	s.recordSealEvent(ctx, auditDomain.EventSysSealInit, true, map[string]any{
		"shares":    shares,
		"threshold": threshold,
	})

	return encoded, nil
}

// Unseal accepts a single share. Duplicate shares within an attempt are
// ignored. Reaching the threshold triggers reconstruction and verification
// against the KEK-wrapped master key; a mismatch resets progress.
func (s *sealUseCase) Unseal(ctx context.Context, source, share string) (*cryptoDomain.SealStatus, error) {
	if !s.allowAttempt(source) {
		return nil, apperrors.Wrap(apperrors.ErrRateLimited, "too many unseal attempts")
	}

	config, err := s.repo.GetLatest(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotInitialized
		}
		return nil, err
	}

	if !s.cell.Sealed() {
		return s.statusFromConfig(config, 0), nil
	}

	decoded, err := cryptoDomain.DecodeShare(share)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[decoded[0]] = decoded
	if len(s.progress) < config.SecretThreshold {
		return s.statusFromConfig(config, len(s.progress)), nil
	}

	collected := make([][]byte, 0, len(s.progress))
	for _, sh := range s.progress {
		collected = append(collected, sh)
	}

	reconstructed, err := cryptoDomain.ShamirCombine(collected)
	if err != nil {
		s.clearProgressLocked()
		return nil, err
	}
	defer cryptoDomain.Zero(reconstructed)

	expected, err := s.keeper.Decrypt(ctx, config.EncryptedMasterKey)
	if err != nil {
		s.clearProgressLocked()
		return nil, apperrors.Wrap(err, "failed to unwrap master key")
	}
	defer cryptoDomain.Zero(expected)

	if !cryptoDomain.ConstantTimeEqual(reconstructed, expected) {
		s.clearProgressLocked()
		s.recordSealEvent(ctx, auditDomain.EventSysSealUnseal, false, map[string]any{
			"reason": "share verification failed",
		})
		return nil, apperrors.ErrInvalidShares
	}

	if err := s.cell.Set(reconstructed, config.Version); err != nil {
		s.clearProgressLocked()
		return nil, err
	}
	s.clearProgressLocked()

	s.recordSealEvent(ctx, auditDomain.EventSysSealUnseal, true, nil)

	return s.statusFromConfig(config, 0), nil
}

// Seal zeroizes the master key and resets unseal progress.
func (s *sealUseCase) Seal(ctx context.Context) error {
	s.cell.Clear()

	s.mu.Lock()
	s.clearProgressLocked()
	s.mu.Unlock()

	s.recordSealEvent(ctx, auditDomain.EventSysSealSealed, true, nil)
	return nil
}

// Status reports the current seal state.
func (s *sealUseCase) Status(ctx context.Context) (*cryptoDomain.SealStatus, error) {
	config, err := s.repo.GetLatest(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return &cryptoDomain.SealStatus{Initialized: false, Sealed: true}, nil
		}
		return nil, err
	}

	s.mu.Lock()
	progress := len(s.progress)
	s.mu.Unlock()

	return s.statusFromConfig(config, progress), nil
}

// Rekey splits the existing master key under new parameters. The master key
// itself does not change; only the share polynomial and configuration row do.
func (s *sealUseCase) Rekey(ctx context.Context, shares, threshold int) ([]string, error) {
	if err := validateShareParams(shares, threshold); err != nil {
		return nil, err
	}

	config, err := s.repo.GetLatest(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotInitialized
		}
		return nil, err
	}

	masterKey, version, err := s.cell.Copy()
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(masterKey)

	encoded, err := s.splitAndEncode(masterKey, shares, threshold)
	if err != nil {
		return nil, err
	}

	wrapped, err := s.keeper.Encrypt(ctx, masterKey)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to wrap master key")
	}

	newConfig := &cryptoDomain.SealConfig{
		ID:                 uuid.Must(uuid.NewV7()),
		Version:            config.Version + 1,
		SecretShares:       shares,
		SecretThreshold:    threshold,
		EncryptedMasterKey: wrapped,
		InitializedAt:      time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, newConfig); err != nil {
		return nil, err
	}

	if err := s.cell.Set(masterKey, version+1); err != nil {
		return nil, err
	}

	s.recordSealEvent(ctx, auditDomain.EventSysRekey, true, map[string]any{
		"shares":    shares,
		"threshold": threshold,
		"version":   newConfig.Version,
	})

	return encoded, nil
}

func (s *sealUseCase) splitAndEncode(masterKey []byte, shares, threshold int) ([]string, error) {
	raw, err := cryptoDomain.ShamirSplit(masterKey, shares, threshold)
	if err != nil {
		return nil, err
	}

	encoded := make([]string, len(raw))
	for i, sh := range raw {
		encoded[i] = cryptoDomain.EncodeShare(sh)
		cryptoDomain.Zero(sh)
	}
	return encoded, nil
}

func (s *sealUseCase) statusFromConfig(config *cryptoDomain.SealConfig, progress int) *cryptoDomain.SealStatus {
	return &cryptoDomain.SealStatus{
		Initialized: true,
		Sealed:      s.cell.Sealed(),
		Progress:    progress,
		Threshold:   config.SecretThreshold,
		Shares:      config.SecretShares,
	}
}

// clearProgressLocked zeroizes collected shares; caller holds s.mu.
func (s *sealUseCase) clearProgressLocked() {
	for x, sh := range s.progress {
		cryptoDomain.Zero(sh)
		delete(s.progress, x)
	}
}

// allowAttempt consumes one token from the source's bucket.
func (s *sealUseCase) allowAttempt(source string) bool {
	s.limiterMu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.limiterRate, s.limiterCap)
		s.limiters[source] = limiter
	}
	s.limiterMu.Unlock()

	return limiter.Allow()
}

func (s *sealUseCase) recordSealEvent(
	ctx context.Context,
	eventType auditDomain.EventType,
	success bool,
	details map[string]any,
) {
	entry := &auditDomain.Entry{
		ID:        uuid.Must(uuid.NewV7()),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		ActorType: auditDomain.ActorSystem,
		Resource:  "sys:seal",
		Action:    string(eventType),
		Success:   success,
		Details:   details,
	}
	// Seal transitions must not fail because the audit store is unavailable;
	// the record error is intentionally dropped here and surfaced by the
	// audit writer's own logging.
	_ = s.audit.Record(ctx, entry)
}

func validateShareParams(shares, threshold int) error {
	if threshold < 1 || shares < threshold || shares > cryptoDomain.MaxShamirShares {
		return apperrors.Wrapf(
			apperrors.ErrInvalidInput,
			"invalid share parameters: shares=%d threshold=%d", shares, threshold,
		)
	}
	return nil
}
