package service

import (
	"context"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	apperrors "github.com/allisson/usp/internal/errors"

	// Register KEK keeper drivers.
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// KekKeeper wraps and unwraps the master key at rest. It is satisfied by
// *secrets.Keeper from gocloud.dev, which covers cloud KMS and HSM-backed
// providers as well as the local 32-byte operator KEK (base64key://).
type KekKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KeeperService opens the configured KEK keeper.
type KeeperService interface {
	// OpenKeeper opens a keeper for the configured provider URI.
	// Supported schemes: gcpkms://, awskms://, azurekeyvault://,
	// hashivault://, base64key://.
	OpenKeeper(ctx context.Context, keyURI string) (KekKeeper, error)
}

type keeperService struct{}

// NewKeeperService creates a KeeperService backed by gocloud.dev/secrets.
func NewKeeperService() KeeperService {
	return &keeperService{}
}

func (k *keeperService) OpenKeeper(ctx context.Context, keyURI string) (KekKeeper, error) {
	if keyURI == "" {
		return nil, cryptoDomain.ErrKeeperNotConfigured
	}

	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to open KEK keeper for %q", keyURI)
	}

	return keeper, nil
}
