// Package service implements the cryptographic operations behind the
// transit engine: key generation per type, signatures, HMAC, and HKDF
// subkey derivation. Persistence and policy live in the usecase layer.
package service

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"io"

	"golang.org/x/crypto/hkdf"

	cryptoDomain "github.com/allisson/usp/internal/crypto/domain"
	apperrors "github.com/allisson/usp/internal/errors"
	transitDomain "github.com/allisson/usp/internal/transit/domain"
)

const publicKeyPEMType = "PUBLIC KEY"

// KeyOperations performs type-dispatched cryptographic operations on raw
// transit key material. Material layouts by type:
//
//   - aes256-gcm: 32 raw bytes
//   - rsa-2048/rsa-4096: PKCS#1 DER private key
//   - ecdsa-p256: SEC 1 DER private key
//   - ed25519: the 64-byte private key
//
// Public keys are PKIX DER wrapped in PEM.
type KeyOperations interface {
	// Generate creates fresh key material for the type. publicKey is nil
	// for symmetric types.
	Generate(keyType transitDomain.KeyType) (material, publicKey []byte, err error)

	// Sign produces a signature over input with an asymmetric key.
	Sign(keyType transitDomain.KeyType, material, input []byte, alg transitDomain.HashAlgorithm) ([]byte, error)

	// Verify checks a signature against the PEM public key. A well-formed
	// but wrong signature returns (false, nil).
	Verify(keyType transitDomain.KeyType, publicKey, input, signature []byte, alg transitDomain.HashAlgorithm) (bool, error)

	// Hmac computes an HMAC over input with symmetric key material.
	Hmac(material, input []byte, alg transitDomain.HashAlgorithm) ([]byte, error)

	// DeriveKey derives a per-context 32-byte subkey from symmetric material.
	DeriveKey(material, context []byte) ([]byte, error)
}

// keyOperations implements KeyOperations.
type keyOperations struct{}

// NewKeyOperations creates the transit key operations service.
func NewKeyOperations() KeyOperations {
	return &keyOperations{}
}

func (k *keyOperations) Generate(keyType transitDomain.KeyType) ([]byte, []byte, error) {
	switch keyType {
	case transitDomain.KeyTypeAES256GCM:
		material := make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, nil, apperrors.Wrap(err, "failed to generate symmetric key")
		}
		return material, nil, nil

	case transitDomain.KeyTypeRSA2048, transitDomain.KeyTypeRSA4096:
		bits := 2048
		if keyType == transitDomain.KeyTypeRSA4096 {
			bits = 4096
		}
		private, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, nil, apperrors.Wrap(err, "failed to generate RSA key")
		}
		publicKey, err := marshalPublicKey(&private.PublicKey)
		if err != nil {
			return nil, nil, err
		}
		return x509.MarshalPKCS1PrivateKey(private), publicKey, nil

	case transitDomain.KeyTypeECDSAP256:
		private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, apperrors.Wrap(err, "failed to generate ECDSA key")
		}
		material, err := x509.MarshalECPrivateKey(private)
		if err != nil {
			return nil, nil, apperrors.Wrap(err, "failed to marshal ECDSA key")
		}
		publicKey, err := marshalPublicKey(&private.PublicKey)
		if err != nil {
			return nil, nil, err
		}
		return material, publicKey, nil

	case transitDomain.KeyTypeEd25519:
		public, private, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, apperrors.Wrap(err, "failed to generate Ed25519 key")
		}
		publicKey, err := marshalPublicKey(public)
		if err != nil {
			return nil, nil, err
		}
		return private, publicKey, nil

	default:
		return nil, nil, apperrors.Wrapf(apperrors.ErrNotSupported, "unsupported key type %q", keyType)
	}
}

func (k *keyOperations) Sign(
	keyType transitDomain.KeyType,
	material, input []byte,
	alg transitDomain.HashAlgorithm,
) ([]byte, error) {
	hash, err := hashFor(alg)
	if err != nil {
		return nil, err
	}

	switch keyType {
	case transitDomain.KeyTypeRSA2048, transitDomain.KeyTypeRSA4096:
		private, err := x509.ParsePKCS1PrivateKey(material)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse RSA key material")
		}
		digest := digestOf(hash, input)
		signature, err := rsa.SignPKCS1v15(rand.Reader, private, hash, digest)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to sign with RSA key")
		}
		return signature, nil

	case transitDomain.KeyTypeECDSAP256:
		private, err := x509.ParseECPrivateKey(material)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse ECDSA key material")
		}
		digest := digestOf(hash, input)
		signature, err := ecdsa.SignASN1(rand.Reader, private, digest)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to sign with ECDSA key")
		}
		return signature, nil

	case transitDomain.KeyTypeEd25519:
		if len(material) != ed25519.PrivateKeySize {
			return nil, apperrors.Wrap(apperrors.ErrIntegrity, "invalid Ed25519 key material")
		}
		// Ed25519 hashes internally; alg is validated but not applied.
		return ed25519.Sign(ed25519.PrivateKey(material), input), nil

	default:
		return nil, apperrors.Wrapf(apperrors.ErrNotSupported, "key type %q cannot sign", keyType)
	}
}

func (k *keyOperations) Verify(
	keyType transitDomain.KeyType,
	publicKey, input, signature []byte,
	alg transitDomain.HashAlgorithm,
) (bool, error) {
	hash, err := hashFor(alg)
	if err != nil {
		return false, err
	}

	parsed, err := parsePublicKey(publicKey)
	if err != nil {
		return false, err
	}

	switch keyType {
	case transitDomain.KeyTypeRSA2048, transitDomain.KeyTypeRSA4096:
		rsaKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return false, apperrors.Wrap(apperrors.ErrIntegrity, "public key is not RSA")
		}
		digest := digestOf(hash, input)
		return rsa.VerifyPKCS1v15(rsaKey, hash, digest, signature) == nil, nil

	case transitDomain.KeyTypeECDSAP256:
		ecdsaKey, ok := parsed.(*ecdsa.PublicKey)
		if !ok {
			return false, apperrors.Wrap(apperrors.ErrIntegrity, "public key is not ECDSA")
		}
		digest := digestOf(hash, input)
		return ecdsa.VerifyASN1(ecdsaKey, digest, signature), nil

	case transitDomain.KeyTypeEd25519:
		edKey, ok := parsed.(ed25519.PublicKey)
		if !ok {
			return false, apperrors.Wrap(apperrors.ErrIntegrity, "public key is not Ed25519")
		}
		return ed25519.Verify(edKey, input, signature), nil

	default:
		return false, apperrors.Wrapf(apperrors.ErrNotSupported, "key type %q cannot verify", keyType)
	}
}

func (k *keyOperations) Hmac(material, input []byte, alg transitDomain.HashAlgorithm) ([]byte, error) {
	hash, err := hashFor(alg)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(hash.New, material)
	mac.Write(input)
	return mac.Sum(nil), nil
}

func (k *keyOperations) DeriveKey(material, context []byte) ([]byte, error) {
	if len(context) == 0 {
		return nil, transitDomain.ErrContextRequired
	}

	derived := make([]byte, cryptoDomain.MasterKeySize)
	reader := hkdf.New(sha256.New, material, nil, context)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, apperrors.Wrap(err, "failed to derive subkey")
	}
	return derived, nil
}

func hashFor(alg transitDomain.HashAlgorithm) (crypto.Hash, error) {
	switch alg {
	case transitDomain.HashSHA256:
		return crypto.SHA256, nil
	case transitDomain.HashSHA512:
		return crypto.SHA512, nil
	default:
		return 0, apperrors.Wrapf(apperrors.ErrNotSupported, "unsupported hash algorithm %q", alg)
	}
}

func digestOf(hash crypto.Hash, input []byte) []byte {
	switch hash {
	case crypto.SHA512:
		sum := sha512.Sum512(input)
		return sum[:]
	default:
		sum := sha256.Sum256(input)
		return sum[:]
	}
}

func marshalPublicKey(key any) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal public key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: der}), nil
}

func parsePublicKey(pemBytes []byte) (any, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != publicKeyPEMType {
		return nil, apperrors.Wrap(apperrors.ErrIntegrity, "malformed public key PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to parse public key")
	}
	return parsed, nil
}
