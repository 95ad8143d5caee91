package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/allisson/usp/internal/errors"
)

const (
	// EnvelopePrefix marks all ciphertext, signature, and HMAC envelopes.
	EnvelopePrefix = "vault"

	// NonceSize is the AES-GCM nonce size in bytes.
	NonceSize = 12

	// TagSize is the AES-GCM authentication tag size in bytes.
	TagSize = 16
)

// Envelope is the self-describing ciphertext format produced by the
// encryption service and the transit engine:
//
//	vault:v{keyVersion}:{base64(nonce)}:{base64(tag)}:{base64(ciphertext)}
//
// The nonce is exactly 12 bytes and the tag exactly 16 bytes. The key
// version names the key version in effect at encryption time so that
// rotation never breaks previously emitted ciphertexts.
type Envelope struct {
	Version    uint
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// ParseEnvelope parses the string form of a ciphertext envelope.
// Returns ErrIntegrity for any malformed input so callers can treat a
// bad envelope the same way as tampered ciphertext.
func ParseEnvelope(content string) (Envelope, error) {
	parts := strings.Split(content, ":")
	if len(parts) != 5 || parts[0] != EnvelopePrefix {
		return Envelope{}, apperrors.Wrap(apperrors.ErrIntegrity, "malformed ciphertext envelope")
	}

	version, err := parseVersionField(parts[1])
	if err != nil {
		return Envelope{}, err
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(nonce) != NonceSize {
		return Envelope{}, apperrors.Wrap(apperrors.ErrIntegrity, "invalid envelope nonce")
	}

	tag, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil || len(tag) != TagSize {
		return Envelope{}, apperrors.Wrap(apperrors.ErrIntegrity, "invalid envelope tag")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return Envelope{}, apperrors.Wrap(apperrors.ErrIntegrity, "invalid envelope ciphertext")
	}

	return Envelope{Version: version, Nonce: nonce, Tag: tag, Ciphertext: ciphertext}, nil
}

// String serializes the envelope to its wire form.
func (e Envelope) String() string {
	return fmt.Sprintf(
		"%s:v%d:%s:%s:%s",
		EnvelopePrefix,
		e.Version,
		base64.StdEncoding.EncodeToString(e.Nonce),
		base64.StdEncoding.EncodeToString(e.Tag),
		base64.StdEncoding.EncodeToString(e.Ciphertext),
	)
}

// SignedEnvelope is the format shared by signatures and HMACs:
//
//	vault:v{keyVersion}:{alg}:{base64(bytes)}
//
// alg is a supported hash algorithm name (sha2-256 or sha2-512). For
// signatures the bytes are PKCS#1 v1.5 for RSA, DER-encoded for ECDSA,
// and the raw 64 bytes for Ed25519.
type SignedEnvelope struct {
	Version   uint
	Algorithm string
	Bytes     []byte
}

// ParseSignedEnvelope parses the string form of a signature or HMAC envelope.
func ParseSignedEnvelope(content string) (SignedEnvelope, error) {
	parts := strings.Split(content, ":")
	if len(parts) != 4 || parts[0] != EnvelopePrefix {
		return SignedEnvelope{}, apperrors.Wrap(apperrors.ErrIntegrity, "malformed signature envelope")
	}

	version, err := parseVersionField(parts[1])
	if err != nil {
		return SignedEnvelope{}, err
	}

	if parts[2] == "" {
		return SignedEnvelope{}, apperrors.Wrap(apperrors.ErrIntegrity, "missing signature algorithm")
	}

	raw, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return SignedEnvelope{}, apperrors.Wrap(apperrors.ErrIntegrity, "invalid signature base64")
	}

	return SignedEnvelope{Version: version, Algorithm: parts[2], Bytes: raw}, nil
}

// String serializes the signed envelope to its wire form.
func (s SignedEnvelope) String() string {
	return fmt.Sprintf(
		"%s:v%d:%s:%s",
		EnvelopePrefix,
		s.Version,
		s.Algorithm,
		base64.StdEncoding.EncodeToString(s.Bytes),
	)
}

// parseVersionField parses the "v{N}" version field common to all envelopes.
func parseVersionField(field string) (uint, error) {
	if !strings.HasPrefix(field, "v") {
		return 0, apperrors.Wrap(apperrors.ErrIntegrity, "invalid envelope version field")
	}
	version, err := strconv.ParseUint(field[1:], 10, 32)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrIntegrity, "invalid envelope version number")
	}
	return uint(version), nil
}
