package service

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/allisson/usp/internal/errors"
)

// Supported JWT signing algorithms.
const (
	JwtAlgorithmHS256 = "HS256"
	JwtAlgorithmRS256 = "RS256"
)

// MinHmacKeySize is the minimum HS256 key length in bytes, matching the
// SHA-256 output size.
const MinHmacKeySize = 32

type jwtClaims struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

// jwtService implements JwtService for HS256 or RS256 per configuration.
type jwtService struct {
	method     jwt.SigningMethod
	signingKey any
	verifyKey  any
}

// NewJwtService creates a JwtService. For HS256 the key is the raw HMAC
// secret and must be at least MinHmacKeySize bytes; for RS256 the key is a
// PEM-encoded RSA private key (PKCS#1 or PKCS#8). Key validation happens
// here so a misconfigured deployment fails at startup rather than at first
// login.
func NewJwtService(algorithm string, key []byte) (JwtService, error) {
	switch algorithm {
	case JwtAlgorithmHS256:
		if len(key) < MinHmacKeySize {
			return nil, apperrors.Wrapf(
				apperrors.ErrInvalidInput,
				"HS256 signing key must be at least %d bytes", MinHmacKeySize,
			)
		}
		return &jwtService{method: jwt.SigningMethodHS256, signingKey: key, verifyKey: key}, nil
	case JwtAlgorithmRS256:
		privateKey, err := parseRSAPrivateKey(key)
		if err != nil {
			return nil, err
		}
		return &jwtService{
			method:     jwt.SigningMethodRS256,
			signingKey: privateKey,
			verifyKey:  &privateKey.PublicKey,
		}, nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "unsupported jwt algorithm %q", algorithm)
	}
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "RS256 signing key is not valid PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "failed to parse RS256 signing key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "RS256 signing key is not an RSA key")
	}
	return key, nil
}

func (j *jwtService) Sign(claims AccessTokenClaims, ttl time.Duration) (string, string, error) {
	now := time.Now().UTC()
	jti := uuid.Must(uuid.NewV7()).String()

	token := jwt.NewWithClaims(j.method, &jwtClaims{
		Name:       claims.Name,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		Roles:      claims.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID.String(),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(j.signingKey)
	if err != nil {
		return "", "", apperrors.Wrap(err, "failed to sign access token")
	}
	return signed, jti, nil
}

func (j *jwtService) Parse(token string) (*AccessTokenClaims, error) {
	var claims jwtClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return j.verifyKey, nil
	}, jwt.WithValidMethods([]string{j.method.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "invalid access token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "invalid access token subject")
	}

	return &AccessTokenClaims{
		UserID:     userID,
		Name:       claims.Name,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		Roles:      claims.Roles,
	}, nil
}
