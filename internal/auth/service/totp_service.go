package service

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	apperrors "github.com/allisson/usp/internal/errors"
)

// totpService implements TotpService per RFC 6238: 30-second steps, 6-digit
// codes, one step of clock skew in either direction.
type totpService struct {
	issuer string
}

// NewTotpService creates a TotpService. The issuer appears in authenticator
// apps when a secret is provisioned.
func NewTotpService(issuer string) TotpService {
	return &totpService{issuer: issuer}
}

func (t *totpService) GenerateSecret(accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", apperrors.Wrap(err, "failed to generate totp secret")
	}
	return key.Secret(), nil
}

func (t *totpService) Validate(code, secret string, at time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}
