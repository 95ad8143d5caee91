package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	apperrors "github.com/allisson/usp/internal/errors"
)

// Shamir secret sharing over GF(2⁸) with the AES irreducible polynomial 0x11B.
//
// A 32-byte master key is split byte-wise: each byte position gets its own
// random polynomial of degree threshold-1 whose constant term is the secret
// byte. A share is the polynomial evaluations at a fixed x-coordinate for
// every byte position, prefixed with the x-coordinate itself:
//
//	share = x (1 byte) || y₀..y₃₁ (32 bytes)
//
// Any threshold distinct shares reconstruct the key by Lagrange interpolation
// at x=0; fewer shares reveal nothing about the key.

const (
	// ShamirSecretSize is the size of the secret being split (the master key).
	ShamirSecretSize = 32

	// ShamirShareSize is the wire size of one share: x-coordinate plus one
	// y-byte per secret byte.
	ShamirShareSize = ShamirSecretSize + 1

	// MaxShamirShares is the maximum share count; x-coordinates live in 1..255.
	MaxShamirShares = 255
)

// gfExp and gfLog are the exponentiation and logarithm tables for GF(2⁸)
// generated by 3, satisfying gfLog[gfExp[i]] = i for i in 0..254.
var (
	gfExp [256]byte
	gfLog [256]byte
)

func init() {
	x := byte(1)
	for i := 0; i < 255; i++ {
		gfExp[i] = x
		gfLog[x] = byte(i)
		// Multiply x by the generator 3 (x ⊕ x·2) modulo 0x11B.
		x = x ^ gfMulNoTable(x, 2)
	}
	gfExp[255] = gfExp[0]
}

// gfMulNoTable multiplies in GF(2⁸) by repeated shifting, used only to build
// the lookup tables at startup.
func gfMulNoTable(a, b byte) byte {
	var p byte
	for b > 0 {
		if b&1 == 1 {
			p ^= a
		}
		carry := a & 0x80
		a <<= 1
		if carry != 0 {
			a ^= 0x1B
		}
		b >>= 1
	}
	return p
}

// gfMul multiplies two field elements using the log/exp tables.
func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[(int(gfLog[a])+int(gfLog[b]))%255]
}

// gfDiv divides a by b in GF(2⁸). Division by zero panics; callers guarantee
// distinct x-coordinates so denominators are never zero.
func gfDiv(a, b byte) byte {
	if b == 0 {
		panic("division by zero in GF(2^8)")
	}
	if a == 0 {
		return 0
	}
	return gfExp[(int(gfLog[a])-int(gfLog[b])+255)%255]
}

// evalPolynomial evaluates a polynomial with the given coefficients at x
// using Horner's method. coefficients[0] is the constant term.
func evalPolynomial(coefficients []byte, x byte) byte {
	result := byte(0)
	for i := len(coefficients) - 1; i >= 0; i-- {
		result = gfMul(result, x) ^ coefficients[i]
	}
	return result
}

// ShamirSplit splits a secret into shares requiring threshold of them to
// reconstruct. Constraints: 1 ≤ threshold ≤ shares ≤ 255 and the secret must
// be exactly ShamirSecretSize bytes.
func ShamirSplit(secret []byte, shares, threshold int) ([][]byte, error) {
	if len(secret) != ShamirSecretSize {
		return nil, apperrors.Wrapf(
			apperrors.ErrInvalidInput,
			"secret must be %d bytes, got %d", ShamirSecretSize, len(secret),
		)
	}
	if threshold < 1 || shares < threshold || shares > MaxShamirShares {
		return nil, apperrors.Wrapf(
			apperrors.ErrInvalidInput,
			"invalid share parameters: shares=%d threshold=%d", shares, threshold,
		)
	}

	out := make([][]byte, shares)
	for i := range out {
		out[i] = make([]byte, ShamirShareSize)
		out[i][0] = byte(i + 1)
	}

	coefficients := make([]byte, threshold)
	defer Zero(coefficients)

	for pos, secretByte := range secret {
		coefficients[0] = secretByte
		if threshold > 1 {
			if _, err := rand.Read(coefficients[1:]); err != nil {
				return nil, apperrors.Wrap(err, "failed to generate polynomial coefficients")
			}
		}
		for i := range out {
			out[i][pos+1] = evalPolynomial(coefficients, out[i][0])
		}
	}

	return out, nil
}

// ShamirCombine reconstructs the secret from shares via Lagrange interpolation
// at x=0. Shares must be well-formed and carry distinct x-coordinates; the
// caller is responsible for supplying at least the original threshold, since
// the math cannot detect an insufficient count (it yields garbage that fails
// the master-key verification step instead).
func ShamirCombine(shares [][]byte) ([]byte, error) {
	if len(shares) < 1 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "at least one share is required")
	}

	seen := make(map[byte]bool, len(shares))
	for _, share := range shares {
		if len(share) != ShamirShareSize {
			return nil, apperrors.Wrapf(
				apperrors.ErrInvalidInput,
				"share must be %d bytes, got %d", ShamirShareSize, len(share),
			)
		}
		x := share[0]
		if x == 0 {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "share x-coordinate must not be zero")
		}
		if seen[x] {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "duplicate share x-coordinate %d", x)
		}
		seen[x] = true
	}

	secret := make([]byte, ShamirSecretSize)
	for pos := 0; pos < ShamirSecretSize; pos++ {
		var value byte
		for i, shareI := range shares {
			// Lagrange basis weight for shareI evaluated at x=0.
			basis := byte(1)
			for j, shareJ := range shares {
				if i == j {
					continue
				}
				basis = gfMul(basis, gfDiv(shareJ[0], shareJ[0]^shareI[0]))
			}
			value ^= gfMul(basis, shareI[pos+1])
		}
		secret[pos] = value
	}

	return secret, nil
}

// EncodeShare serializes a raw share to the base64 text form handed to
// operators.
func EncodeShare(share []byte) string {
	return base64.StdEncoding.EncodeToString(share)
}

// DecodeShare parses an operator-supplied base64 share and validates its size.
func DecodeShare(encoded string) ([]byte, error) {
	share, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "share is not valid base64")
	}
	if len(share) != ShamirShareSize {
		return nil, apperrors.Wrapf(
			apperrors.ErrInvalidInput,
			"share must decode to %d bytes, got %d", ShamirShareSize, len(share),
		)
	}
	return share, nil
}

// ConstantTimeEqual compares two byte slices without leaking timing
// information, used to verify a reconstructed master key.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
