package domain

import (
	"time"

	"github.com/google/uuid"
)

// SealConfig is the persisted seal configuration written once at init and
// replaced (with an incremented version) only by a rekey. The master key is
// stored KEK-wrapped; the plaintext key never touches the database.
//
// Invariant: 1 ≤ SecretThreshold ≤ SecretShares ≤ 255.
type SealConfig struct {
	ID                 uuid.UUID
	Version            uint
	SecretShares       int
	SecretThreshold    int
	EncryptedMasterKey []byte
	InitializedAt      time.Time
}

// SealStatus is the externally visible seal state. It never carries key
// material or shares.
type SealStatus struct {
	Initialized bool
	Sealed      bool
	Progress    int
	Threshold   int
	Shares      int
}
