// Package domain defines the tamper-evident audit log model.
//
// Every component of the platform records its operations here. Entries form
// a hash chain: each entry's hash covers the previous entry's hash plus a
// canonical serialization of the entry itself, so any mutation of a stored
// record breaks the chain at a nameable position.
package domain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/usp/internal/errors"
)

// HashSize is the size of entry hashes (SHA-256).
const HashSize = sha256.Size

// ActorType identifies the kind of principal behind an audit entry.
type ActorType string

const (
	ActorUser    ActorType = "user"
	ActorService ActorType = "service"
	ActorSystem  ActorType = "system"
)

// Entry is one audit record. PreviousHash and ThisHash implement the chain:
// ThisHash = SHA-256(PreviousHash ‖ canonical(entry without ThisHash)).
type Entry struct {
	ID            uuid.UUID
	Timestamp     time.Time
	EventType     EventType
	ActorType     ActorType
	ActorID       uuid.UUID
	ActorName     string
	Resource      string
	Action        string
	Success       bool
	IPAddress     string
	UserAgent     string
	Details       map[string]any
	CorrelationID string
	PreviousHash  []byte
	ThisHash      []byte

	// Sensitive marks entries whose details should be encrypted with the
	// master key before they are hashed and stored. The flag itself is not
	// persisted; only the (possibly encrypted) stored form enters the chain.
	Sensitive bool
}

// EncryptedDetailsKey is the single key under which encrypted details are
// stored: {"enc": "vault:v…"}.
const EncryptedDetailsKey = "enc"

// Canonicalize produces the deterministic byte representation hashed into
// the chain. Variable-length fields are length-prefixed to prevent
// ambiguity; the timestamp is encoded as big-endian Unix nanoseconds.
func (e *Entry) Canonicalize() ([]byte, error) {
	buf := make([]byte, 0, 1024)

	buf = append(buf, e.ID[:]...)

	timeBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(timeBytes, uint64(e.Timestamp.UnixNano()))
	buf = append(buf, timeBytes...)

	buf = appendLengthPrefixed(buf, []byte(string(e.EventType)))
	buf = appendLengthPrefixed(buf, []byte(string(e.ActorType)))
	buf = append(buf, e.ActorID[:]...)
	buf = appendLengthPrefixed(buf, []byte(e.ActorName))
	buf = appendLengthPrefixed(buf, []byte(e.Resource))
	buf = appendLengthPrefixed(buf, []byte(e.Action))

	if e.Success {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	buf = appendLengthPrefixed(buf, []byte(e.IPAddress))
	buf = appendLengthPrefixed(buf, []byte(e.UserAgent))

	if e.Details != nil {
		detailBytes, err := json.Marshal(e.Details)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal audit details")
		}
		buf = appendLengthPrefixed(buf, detailBytes)
	} else {
		buf = appendLengthPrefixed(buf, nil)
	}

	buf = appendLengthPrefixed(buf, []byte(e.CorrelationID))

	return buf, nil
}

// ComputeHash computes the chained hash for this entry given the previous
// entry's hash (or 32 zero bytes for the first record).
func (e *Entry) ComputeHash(previousHash []byte) ([]byte, error) {
	if len(previousHash) == 0 {
		previousHash = make([]byte, HashSize)
	}

	canonical, err := e.Canonicalize()
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	h.Write(previousHash)
	h.Write(canonical)
	return h.Sum(nil), nil
}

// HashEqual compares two chain hashes. Hashes are public values, so a
// plain comparison suffices.
func HashEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// appendLengthPrefixed adds a 4-byte big-endian length prefix followed by data.
func appendLengthPrefixed(buf []byte, data []byte) []byte {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	buf = append(buf, length...)
	buf = append(buf, data...)
	return buf
}

// Recorder is the write-side interface the rest of the platform records
// through. Implementations serialize appends to preserve the hash chain and
// apply backpressure rather than dropping records.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// Filter selects audit entries for search and export.
// Zero values mean "no constraint"; Resource matches by prefix and
// DetailsText is a full-text match against the serialized details.
type Filter struct {
	ActorID       uuid.UUID
	EventType     EventType
	Resource      string
	Action        string
	Success       *bool
	IPAddress     string
	CorrelationID string
	Start         time.Time
	End           time.Time
	DetailsText   string
}

// MaxPageSize caps audit search pagination.
const MaxPageSize = 1000

// IntegrityReport names the first break in a verified chain range, if any.
type IntegrityReport struct {
	Checked    int
	Intact     bool
	FirstBreak uuid.UUID
	Reason     string
}
