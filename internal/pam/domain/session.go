package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordingFormatCommandLog is the only recording format implemented:
// structured command entries. Video capture is a different product.
const RecordingFormatCommandLog = "command-log"

// PrivilegedSession is the recording attached 1:1 to a checkout.
type PrivilegedSession struct {
	ID                         uuid.UUID
	CheckoutID                 uuid.UUID
	AccountID                  uuid.UUID
	UserID                     uuid.UUID
	Protocol                   string
	Platform                   Platform
	StartedAt                  time.Time
	EndedAt                    *time.Time
	CommandCount               uint
	SuspiciousActivityDetected bool
	RecordingFormat            string
}

// SessionCommand is one append-only recorded command. SequenceNumber is
// strictly increasing per session, starting at 1.
type SessionCommand struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	SequenceNumber uint
	Command        string
	Response       string
	ExecutedAt     time.Time
	Suspicious     bool
}

// TimelineEntry is a command plus the delta since the previous one.
type TimelineEntry struct {
	Command SessionCommand
	Delta   time.Duration
}

// Frame is the playback position at a given offset into a session.
type Frame struct {
	Commands []SessionCommand
	Previous *SessionCommand
	Current  *SessionCommand
	Next     *SessionCommand
}

// SearchOptions controls session transcript search.
type SearchOptions struct {
	Regex           bool
	CaseSensitive   bool
	SearchCommands  bool
	SearchResponses bool
	ContextWindow   int
}

// SearchMatch is one hit with surrounding commands for context.
type SearchMatch struct {
	Command SessionCommand
	Context []SessionCommand
}

// ExportFormat enumerates session transcript export formats.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportHTML ExportFormat = "html"
	ExportText ExportFormat = "text"
)
