package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"html/template"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/usp/internal/audit/domain"
	"github.com/allisson/usp/internal/database"
	apperrors "github.com/allisson/usp/internal/errors"
	pamDomain "github.com/allisson/usp/internal/pam/domain"
	pamService "github.com/allisson/usp/internal/pam/service"
)

// sessionUseCase implements SessionUseCase.
type sessionUseCase struct {
	txManager   database.TxManager
	sessionRepo SessionRepository
	detector    *pamService.SuspiciousDetector
	audit       auditDomain.Recorder
	logger      *slog.Logger
}

// NewSessionUseCase creates the session recording and playback use case.
func NewSessionUseCase(
	txManager database.TxManager,
	sessionRepo SessionRepository,
	detector *pamService.SuspiciousDetector,
	audit auditDomain.Recorder,
	logger *slog.Logger,
) SessionUseCase {
	return &sessionUseCase{
		txManager:   txManager,
		sessionRepo: sessionRepo,
		detector:    detector,
		audit:       audit,
		logger:      logger,
	}
}

func (s *sessionUseCase) RecordCommand(
	ctx context.Context,
	sessionID uuid.UUID,
	command, response string,
) (*pamDomain.SessionCommand, error) {
	var (
		recorded *pamDomain.SessionCommand
		flagged  []string
	)

	now := time.Now().UTC()
	err := s.txManager.WithTx(ctx, func(ctx context.Context) error {
		// The session row lock serializes appends so sequence numbers are
		// assigned strictly increasing with no gaps.
		session, err := s.sessionRepo.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.EndedAt != nil {
			return apperrors.Wrap(apperrors.ErrInvalidState, "session recording has ended")
		}

		matches := s.detector.Evaluate(command)
		entry := &pamDomain.SessionCommand{
			ID:             uuid.Must(uuid.NewV7()),
			SessionID:      session.ID,
			SequenceNumber: session.CommandCount + 1,
			Command:        command,
			Response:       response,
			ExecutedAt:     now,
			Suspicious:     len(matches) > 0,
		}
		if err := s.sessionRepo.AppendCommand(ctx, entry); err != nil {
			return err
		}

		session.CommandCount = entry.SequenceNumber
		if entry.Suspicious && !session.SuspiciousActivityDetected {
			session.SuspiciousActivityDetected = true
			flagged = matches
		}
		if err := s.sessionRepo.Update(ctx, session); err != nil {
			return err
		}

		recorded = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	resource := "session:" + sessionID.String()
	recordPamEvent(ctx, s.audit, s.logger, auditDomain.EventPamSessionCommand, resource, "command", nil, map[string]any{
		"sequence": recorded.SequenceNumber,
	})
	if flagged != nil {
		recordPamEvent(ctx, s.audit, s.logger, auditDomain.EventPamSessionFlagged, resource, "flag", nil, map[string]any{
			"rules": flagged,
		})
	}

	return recorded, nil
}

func (s *sessionUseCase) End(ctx context.Context, sessionID uuid.UUID) error {
	now := time.Now().UTC()
	return s.txManager.WithTx(ctx, func(ctx context.Context) error {
		session, err := s.sessionRepo.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.EndedAt != nil {
			return nil
		}
		session.EndedAt = &now
		return s.sessionRepo.Update(ctx, session)
	})
}

func (s *sessionUseCase) Timeline(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]pamDomain.TimelineEntry, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	commands, err := s.sessionRepo.ListCommands(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	entries := make([]pamDomain.TimelineEntry, 0, len(commands))
	previous := session.StartedAt
	for _, command := range commands {
		entries = append(entries, pamDomain.TimelineEntry{
			Command: command,
			Delta:   command.ExecutedAt.Sub(previous),
		})
		previous = command.ExecutedAt
	}
	return entries, nil
}

func (s *sessionUseCase) FrameAt(
	ctx context.Context,
	sessionID uuid.UUID,
	offset time.Duration,
) (*pamDomain.Frame, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	commands, err := s.sessionRepo.ListCommands(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cutoff := session.StartedAt.Add(offset)
	frame := &pamDomain.Frame{Commands: make([]pamDomain.SessionCommand, 0)}
	for i := range commands {
		if commands[i].ExecutedAt.After(cutoff) {
			frame.Next = &commands[i]
			break
		}
		frame.Commands = append(frame.Commands, commands[i])
	}

	if n := len(frame.Commands); n > 0 {
		frame.Current = &frame.Commands[n-1]
		if n > 1 {
			frame.Previous = &frame.Commands[n-2]
		}
	}
	return frame, nil
}

func (s *sessionUseCase) Search(
	ctx context.Context,
	sessionID uuid.UUID,
	term string,
	options pamDomain.SearchOptions,
) ([]pamDomain.SearchMatch, error) {
	if term == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "search term is required")
	}
	if !options.SearchCommands && !options.SearchResponses {
		options.SearchCommands = true
	}

	matcher, err := buildMatcher(term, options)
	if err != nil {
		return nil, err
	}

	commands, err := s.sessionRepo.ListCommands(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	matches := make([]pamDomain.SearchMatch, 0)
	for i, command := range commands {
		hit := options.SearchCommands && matcher(command.Command) ||
			options.SearchResponses && matcher(command.Response)
		if !hit {
			continue
		}

		window := options.ContextWindow
		lo := max(0, i-window)
		hi := min(len(commands), i+window+1)
		matches = append(matches, pamDomain.SearchMatch{
			Command: command,
			Context: commands[lo:hi],
		})
	}
	return matches, nil
}

func buildMatcher(term string, options pamDomain.SearchOptions) (func(string) bool, error) {
	if options.Regex {
		pattern := term
		if !options.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid search pattern: %s", err)
		}
		return re.MatchString, nil
	}

	if options.CaseSensitive {
		return func(text string) bool { return strings.Contains(text, term) }, nil
	}
	lowered := strings.ToLower(term)
	return func(text string) bool {
		return strings.Contains(strings.ToLower(text), lowered)
	}, nil
}

// exportColumns is the fixed field order of csv and text exports.
var exportColumns = []string{"sequence", "executed_at", "suspicious", "command", "response"}

func (s *sessionUseCase) Export(
	ctx context.Context,
	sessionID uuid.UUID,
	format pamDomain.ExportFormat,
) ([]byte, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	commands, err := s.sessionRepo.ListCommands(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var out []byte
	switch format {
	case pamDomain.ExportJSON:
		out, err = exportJSON(session, commands)
	case pamDomain.ExportCSV:
		out, err = exportCSV(commands)
	case pamDomain.ExportHTML:
		out, err = exportHTML(session, commands)
	case pamDomain.ExportText:
		out, err = exportText(session, commands), nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown export format %q", format)
	}
	if err != nil {
		return nil, err
	}

	recordPamEvent(ctx, s.audit, s.logger, auditDomain.EventAuditExport,
		"session:"+sessionID.String(), "export", nil, map[string]any{
			"format": string(format),
		})
	return out, nil
}

func exportJSON(session *pamDomain.PrivilegedSession, commands []pamDomain.SessionCommand) ([]byte, error) {
	payload := struct {
		Session  *pamDomain.PrivilegedSession `json:"session"`
		Commands []pamDomain.SessionCommand   `json:"commands"`
	}{Session: session, Commands: commands}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode session export")
	}
	return out, nil
}

func exportCSV(commands []pamDomain.SessionCommand) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(exportColumns); err != nil {
		return nil, apperrors.Wrap(err, "failed to write csv header")
	}
	for _, command := range commands {
		record := []string{
			strconv.FormatUint(uint64(command.SequenceNumber), 10),
			command.ExecutedAt.UTC().Format(time.RFC3339Nano),
			strconv.FormatBool(command.Suspicious),
			command.Command,
			command.Response,
		}
		if err := writer.Write(record); err != nil {
			return nil, apperrors.Wrap(err, "failed to write csv record")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, apperrors.Wrap(err, "failed to flush csv export")
	}
	return buf.Bytes(), nil
}

var htmlExportTemplate = template.Must(template.New("session").Parse(`<!doctype html>
<html><head><title>Session {{.Session.ID}}</title></head><body>
<h1>Privileged session {{.Session.ID}}</h1>
<p>Started {{.Session.StartedAt}} · {{.Session.CommandCount}} commands</p>
<table border="1">
<tr><th>#</th><th>Executed</th><th>Suspicious</th><th>Command</th><th>Response</th></tr>
{{range .Commands}}<tr><td>{{.SequenceNumber}}</td><td>{{.ExecutedAt}}</td><td>{{.Suspicious}}</td><td><code>{{.Command}}</code></td><td><code>{{.Response}}</code></td></tr>
{{end}}</table></body></html>
`))

func exportHTML(session *pamDomain.PrivilegedSession, commands []pamDomain.SessionCommand) ([]byte, error) {
	var buf bytes.Buffer
	err := htmlExportTemplate.Execute(&buf, struct {
		Session  *pamDomain.PrivilegedSession
		Commands []pamDomain.SessionCommand
	}{Session: session, Commands: commands})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to render html export")
	}
	return buf.Bytes(), nil
}

func exportText(session *pamDomain.PrivilegedSession, commands []pamDomain.SessionCommand) []byte {
	var buf bytes.Buffer
	buf.WriteString("session " + session.ID.String() + " started " +
		session.StartedAt.UTC().Format(time.RFC3339) + "\n")
	for _, command := range commands {
		buf.WriteString(strconv.FormatUint(uint64(command.SequenceNumber), 10))
		buf.WriteString("\t" + command.ExecutedAt.UTC().Format(time.RFC3339Nano))
		if command.Suspicious {
			buf.WriteString("\t[suspicious]")
		}
		buf.WriteString("\t" + command.Command + "\n")
		if command.Response != "" {
			buf.WriteString("\t> " + command.Response + "\n")
		}
	}
	return buf.Bytes()
}
