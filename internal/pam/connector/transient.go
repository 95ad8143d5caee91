package connector

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	apperrors "github.com/allisson/usp/internal/errors"
)

// transientError tags an external failure that can succeed on a later
// attempt: the target was unreachable or busy, not wrong.
type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err carries the retryable tag.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// classifyExternal wraps a provider failure as ErrExternal, tagging
// transient causes so the rotation engine can retry them before giving up.
func classifyExternal(err error) error {
	external := apperrors.Wrap(apperrors.ErrExternal, err.Error())
	if isTransientCause(err) {
		return Transient(external)
	}
	return external
}

func isTransientCause(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// 1205 lock wait timeout, 1213 deadlock.
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1205 || mysqlErr.Number == 1213
	}

	// Class 40 is transaction rollback (serialization failure, deadlock).
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "40"
	}

	return false
}
