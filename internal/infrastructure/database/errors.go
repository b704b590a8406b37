package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrConnectionClosed is returned when a call cannot be delivered because the
// worker pool it targets has stopped. Calling Write or Read after Close is the
// usual cause.
var ErrConnectionClosed = errors.New("database: connection closed")

// ErrUnknownSchemaVersion is returned by Open, wrapped in an ApplicationError,
// when the database records a migration version that this binary does not ship.
var ErrUnknownSchemaVersion = errors.New("database: schema version not known to this binary")

// EngineError wraps a failure reported by SQLite or database/sql: constraint
// violations, malformed SQL, I/O errors, and lock waits that exceeded the busy
// timeout. The original error is preserved and reachable with errors.As.
type EngineError struct {
	// Op describes what the actor was doing, e.g. "open writer" or "call".
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("database engine: %v", e.Err)
	}
	return fmt.Sprintf("database engine: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// ApplicationError wraps an error produced by a caller-supplied closure, such as
// a migration failure or a business rule rejected inside a transaction.
type ApplicationError struct {
	Err error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("database application: %v", e.Err)
}

func (e *ApplicationError) Unwrap() error { return e.Err }

// IsEngine reports whether err is, or wraps, an EngineError.
func IsEngine(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}

// IsApplication reports whether err is, or wraps, an ApplicationError.
func IsApplication(err error) bool {
	var ae *ApplicationError
	return errors.As(err, &ae)
}

// classify sorts an error returned from a closure into the actor's taxonomy.
// Errors that already carry a kind pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnectionClosed) || IsEngine(err) || IsApplication(err) {
		return err
	}
	if isEngineFailure(err) {
		return &EngineError{Op: op, Err: err}
	}
	return &ApplicationError{Err: err}
}

// isEngineFailure reports whether err originates in the SQL engine or driver.
func isEngineFailure(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return true
	}
	return errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, sql.ErrTxDone) ||
		errors.Is(err, sql.ErrConnDone)
}

// IsConstraintViolation reports whether err is a SQLite constraint failure
// (unique, foreign key, check, not null).
func IsConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrConstraint
}
