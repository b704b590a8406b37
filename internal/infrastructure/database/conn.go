package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// File and connection constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// driverName is the database/sql driver registered by go-sqlite3.
	driverName = "sqlite3"

	// memoryPrefix marks a path as an SQLite URI rather than a file path.
	memoryPrefix = "file:"
)

// Conn is the connection handed to a closure passed to Write or Read.
//
// It is owned by exactly one worker goroutine for its whole life. Closures must
// not retain it, or any *sql.Tx begun on it, after they return.
type Conn struct {
	*sql.Conn

	// db is the private single-connection pool that Conn was taken from.
	db       *sql.DB
	ctx      context.Context
	readOnly bool
}

// Context returns the worker's context. It is not the caller's context: work
// already handed to a worker is never cancelled.
func (c *Conn) Context() context.Context {
	return c.ctx
}

// ReadOnly reports whether this is a reader connection.
func (c *Conn) ReadOnly() bool {
	return c.readOnly
}

// Begin starts a transaction on the connection.
func (c *Conn) Begin() (*sql.Tx, error) {
	return c.BeginTx(c.ctx, nil)
}

// Transact runs fn inside a transaction. The transaction is committed if fn
// returns nil and rolled back otherwise.
//
// Example:
//
//	err := db.Write(ctx, func(conn *database.Conn) error {
//	    return conn.Transact(func(tx *sql.Tx) error {
//	        return counter.Upsert(conn.Context(), tx)
//	    })
//	})
func (c *Conn) Transact(fn func(tx *sql.Tx) error) error {
	tx, err := c.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// close releases the pinned connection and its pool.
func (c *Conn) close() error {
	connErr := c.Conn.Close()
	dbErr := c.db.Close()
	if connErr != nil {
		return connErr
	}
	return dbErr
}

// connSettings holds the per-connection tuning applied on open.
type connSettings struct {
	busyTimeoutMS int64
	cacheSizeKiB  int
}

// openWriter opens the read-write connection with WAL, relaxed sync, in-memory
// temp storage, a bounded page cache, enforced foreign keys and a busy timeout.
func openWriter(ctx, workerCtx context.Context, path string, s connSettings) (*Conn, error) {
	if !isURI(path) {
		if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(s.busyTimeoutMS))
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")

	conn, err := pin(ctx, workerCtx, buildDSN(path, params), false)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA temp_store = MEMORY",
		fmt.Sprintf("PRAGMA cache_size = -%d", s.cacheSizeKiB),
	}
	if err := execAll(ctx, conn, pragmas); err != nil {
		conn.close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	if !isURI(path) {
		// Owner read/write only
		_ = os.Chmod(path, filePermissions) //nolint:errcheck // Best effort, file may live on a filesystem without modes
	}

	return conn, nil
}

// Connection openers used by Open. Tests swap them to inject failures.
var (
	writerOpener = openWriter
	readerOpener = openReader
)

// openReader opens a strictly read-only connection to the same database.
func openReader(ctx, workerCtx context.Context, path string, s connSettings) (*Conn, error) {
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(s.busyTimeoutMS))
	if !isURI(path) {
		params.Set("mode", "ro")
	}

	conn, err := pin(ctx, workerCtx, buildDSN(path, params), true)
	if err != nil {
		return nil, err
	}

	// query_only also covers shared in-memory databases, which cannot be
	// opened with mode=ro. read_uncommitted only applies in shared-cache
	// mode, where reader table locks would otherwise fail writes with
	// SQLITE_LOCKED regardless of the busy timeout.
	pragmas := []string{
		"PRAGMA query_only = ON",
		"PRAGMA read_uncommitted = ON",
		fmt.Sprintf("PRAGMA cache_size = -%d", s.cacheSizeKiB),
	}
	if err := execAll(ctx, conn, pragmas); err != nil {
		conn.close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	return conn, nil
}

// pin opens a single-connection pool and takes its only connection out of it,
// so every statement the worker issues runs on the same SQLite handle.
func pin(ctx, workerCtx context.Context, dsn string, readOnly bool) (*Conn, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	sqlConn, err := db.Conn(ctx)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	if err := sqlConn.PingContext(ctx); err != nil {
		sqlConn.Close() //nolint:errcheck // Best effort cleanup on error path
		db.Close()      //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	return &Conn{
		Conn:     sqlConn,
		db:       db,
		ctx:      workerCtx,
		readOnly: readOnly,
	}, nil
}

// execAll runs each statement in order on conn.
func execAll(ctx context.Context, conn *Conn, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	return nil
}

// buildDSN appends driver parameters to a file path or an existing SQLite URI.
// See: https://github.com/mattn/go-sqlite3#connection-string
func buildDSN(path string, params url.Values) string {
	if isURI(path) {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + params.Encode()
	}
	return memoryPrefix + path + "?" + params.Encode()
}

// isURI reports whether path is already an SQLite URI (e.g. a shared
// in-memory database name).
func isURI(path string) bool {
	return strings.HasPrefix(path, memoryPrefix)
}
