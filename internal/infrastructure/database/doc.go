// Package database provides SQLite access for Tally Core.
//
// A Database owns one read-write connection and a configurable number of
// read-only connections. Each connection lives on its own goroutine, locked to
// an OS thread, and is only ever touched by that goroutine. Callers hand work
// to a connection by posting a closure through a bounded queue:
//
//	count, err := database.Write(ctx, db, func(conn *database.Conn) (uint32, error) {
//	    var v uint32
//	    err := conn.QueryRowContext(conn.Context(),
//	        "UPDATE counters SET value = value + 1 WHERE key = ? RETURNING value", key,
//	    ).Scan(&v)
//	    return v, err
//	})
//
// Writes are serialised on the single writer in submission order. Reads fan
// out across the reader pool and run concurrently with writes (WAL mode).
//
// Errors:
//   - ErrConnectionClosed: the call could not be delivered (after Close)
//   - *EngineError: SQLite or database/sql rejected the work
//   - *ApplicationError: the closure itself failed or panicked
//
// Connection settings:
//   - WAL journal, synchronous=NORMAL, temp_store=MEMORY
//   - Bounded page cache, foreign keys enforced, busy timeout
//   - Database file permissions 0600 (owner read/write only)
//
// Migrations:
//
// Open applies pending migrations from Options.Migrations on the writer before
// any reader starts. Files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql, and are tracked in schema_migrations. A database that
// records a version the binary does not ship is refused with
// ErrUnknownSchemaVersion.
package database
