package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tally-core/internal/infrastructure/logging"
)

// Defaults applied by Open when the matching Options field is zero.
const (
	// DefaultQueueCapacity bounds each request queue.
	DefaultQueueCapacity = 100

	// DefaultBusyTimeout is how long a connection waits for a lock.
	DefaultBusyTimeout = 5 * time.Second

	// DefaultCacheSizeKiB bounds each connection's page cache (64 MiB).
	DefaultCacheSizeKiB = 64 * 1024
)

// Options configures Open and OpenInMemory.
type Options struct {
	// Readers is the number of read-only connections. With zero readers
	// every Read fails with ErrConnectionClosed.
	Readers int

	// QueueCapacity bounds the write queue and the shared read queue.
	// Callers block once a queue is full.
	QueueCapacity int

	BusyTimeout  time.Duration
	CacheSizeKiB int

	// Migrations holds *.up.sql / *.down.sql files applied by the writer
	// before Open returns. Nil skips migrations.
	Migrations    fs.FS
	MigrationsDir string

	// Logger defaults to a discarding logger.
	Logger *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	if o.CacheSizeKiB <= 0 {
		o.CacheSizeKiB = DefaultCacheSizeKiB
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

// Database is a handle to one SQLite database served by a single writer
// connection and a pool of read-only connections.
//
// Every connection is owned by its own goroutine, locked to an OS thread.
// Write and Read post a closure to the matching queue and wait for its
// result; closures never run on the caller's goroutine. Writes execute one at
// a time in submission order. Reads are served by whichever reader is free.
//
// Thread Safety:
//   - A Database may be shared freely between goroutines.
//   - A *Conn handed to a closure must not escape it.
type Database struct {
	path       string
	logger     *logging.Logger
	migrations migrationSource

	writeQueue chan message
	readQueue  chan message

	writer      *worker
	readers     []*worker
	readersDone chan struct{}

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool

	writes   atomic.Uint64
	reads    atomic.Uint64
	failures atomic.Uint64
}

// Stats is a point-in-time snapshot of the actor.
type Stats struct {
	Readers         int
	WriteQueueDepth int
	ReadQueueDepth  int
	QueueCapacity   int

	// Writes and Reads count completed calls, successful or not.
	Writes   uint64
	Reads    uint64
	Failures uint64

	Closed bool
}

// Open opens (creating if necessary) the database file at path.
//
// The writer starts first: it applies connection pragmas and any pending
// migrations before Open proceeds. Readers are started afterwards so they
// always observe the migrated schema. If any connection fails to open, the
// workers already started are shut down and the error is returned.
func Open(ctx context.Context, path string, opts Options) (*Database, error) {
	if path == "" {
		return nil, errors.New("database: path is required")
	}
	if opts.Readers < 0 {
		return nil, fmt.Errorf("database: readers must not be negative, got %d", opts.Readers)
	}
	opts = opts.withDefaults()

	db := &Database{
		path:        path,
		logger:      opts.Logger.With("component", "database"),
		migrations:  migrationSource{fsys: opts.Migrations, dir: opts.MigrationsDir},
		writeQueue:  make(chan message, opts.QueueCapacity),
		readQueue:   make(chan message, opts.QueueCapacity),
		readersDone: make(chan struct{}),
	}
	settings := connSettings{
		busyTimeoutMS: opts.BusyTimeout.Milliseconds(),
		cacheSizeKiB:  opts.CacheSizeKiB,
	}

	db.writer = newWorker("writer", db.writeQueue)
	writerReady := db.writer.start(func(workerCtx context.Context) (*Conn, error) {
		conn, err := writerOpener(ctx, workerCtx, path, settings)
		if err != nil {
			return nil, &EngineError{Op: "open writer", Err: err}
		}
		if err := db.migrations.migrate(workerCtx, conn); err != nil {
			conn.close() //nolint:errcheck // Best effort cleanup on error path
			if errors.Is(err, ErrUnknownSchemaVersion) {
				return nil, &ApplicationError{Err: err}
			}
			return nil, classify("migrate", err)
		}
		return conn, nil
	})
	if err := <-writerReady; err != nil {
		close(db.readersDone)
		db.closed.Store(true)
		return nil, err
	}

	var g errgroup.Group
	db.readers = make([]*worker, opts.Readers)
	for i := range db.readers {
		w := newWorker(fmt.Sprintf("reader-%d", i), db.readQueue)
		db.readers[i] = w
		ready := w.start(func(workerCtx context.Context) (*Conn, error) {
			conn, err := readerOpener(ctx, workerCtx, path, settings)
			if err != nil {
				return nil, &EngineError{Op: "open " + w.name, Err: err}
			}
			return conn, nil
		})
		g.Go(func() error { return <-ready })
	}
	go db.watchReaders()

	if err := g.Wait(); err != nil {
		db.Close() //nolint:errcheck // Setup error takes precedence
		return nil, err
	}

	db.logger.Info("database opened",
		"path", path,
		"readers", opts.Readers,
		"queue_capacity", opts.QueueCapacity,
	)
	return db, nil
}

// OpenInMemory opens a private in-memory database shared by the writer and
// readers of this handle only. It disappears when the handle is closed.
func OpenInMemory(ctx context.Context, opts Options) (*Database, error) {
	path := memoryPrefix + uuid.NewString() + "?mode=memory&cache=shared"
	return Open(ctx, path, opts)
}

// watchReaders closes readersDone once every reader has exited.
func (db *Database) watchReaders() {
	for _, w := range db.readers {
		<-w.done
	}
	close(db.readersDone)
}

// Write runs fn on the writer connection and returns its value.
//
// ctx bounds how long the caller waits to enqueue and for the result. It does
// not cancel fn once the writer has accepted it: fn runs to completion, and
// its effects are committed even if the caller has given up.
func Write[T any](ctx context.Context, db *Database, fn func(conn *Conn) (T, error)) (T, error) {
	v, err := call(ctx, db.writeQueue, db.writer.done, "write", fn)
	db.record(&db.writes, err)
	return v, err
}

// Read runs fn on any free reader connection and returns its value. Reader
// connections reject writes. ctx behaves as for Write.
func Read[T any](ctx context.Context, db *Database, fn func(conn *Conn) (T, error)) (T, error) {
	v, err := call(ctx, db.readQueue, db.readersDone, "read", fn)
	db.record(&db.reads, err)
	return v, err
}

// Write runs fn on the writer connection. See the package-level Write.
func (db *Database) Write(ctx context.Context, fn func(conn *Conn) error) error {
	_, err := Write(ctx, db, func(conn *Conn) (struct{}, error) {
		return struct{}{}, fn(conn)
	})
	return err
}

// Read runs fn on a reader connection. See the package-level Read.
func (db *Database) Read(ctx context.Context, fn func(conn *Conn) error) error {
	_, err := Read(ctx, db, func(conn *Conn) (struct{}, error) {
		return struct{}{}, fn(conn)
	})
	return err
}

func (db *Database) record(counter *atomic.Uint64, err error) {
	if errors.Is(err, ErrConnectionClosed) {
		return
	}
	counter.Add(1)
	if err != nil {
		db.failures.Add(1)
	}
}

// outcome carries a closure's result back to the waiting caller.
type outcome[T any] struct {
	value T
	err   error
}

// call posts fn to queue and waits for its outcome. done is closed once no
// worker is left to serve queue.
func call[T any](ctx context.Context, queue chan<- message, done <-chan struct{}, op string, fn func(*Conn) (T, error)) (T, error) {
	var zero T

	// Sized so the worker never blocks on a caller that stopped waiting.
	result := make(chan outcome[T], 1)
	msg := message{execute: func(conn *Conn) {
		v, err := invoke(conn, fn)
		result <- outcome[T]{value: v, err: classify(op, err)}
	}}

	select {
	case <-done:
		return zero, ErrConnectionClosed
	default:
	}

	select {
	case queue <- msg:
	case <-done:
		return zero, ErrConnectionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case out := <-result:
		return out.value, out.err
	case <-done:
		// The worker may have finished this message just before exiting.
		select {
		case out := <-result:
			return out.value, out.err
		default:
			return zero, ErrConnectionClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// invoke runs fn, converting a panic into an ApplicationError so a faulty
// closure cannot take its worker down.
func invoke[T any](conn *Conn, fn func(*Conn) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ApplicationError{Err: fmt.Errorf("panic in database closure: %v", r)}
		}
	}()
	return fn(conn)
}

// Close stops every worker and closes every connection. Calls already queued
// complete first; calls made afterwards fail with ErrConnectionClosed.
//
// Close blocks until all workers have exited. It is safe to call more than
// once; later calls return the first call's result.
func (db *Database) Close() error {
	db.closeOnce.Do(func() {
		db.closed.Store(true)

		// Each reader consumes exactly one close message, so keep posting
		// until all of them are gone.
	readers:
		for {
			select {
			case <-db.readersDone:
				break readers
			case db.readQueue <- closeMessage:
			}
		}

	writer:
		for {
			select {
			case <-db.writer.done:
				break writer
			case db.writeQueue <- closeMessage:
			}
		}

		errs := make([]error, 0, len(db.readers)+1)
		for _, w := range db.readers {
			if w.closeErr != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", w.name, w.closeErr))
			}
		}
		if db.writer.closeErr != nil {
			errs = append(errs, fmt.Errorf("closing writer: %w", db.writer.closeErr))
		}
		if err := errors.Join(errs...); err != nil {
			db.closeErr = &EngineError{Op: "close", Err: err}
		}

		db.logger.Info("database closed", "path", db.path)
	})
	return db.closeErr
}

// HealthCheck verifies the writer, and one reader if any are configured,
// can execute a query.
func (db *Database) HealthCheck(ctx context.Context) error {
	ping := func(conn *Conn) error {
		var one int
		return conn.QueryRowContext(conn.Context(), "SELECT 1").Scan(&one)
	}
	if err := db.Write(ctx, ping); err != nil {
		return fmt.Errorf("writer health check: %w", err)
	}
	if len(db.readers) == 0 {
		return nil
	}
	if err := db.Read(ctx, ping); err != nil {
		return fmt.Errorf("reader health check: %w", err)
	}
	return nil
}

// MigrationStatus compares the migrations shipped with the binary against
// those recorded in the database.
func (db *Database) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	return Write(ctx, db, func(conn *Conn) (MigrationStatus, error) {
		return db.migrations.status(conn.Context(), conn)
	})
}

// MigrateDown reverts the most recently applied migration and returns its
// version, or "" if none was applied. It is intended for development.
func (db *Database) MigrateDown(ctx context.Context) (string, error) {
	version, err := Write(ctx, db, func(conn *Conn) (string, error) {
		return db.migrations.rollback(conn.Context(), conn)
	})
	if err == nil && version != "" {
		db.logger.Warn("migration rolled back", "version", version)
	}
	return version, err
}

// Stats returns a snapshot of queue depths and call counters.
func (db *Database) Stats() Stats {
	return Stats{
		Readers:         len(db.readers),
		WriteQueueDepth: len(db.writeQueue),
		ReadQueueDepth:  len(db.readQueue),
		QueueCapacity:   cap(db.writeQueue),
		Writes:          db.writes.Load(),
		Reads:           db.reads.Load(),
		Failures:        db.failures.Load(),
		Closed:          db.closed.Load(),
	}
}

// Path returns the database path or URI passed to Open.
func (db *Database) Path() string {
	return db.path
}

// Readers returns the number of reader connections.
func (db *Database) Readers() int {
	return len(db.readers)
}
