package counter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tally-core/internal/entity"
	"github.com/nerrad567/tally-core/internal/infrastructure/database"
	"github.com/nerrad567/tally-core/internal/infrastructure/logging"
)

// changeBufferSize bounds the queue between the writer and the notifiers.
// Changes beyond it are dropped and counted rather than stalling the writer.
const changeBufferSize = 256

// Source names the surface that caused a change.
type Source string

// Known sources.
const (
	SourceAPI  Source = "api"
	SourceMQTT Source = "mqtt"
)

// Change describes one committed mutation.
type Change struct {
	Key     uuid.UUID `json:"key"`
	Value   uint32    `json:"value"`
	Deleted bool      `json:"deleted,omitempty"`
	Source  Source    `json:"source"`
	At      time.Time `json:"at"`
}

// Notifier receives changes after they are committed. Calls are made from a
// single goroutine in commit order, so implementations should not block.
type Notifier interface {
	CounterChanged(ctx context.Context, change Change)
}

// Service exposes counter operations.
//
// Thread Safety: All methods are safe for concurrent use.
type Service struct {
	db     *database.Database
	logger *logging.Logger

	notifiers []Notifier
	notifyMu  sync.RWMutex

	changes  chan Change
	closed   bool
	closeMu  sync.RWMutex
	done     chan struct{}
	dropped  atomic.Uint64
	dispatch context.Context //nolint:containedctx // Lifetime of the dispatch goroutine
	stop     context.CancelFunc
}

// NewService creates a Service and starts its notification dispatcher.
// Call Close to stop it. A nil logger discards output.
func NewService(db *database.Database, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		db:       db,
		logger:   logger.With("component", "counter"),
		changes:  make(chan Change, changeBufferSize),
		done:     make(chan struct{}),
		dispatch: ctx,
		stop:     cancel,
	}
	go s.run()
	return s
}

// AddNotifier registers n for every subsequent change.
func (s *Service) AddNotifier(n Notifier) {
	s.notifyMu.Lock()
	s.notifiers = append(s.notifiers, n)
	s.notifyMu.Unlock()
}

// Get returns the value at key. found is false if the counter does not exist.
func (s *Service) Get(ctx context.Context, key uuid.UUID) (value uint32, found bool, err error) {
	c, err := database.Read(ctx, s.db, func(conn *database.Conn) (*entity.Counter, error) {
		return entity.RetrieveCounter(conn.Context(), conn, key)
	})
	if err != nil || c == nil {
		return 0, false, err
	}
	return c.Value, true, nil
}

// List returns every counter.
func (s *Service) List(ctx context.Context) ([]entity.Counter, error) {
	return database.Read(ctx, s.db, func(conn *database.Conn) ([]entity.Counter, error) {
		return entity.RetrieveAllCounters(conn.Context(), conn)
	})
}

// Set stores value at key, creating the counter if needed.
func (s *Service) Set(ctx context.Context, key uuid.UUID, value uint32, source Source) error {
	return s.db.Write(ctx, func(conn *database.Conn) error {
		if err := entity.NewCounter(key, value).Upsert(conn.Context(), conn); err != nil {
			return err
		}
		s.enqueue(Change{Key: key, Value: value, Source: source})
		return nil
	})
}

// Increment adds by to the counter at key, creating it at by if missing,
// and returns the new value. A result above the uint32 range fails with a
// constraint violation and leaves the counter unchanged.
func (s *Service) Increment(ctx context.Context, key uuid.UUID, by uint32, source Source) (uint32, error) {
	if by == 0 {
		return 0, ErrInvalidIncrement
	}
	return database.Write(ctx, s.db, func(conn *database.Conn) (uint32, error) {
		value, err := entity.IncrementCounter(conn.Context(), conn, key, by)
		if err != nil {
			return 0, err
		}
		s.enqueue(Change{Key: key, Value: value, Source: source})
		return value, nil
	})
}

// Delete removes the counter at key. It reports whether a counter existed.
func (s *Service) Delete(ctx context.Context, key uuid.UUID, source Source) (bool, error) {
	return database.Write(ctx, s.db, func(conn *database.Conn) (bool, error) {
		res, err := conn.ExecContext(conn.Context(), "DELETE FROM counters WHERE key = ?", key)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return false, err
		}
		s.enqueue(Change{Key: key, Deleted: true, Source: source})
		return true, nil
	})
}

// Dropped returns how many changes were discarded because notifiers fell
// behind.
func (s *Service) Dropped() uint64 {
	return s.dropped.Load()
}

// Close delivers queued changes and stops the dispatcher. The database is
// not closed.
func (s *Service) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.changes)
	s.closeMu.Unlock()

	<-s.done
	s.stop()
}

// enqueue runs on the writer goroutine, so changes enter the queue in commit
// order. It never blocks.
func (s *Service) enqueue(change Change) {
	change.At = time.Now().UTC()

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.changes <- change:
	default:
		s.dropped.Add(1)
		s.logger.Warn("counter change dropped", "key", change.Key, "value", change.Value)
	}
}

func (s *Service) run() {
	defer close(s.done)
	for change := range s.changes {
		s.notifyMu.RLock()
		notifiers := s.notifiers
		s.notifyMu.RUnlock()

		for _, n := range notifiers {
			s.deliver(n, change)
		}
	}
}

// deliver isolates the dispatcher from a panicking notifier.
func (s *Service) deliver(n Notifier, change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("counter notifier panic recovered", "panic", r, "key", change.Key)
		}
	}()
	n.CounterChanged(s.dispatch, change)
}
