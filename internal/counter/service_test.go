package counter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tally-core/internal/counter"
	"github.com/nerrad567/tally-core/internal/infrastructure/database"
	"github.com/nerrad567/tally-core/internal/testutil"
)

// recorder is a Notifier that remembers every change.
type recorder struct {
	mu      sync.Mutex
	changes []counter.Change
}

func (r *recorder) CounterChanged(_ context.Context, c counter.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) all() []counter.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]counter.Change(nil), r.changes...)
}

func newService(t *testing.T, db *database.Database) (*counter.Service, *recorder) {
	t.Helper()
	svc := counter.NewService(db, nil)
	rec := &recorder{}
	svc.AddNotifier(rec)
	t.Cleanup(svc.Close)
	return svc, rec
}

func TestService_Get(t *testing.T) {
	svc, _ := newService(t, testutil.OpenDB(t, testutil.Counters))
	ctx := context.Background()

	v, found, err := svc.Get(ctx, testutil.CounterKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint32(10), v)

	v, found, err = svc.Get(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, v)
}

func TestService_SetThenGet(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, rec := newService(t, db)
	ctx := context.Background()
	key := uuid.New()

	require.NoError(t, svc.Set(ctx, key, 11, counter.SourceAPI))

	v, found, err := svc.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint32(11), v)

	svc.Close()
	changes := rec.all()
	require.Len(t, changes, 1)
	assert.Equal(t, key, changes[0].Key)
	assert.Equal(t, uint32(11), changes[0].Value)
	assert.Equal(t, counter.SourceAPI, changes[0].Source)
	assert.False(t, changes[0].At.IsZero())
}

func TestService_Increment(t *testing.T) {
	svc, rec := newService(t, testutil.OpenDB(t, testutil.Counters))
	ctx := context.Background()

	v, err := svc.Increment(ctx, testutil.CounterKey, 5, counter.SourceMQTT)
	require.NoError(t, err)
	assert.Equal(t, uint32(15), v)

	_, err = svc.Increment(ctx, testutil.CounterKey, 0, counter.SourceAPI)
	assert.ErrorIs(t, err, counter.ErrInvalidIncrement)

	_, err = svc.Increment(ctx, testutil.NearMaxCounterKey, 10, counter.SourceAPI)
	require.Error(t, err)
	assert.True(t, database.IsConstraintViolation(err))

	svc.Close()
	changes := rec.all()
	require.Len(t, changes, 1, "failed mutations are not announced")
	assert.Equal(t, uint32(15), changes[0].Value)
}

func TestService_ConcurrentIncrementsAreNotLost(t *testing.T) {
	svc, rec := newService(t, testutil.OpenFileDB(t))
	ctx := context.Background()
	key := uuid.New()

	const n = 100
	var g errgroup.Group
	for range n {
		g.Go(func() error {
			_, err := svc.Increment(ctx, key, 1, counter.SourceAPI)
			return err
		})
	}
	require.NoError(t, g.Wait())

	v, _, err := svc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint32(n), v)

	// Notifications arrive in commit order: 1, 2, ..., n.
	svc.Close()
	changes := rec.all()
	require.Len(t, changes, n)
	for i, c := range changes {
		assert.Equal(t, uint32(i+1), c.Value)
	}
}

func TestService_ListAndDelete(t *testing.T) {
	svc, rec := newService(t, testutil.OpenDB(t, testutil.Counters))
	ctx := context.Background()

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	existed, err := svc.Delete(ctx, testutil.CounterKey, counter.SourceAPI)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = svc.Delete(ctx, testutil.CounterKey, counter.SourceAPI)
	require.NoError(t, err)
	assert.False(t, existed)

	_, found, err := svc.Get(ctx, testutil.CounterKey)
	require.NoError(t, err)
	assert.False(t, found)

	svc.Close()
	changes := rec.all()
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Deleted)
}

func TestService_ClosedDatabase(t *testing.T) {
	db := testutil.OpenDB(t)
	svc, _ := newService(t, db)
	require.NoError(t, db.Close())

	_, _, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, database.ErrConnectionClosed)
	err = svc.Set(context.Background(), uuid.New(), 1, counter.SourceAPI)
	assert.ErrorIs(t, err, database.ErrConnectionClosed)
}

type panicky struct{}

func (panicky) CounterChanged(context.Context, counter.Change) { panic("boom") }

func TestService_NotifierPanicIsContained(t *testing.T) {
	svc := counter.NewService(testutil.OpenDB(t), nil)
	rec := &recorder{}
	svc.AddNotifier(panicky{})
	svc.AddNotifier(rec)

	require.NoError(t, svc.Set(context.Background(), uuid.New(), 1, counter.SourceAPI))
	require.NoError(t, svc.Set(context.Background(), uuid.New(), 2, counter.SourceAPI))
	svc.Close()

	assert.Len(t, rec.all(), 2)
}

// blocking holds the dispatcher until released.
type blocking struct{ release chan struct{} }

func (b blocking) CounterChanged(context.Context, counter.Change) { <-b.release }

func TestService_SlowNotifierDoesNotStallWrites(t *testing.T) {
	svc := counter.NewService(testutil.OpenDB(t), nil)
	b := blocking{release: make(chan struct{})}
	svc.AddNotifier(b)
	ctx := context.Background()
	key := uuid.New()

	done := make(chan error, 1)
	go func() {
		for range 1000 {
			if _, err := svc.Increment(ctx, key, 1, counter.SourceAPI); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("writes stalled behind a slow notifier")
	}
	assert.Positive(t, svc.Dropped())

	close(b.release)
	svc.Close()
}
