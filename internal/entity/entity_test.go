package entity_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/tally-core/internal/entity"
	"github.com/nerrad567/tally-core/internal/infrastructure/database"
	"github.com/nerrad567/tally-core/internal/testutil"
)

// write runs fn inside a committed transaction on the writer.
func write(t *testing.T, db *database.Database, fn func(ctx context.Context, tx *sql.Tx) error) error {
	t.Helper()
	return db.Write(context.Background(), func(conn *database.Conn) error {
		return conn.Transact(func(tx *sql.Tx) error {
			return fn(conn.Context(), tx)
		})
	})
}

func TestCounter_UpsertRetrieve(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	want := entity.NewCounter(uuid.New(), 3)

	require.NoError(t, write(t, db, func(ctx context.Context, tx *sql.Tx) error {
		return want.Upsert(ctx, tx)
	}))

	got, err := database.Read(ctx, db, func(conn *database.Conn) (*entity.Counter, error) {
		return entity.RetrieveCounter(conn.Context(), conn, want.Key)
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCounter_UpsertOverwrites(t *testing.T) {
	db := testutil.OpenDB(t, testutil.Counters)
	ctx := context.Background()

	require.NoError(t, write(t, db, func(ctx context.Context, tx *sql.Tx) error {
		return entity.NewCounter(testutil.CounterKey, 1).Upsert(ctx, tx)
	}))

	got, err := database.Read(ctx, db, func(conn *database.Conn) (*entity.Counter, error) {
		return entity.RetrieveCounter(conn.Context(), conn, testutil.CounterKey)
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint32(1), got.Value)
}

func TestCounter_RetrieveMissing(t *testing.T) {
	db := testutil.OpenDB(t, testutil.Counters)

	got, err := database.Read(context.Background(), db, func(conn *database.Conn) (*entity.Counter, error) {
		return entity.RetrieveCounter(conn.Context(), conn, uuid.New())
	})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCounter_RetrieveManyAndAll(t *testing.T) {
	db := testutil.OpenDB(t, testutil.Counters)
	ctx := context.Background()

	many, err := database.Read(ctx, db, func(conn *database.Conn) ([]entity.Counter, error) {
		return entity.RetrieveCounterMany(conn.Context(), conn,
			[]uuid.UUID{testutil.CounterKey, testutil.ZeroCounterKey, uuid.New()})
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []entity.Counter{
		{Key: testutil.CounterKey, Value: 10},
		{Key: testutil.ZeroCounterKey, Value: 0},
	}, many)

	none, err := database.Read(ctx, db, func(conn *database.Conn) ([]entity.Counter, error) {
		return entity.RetrieveCounterMany(conn.Context(), conn, nil)
	})
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := database.Read(ctx, db, func(conn *database.Conn) ([]entity.Counter, error) {
		return entity.RetrieveAllCounters(conn.Context(), conn)
	})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCounter_Delete(t *testing.T) {
	db := testutil.OpenDB(t, testutil.Counters)
	ctx := context.Background()

	require.NoError(t, write(t, db, func(ctx context.Context, tx *sql.Tx) error {
		c := entity.Counter{Key: testutil.CounterKey}
		return c.Delete(ctx, tx)
	}))

	got, err := database.Read(ctx, db, func(conn *database.Conn) (*entity.Counter, error) {
		return entity.RetrieveCounter(conn.Context(), conn, testutil.CounterKey)
	})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIncrementCounter(t *testing.T) {
	db := testutil.OpenDB(t, testutil.Counters)
	ctx := context.Background()

	increment := func(key uuid.UUID, by uint32) (uint32, error) {
		return database.Write(ctx, db, func(conn *database.Conn) (uint32, error) {
			return entity.IncrementCounter(conn.Context(), conn, key, by)
		})
	}

	t.Run("existing counter", func(t *testing.T) {
		v, err := increment(testutil.CounterKey, 5)
		require.NoError(t, err)
		assert.Equal(t, uint32(15), v)
	})

	t.Run("missing counter starts at by", func(t *testing.T) {
		key := uuid.New()
		v, err := increment(key, 1)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), v)

		v, err = increment(key, 1)
		require.NoError(t, err)
		assert.Equal(t, uint32(2), v)
	})

	t.Run("overflow is rejected", func(t *testing.T) {
		_, err := increment(testutil.NearMaxCounterKey, 10)
		require.Error(t, err)
		assert.True(t, database.IsConstraintViolation(err), "got %v", err)

		got, err := database.Read(ctx, db, func(conn *database.Conn) (*entity.Counter, error) {
			return entity.RetrieveCounter(conn.Context(), conn, testutil.NearMaxCounterKey)
		})
		require.NoError(t, err)
		assert.Equal(t, uint32(4294967290), got.Value, "value unchanged")
	})
}

func TestUser_CreateIdentityUser(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	user := entity.NewUser(uuid.New())
	identityID := uuid.New()

	require.NoError(t, write(t, db, func(ctx context.Context, tx *sql.Tx) error {
		if err := user.Upsert(ctx, tx); err != nil {
			return err
		}
		link, err := user.CreateIdentityUser(ctx, tx, identityID)
		if err != nil {
			return err
		}
		assert.Equal(t, user.ID, link.UserID)
		return nil
	}))

	got, err := database.Read(ctx, db, func(conn *database.Conn) (*entity.User, error) {
		link, err := entity.RetrieveIdentityUser(conn.Context(), conn, identityID)
		if err != nil || link == nil {
			return nil, err
		}
		return link.RetrieveUser(conn.Context(), conn)
	})
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestUser_UpsertIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t, testutil.Users)

	require.NoError(t, write(t, db, func(ctx context.Context, tx *sql.Tx) error {
		return entity.NewUser(testutil.UserID).Upsert(ctx, tx)
	}))

	all, err := database.Read(context.Background(), db, func(conn *database.Conn) ([]entity.User, error) {
		return entity.RetrieveAllUsers(conn.Context(), conn)
	})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestIdentityUser_Fixtures(t *testing.T) {
	db := testutil.OpenDB(t, testutil.Users, testutil.IdentityUsers)

	user, err := database.Read(context.Background(), db, func(conn *database.Conn) (*entity.User, error) {
		link, err := entity.RetrieveIdentityUser(conn.Context(), conn, testutil.IdentityID)
		if err != nil || link == nil {
			return nil, err
		}
		return link.RetrieveUser(conn.Context(), conn)
	})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, testutil.UserID, user.ID)
}

func TestIdentityUser_RequiresUser(t *testing.T) {
	db := testutil.OpenDB(t)

	err := write(t, db, func(ctx context.Context, tx *sql.Tx) error {
		return entity.NewIdentityUser(uuid.New(), uuid.New()).Upsert(ctx, tx)
	})
	require.Error(t, err)
	assert.True(t, database.IsConstraintViolation(err), "got %v", err)
}
