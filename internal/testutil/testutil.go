// Package testutil provides in-memory databases and fixtures for tests.
package testutil

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/tally-core/internal/entity"
	"github.com/nerrad567/tally-core/internal/infrastructure/database"
	"github.com/nerrad567/tally-core/migrations"
)

//go:embed fixtures/*.json
var fixturesFS embed.FS

// Well-known fixture rows.
var (
	// CounterKey is seeded by Counters with value 10.
	CounterKey = uuid.MustParse("e2268234-9d3d-4ab2-9b68-ec6088f8074b")

	// ZeroCounterKey is seeded by Counters with value 0.
	ZeroCounterKey = uuid.MustParse("5f0c6d8e-1b7a-4c1e-9a3d-2e4f6a8b0c1d")

	// NearMaxCounterKey is seeded by Counters 5 below the uint32 limit.
	NearMaxCounterKey = uuid.MustParse("0b9e4a57-73c2-4f1d-8e6a-91d2c3b4a5f6")

	// UserID is seeded by Users and linked to IdentityID by IdentityUsers.
	UserID = uuid.MustParse("3d517fe6-ebab-7b8c-fcf9-8db6259c8a59")

	// IdentityID is seeded by IdentityUsers.
	IdentityID = uuid.MustParse("f9456f3c-0398-452a-92c4-15c6f8f3158f")
)

// Fixture seeds rows inside the write transaction opened by OpenDB.
type Fixture func(ctx context.Context, tx *sql.Tx) error

// Counters, Users and IdentityUsers load fixtures/<table>.json.
// IdentityUsers requires Users to run first.
var (
	Counters      = Rows[entity.Counter]("fixtures/counters.json")
	Users         = Rows[entity.User]("fixtures/users.json")
	IdentityUsers = Rows[entity.IdentityUser]("fixtures/identitys_users.json")
)

// Rows returns a Fixture that upserts every row of a JSON array file.
func Rows[T any, P interface {
	*T
	Upsert(ctx context.Context, db entity.DBTX) error
}](path string) Fixture {
	return func(ctx context.Context, tx *sql.Tx) error {
		data, err := fixturesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading fixture %s: %w", path, err)
		}
		var rows []T
		if err := json.Unmarshal(data, &rows); err != nil {
			return fmt.Errorf("parsing fixture %s: %w", path, err)
		}
		for i := range rows {
			if err := P(&rows[i]).Upsert(ctx, tx); err != nil {
				return fmt.Errorf("loading fixture %s row %d: %w", path, i, err)
			}
		}
		return nil
	}
}

// OpenDB opens a migrated in-memory database with two readers, applies
// fixtures in order in a single transaction, and closes it when the test ends.
//
// Shared-cache in-memory databases use table-level locks that the busy
// timeout does not cover, so tests that overlap reads and writes on the same
// table should use OpenFileDB.
func OpenDB(t testing.TB, fixtures ...Fixture) *database.Database {
	t.Helper()
	db, err := database.OpenInMemory(context.Background(), options())
	require.NoError(t, err)
	return prepare(t, db, fixtures)
}

// OpenFileDB is OpenDB backed by a WAL file in a temp directory.
func OpenFileDB(t testing.TB, fixtures ...Fixture) *database.Database {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "tally.db"), options())
	require.NoError(t, err)
	return prepare(t, db, fixtures)
}

func options() database.Options {
	return database.Options{
		Readers:       2,
		Migrations:    migrations.FS,
		MigrationsDir: migrations.Dir,
	}
}

// prepare registers cleanup and applies fixtures.
func prepare(t testing.TB, db *database.Database, fixtures []Fixture) *database.Database {
	t.Helper()
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	if len(fixtures) == 0 {
		return db
	}

	err := db.Write(context.Background(), func(conn *database.Conn) error {
		return conn.Transact(func(tx *sql.Tx) error {
			for _, fixture := range fixtures {
				if err := fixture(conn.Context(), tx); err != nil {
					return err
				}
			}
			return nil
		})
	})
	require.NoError(t, err)
	return db
}
