package database

import (
	"context"
	"embed"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMigrationsDir is the directory containing test migration files.
const testMigrationsDir = "testdata"

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

// tableExists reports whether name is a table, using the writer.
func tableExists(t *testing.T, db *Database, name string) bool {
	t.Helper()
	n, err := Write(context.Background(), db, func(conn *Conn) (int, error) {
		var count int
		err := conn.QueryRowContext(conn.Context(),
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
		).Scan(&count)
		return count, err
	})
	require.NoError(t, err)
	return n == 1
}

// TestMigrate verifies migrations are applied on open.
func TestMigrate(t *testing.T) {
	db := openTestDB(t, Options{Migrations: testMigrationsFS, MigrationsDir: testMigrationsDir})

	assert.True(t, tableExists(t, db, "test_users"))
	assert.True(t, tableExists(t, db, "test_counters"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, err := db.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status.Applied, 2)
	assert.Equal(t, "20260118_120000", status.Applied[0].Version, "applied oldest first")
	assert.Equal(t, "20260119_090000", status.Applied[1].Version)
	assert.False(t, status.Applied[0].AppliedAt.IsZero())
	assert.Empty(t, status.Pending)
	assert.Empty(t, status.Unknown)
}

// TestMigrate_Idempotent verifies reopening does not reapply migrations.
func TestMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	opts := Options{Readers: 1, Migrations: testMigrationsFS, MigrationsDir: testMigrationsDir}

	first, err := Open(context.Background(), path, opts)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path, opts)
	require.NoError(t, err)
	defer second.Close() //nolint:errcheck // Test cleanup

	status, err := second.MigrationStatus(context.Background())
	require.NoError(t, err)
	assert.Len(t, status.Applied, 2)
}

// TestMigrateDown verifies migration rollback, newest first.
func TestMigrateDown(t *testing.T) {
	db := openTestDB(t, Options{Migrations: testMigrationsFS, MigrationsDir: testMigrationsDir})
	ctx := context.Background()

	version, err := db.MigrateDown(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20260119_090000", version)
	assert.False(t, tableExists(t, db, "test_counters"))
	assert.True(t, tableExists(t, db, "test_users"))

	version, err = db.MigrateDown(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20260118_120000", version)
	assert.False(t, tableExists(t, db, "test_users"))

	status, err := db.MigrationStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Applied)
	assert.Len(t, status.Pending, 2)

	version, err = db.MigrateDown(ctx)
	require.NoError(t, err)
	assert.Empty(t, version, "nothing left to roll back")
}

// TestMigrateNoMigrations verifies behaviour with no migrations.
func TestMigrateNoMigrations(t *testing.T) {
	var emptyFS embed.FS
	db := openTestDB(t, Options{Migrations: emptyFS, MigrationsDir: "."})

	status, err := db.MigrationStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, status.Applied)
	assert.Empty(t, status.Pending)
}

// TestMigrate_FailureStopsOpen verifies a broken migration rolls back and
// aborts Open with an engine error.
func TestMigrate_FailureStopsOpen(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101_000000_good.up.sql": {Data: []byte("CREATE TABLE good (id INTEGER PRIMARY KEY);")},
		"20260102_000000_bad.up.sql":  {Data: []byte("CREATE TABLE bad (id INTEGER PRIMARY KEY")},
	}
	path := filepath.Join(t.TempDir(), "test.db")

	_, err := Open(context.Background(), path, Options{Readers: 1, Migrations: fsys})
	require.Error(t, err)
	assert.True(t, IsEngine(err), "got %T: %v", err, err)
	assert.Contains(t, err.Error(), "20260102_000000")

	// The good migration stays committed.
	fixed := fstest.MapFS{
		"20260101_000000_good.up.sql": fsys["20260101_000000_good.up.sql"],
	}
	db, err := Open(context.Background(), path, Options{Readers: 1, Migrations: fixed})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck // Test cleanup

	status, err := db.MigrationStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, status.Applied, 1)
	assert.Equal(t, "20260101_000000", status.Applied[0].Version)
}

// TestMigrate_UnknownVersion verifies a database migrated by a newer build
// is refused.
func TestMigrate_UnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(context.Background(), path, Options{Migrations: testMigrationsFS, MigrationsDir: testMigrationsDir})
	require.NoError(t, err)
	err = db.Write(context.Background(), func(conn *Conn) error {
		_, err := conn.ExecContext(conn.Context(),
			"INSERT INTO schema_migrations (version, applied_at) VALUES ('29991231_235959', '2999-12-31T23:59:59Z')",
		)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(context.Background(), path, Options{Migrations: testMigrationsFS, MigrationsDir: testMigrationsDir})
	require.ErrorIs(t, err, ErrUnknownSchemaVersion)
	assert.True(t, IsApplication(err), "unknown schema version should be an ApplicationError: %v", err)
	assert.Contains(t, err.Error(), "29991231_235959")
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{
			name:        "valid up migration",
			filename:    "20260118_120000_create_users.up.sql",
			wantVersion: "20260118_120000",
			wantIsUp:    true,
			wantOk:      true,
		},
		{
			name:        "valid down migration",
			filename:    "20260118_120000_create_users.down.sql",
			wantVersion: "20260118_120000",
			wantIsUp:    false,
			wantOk:      true,
		},
		{
			name:     "not sql file",
			filename: "readme.txt",
			wantOk:   false,
		},
		{
			name:     "missing direction",
			filename: "20260118_120000_create_users.sql",
			wantOk:   false,
		},
		{
			name:     "invalid format",
			filename: "invalid.up.sql",
			wantOk:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Errorf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok {
				if version != tt.wantVersion {
					t.Errorf("version = %v, want %v", version, tt.wantVersion)
				}
				if isUp != tt.wantIsUp {
					t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
				}
			}
		})
	}
}

// TestExtractMigrationName verifies name extraction.
func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260118_120000_create_users.up.sql", "create_users"},
		{"20260118_120000_initial_schema.down.sql", "initial_schema"},
		{"20260118_120000_add_email_to_users.up.sql", "add_email_to_users"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := extractMigrationName(tt.filename)
			if got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
