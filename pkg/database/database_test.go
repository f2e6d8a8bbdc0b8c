package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", cfg.DSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, ApplySQLiteOptimizations(db))
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "./data/mentorlink.db", cfg.DatabasePath)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxIdleTime)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty path", func(c *Config) { c.DatabasePath = "" }},
		{"zero connections", func(c *Config) { c.MaxConnections = 0 }},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }},
		{"negative idle", func(c *Config) { c.ConnMaxIdleTime = -time.Second }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMigrations_SortedByVersion(t *testing.T) {
	files := fstest.MapFS{
		"002_second.sql":  {Data: []byte("SELECT 2;")},
		"001_first.sql":   {Data: []byte("SELECT 1;")},
		"README.md":       {Data: []byte("ignored")},
		"010_tenth_x.sql": {Data: []byte("SELECT 10;")},
	}

	migrations, err := LoadMigrations(files)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, "001", migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Description)
	assert.Equal(t, "002", migrations[1].Version)
	assert.Equal(t, "010", migrations[2].Version)
	assert.Equal(t, "tenth_x", migrations[2].Description)
}

func TestEmbeddedMigrations_Present(t *testing.T) {
	sqlite, err := LoadMigrations(SQLiteMigrations())
	require.NoError(t, err)
	assert.Len(t, sqlite, 2)

	postgres, err := LoadMigrations(PostgresMigrations())
	require.NoError(t, err)
	assert.Len(t, postgres, 1)
}

func TestMigrationManager_ApplyMigrationsIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db, SQLiteMigrations())

	require.NoError(t, manager.ApplyMigrations())
	require.NoError(t, manager.ApplyMigrations())
	require.NoError(t, manager.ValidateSchema())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSchemaValidator_AfterMigrations(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationManager(db, SQLiteMigrations()).ApplyMigrations())

	validator := NewSchemaValidator(db)
	assert.NoError(t, validator.ValidateTablesExist())
	assert.NoError(t, validator.ValidateTableStructure())
	assert.NoError(t, validator.ValidateIndexes())
}

func TestSchemaValidator_MissingTables(t *testing.T) {
	db := openTestDB(t)

	err := NewSchemaValidator(db).ValidateTablesExist()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSchema_SectionCheckConstraint(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationManager(db, SQLiteMigrations()).ApplyMigrations())

	_, err := db.Exec(`INSERT INTO assignments (id, mentor_id, mentee_id) VALUES ('A-1', 'm', 'n')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO collaboration_sections (assignment_id, section) VALUES ('A-1', 'finalReview')`)
	assert.Error(t, err)

	_, err = db.Exec(`INSERT INTO assignment_messages (id, assignment_id, sender_id, body, created_at) VALUES ('x', 'missing', 'm', 'hi', CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "foreign key to assignments must be enforced")
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	files := fstest.MapFS{"001_broken.sql": {Data: []byte("CREATE BROKEN")}}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE BROKEN").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err = NewMigrationManager(db, files).ApplyMigrations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migration 001")
	assert.NoError(t, mock.ExpectationsWereMet())
}
