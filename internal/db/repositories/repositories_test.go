package repositories

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/plugin-marketplace/plugin-marketplace/internal/db"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/models"
)

// newTestDB opens an in-memory SQLite database with the schema applied. A
// single connection keeps the in-memory database alive for the test's lifetime.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", "file::memory:?_fk=1")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.RunMigrations(conn, "up"))
	return conn
}

// newTestUser inserts a user and returns it.
func newTestUser(t *testing.T, conn *sql.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		APIToken: "token-" + username,
	}
	require.NoError(t, NewUserRepository(sqlx.NewDb(conn, "sqlite3")).Create(context.Background(), user))
	return user
}

// newTestVersion builds an unsaved PluginVersion for publish tests.
func newTestVersion(name, version string) *models.PluginVersion {
	return &models.PluginVersion{
		Version:   version,
		FilePath:  "archives/" + name + "/" + version + ".zip",
		Checksum:  "abc123",
		SizeBytes: 1024,
		Metadata: models.VersionMetadata{
			Name:        name,
			Description: "a test plugin",
			Version:     version,
			Components:  models.ComponentCounts{Commands: 1},
		},
	}
}
