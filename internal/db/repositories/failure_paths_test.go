package repositories

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Failure-path coverage driven through sqlmock: these scenarios (dropped
// connections, commit failures) cannot be provoked reliably against a real
// SQLite database.

func newMockPluginRepo(t *testing.T) (*PluginRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPluginRepository(db), mock
}

func TestGetPlugin_QueryError(t *testing.T) {
	repo, mock := newMockPluginRepo(t)

	mock.ExpectQuery("FROM plugins p").WillReturnError(errors.New("connection reset"))

	_, err := repo.GetPlugin(context.Background(), "alice", "greeter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get plugin")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestVersion_QueryError(t *testing.T) {
	repo, mock := newMockPluginRepo(t)

	mock.ExpectQuery("FROM plugin_versions v").WillReturnError(errors.New("connection reset"))

	_, err := repo.GetLatestVersion(context.Background(), "plugin-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get version")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishVersion_BeginError(t *testing.T) {
	repo, mock := newMockPluginRepo(t)

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	_, err := repo.PublishVersion(context.Background(), "author-id", newTestVersion("greeter", "1.0.0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishVersion_CommitError(t *testing.T) {
	repo, mock := newMockPluginRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM plugins p").WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectExec("INSERT INTO plugins").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO plugin_versions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	_, err := repo.PublishVersion(context.Background(), "author-id", newTestVersion("greeter", "1.0.0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit publish transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPublished_ExecError(t *testing.T) {
	repo, mock := newMockPluginRepo(t)

	mock.ExpectExec("UPDATE plugins SET is_published").WillReturnError(errors.New("connection reset"))

	err := repo.SetPublished(context.Background(), "plugin-id", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update publish state")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := NewUserRepository(sqlx.NewDb(db, "sqlmock"))

	mock.ExpectQuery("FROM users").WillReturnError(errors.New("connection reset"))

	_, err = repo.GetByAPIToken(context.Background(), "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get user")
	assert.NoError(t, mock.ExpectationsWereMet())
}
