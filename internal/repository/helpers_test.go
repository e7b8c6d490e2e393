package repository

import (
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/myanimebot/internal/database"
)

// newSQLiteDB はマイグレーション済みの一時SQLiteデータベースを返す。
func newSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "repo.db")
	require.NoError(t, database.RunMigrations(dbURL), "マイグレーション実行に失敗")

	db, err := database.Open(dbURL)
	require.NoError(t, err, "データベースへの接続に失敗")
	t.Cleanup(func() { db.Close() })
	return db
}

// newMockDB はPostgreSQLのプレースホルダでRebindするsqlmock接続を返す。
func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}
