package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"chatserver/internal/domain"
	"chatserver/internal/store/sqlite"
)

// NewSQLiteDB opens a migrated in-memory database for a test. The pool is
// capped at one connection: each connection to ":memory:" would otherwise
// see its own empty database.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, sqlite.Migrate(db))

	t.Cleanup(func() { db.Close() })
	return db
}

// CreateUser inserts a user for a test and fails the test on error.
func CreateUser(t *testing.T, users domain.UserRepository, tokenIdentifier, name string) *domain.User {
	t.Helper()

	u := &domain.User{
		TokenIdentifier: tokenIdentifier,
		Email:           name + "@example.com",
		Name:            name,
		Image:           "https://example.com/" + name + ".png",
		IsOnline:        true,
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}
