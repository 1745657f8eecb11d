package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessly/internal/db"
	"github.com/sujalbistaa/confessly/internal/models"
	"github.com/sujalbistaa/confessly/internal/store"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestMigrateAndGrantAdmin(t *testing.T) {
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "confessly.db")
	t.Setenv("LOG_LEVEL", "error")

	require.NoError(t, run(t, "migrate", "--database-url", dbURL))

	err := run(t, "grant-admin", "--database-url", dbURL, "--email", "mod@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign up first")

	gdb, err := db.Open(dbURL, zap.NewNop())
	require.NoError(t, err)
	st := store.New(gdb)
	u := &models.User{Email: "mod@example.com", PasswordHash: "x"}
	require.NoError(t, st.CreateUser(context.Background(), u))
	require.NoError(t, db.Close(gdb))

	require.NoError(t, run(t, "grant-admin", "--database-url", dbURL, "--email", "MOD@example.com"))
	// Granting twice is a no-op.
	require.NoError(t, run(t, "grant-admin", "--database-url", dbURL, "--email", "mod@example.com"))

	gdb, err = db.Open(dbURL, zap.NewNop())
	require.NoError(t, err)
	defer db.Close(gdb)
	ok, err := store.New(gdb).HasRole(context.Background(), u.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGrantAdminRejectsBadInput(t *testing.T) {
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "confessly.db")
	t.Setenv("LOG_LEVEL", "error")

	err := run(t, "grant-admin", "--database-url", dbURL, "--email", "mod@example.com", "--role", "owner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown role "owner"`)

	err = run(t, "grant-admin", "--database-url", dbURL, "--email", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid email address")
}

func TestInvalidConfigFailsFast(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	err := run(t, "migrate", "--database-url", "mysql://localhost/confessly")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}
