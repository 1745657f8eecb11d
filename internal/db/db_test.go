package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessly/internal/models"
)

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open("mysql://localhost/x", zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database url")
}

func TestOpenAndMigrateSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	gdb, err := Open("sqlite://"+path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(gdb) })

	require.NoError(t, Migrate(gdb))

	for _, table := range []string{"confessions", "confession_likes", "confession_comments", "users", "user_roles"} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}
	assert.True(t, gdb.Migrator().HasIndex(&models.Like{}, "idx_like_confession_ip"))
}
