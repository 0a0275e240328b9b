package db_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/habedi/glm/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInitDB checks that the database file and its parent directory are created.
func TestInitDB(t *testing.T) {
	tempDir := t.TempDir()
	db.Path = filepath.Join(tempDir, ".glm", "glm.db")
	require.NoError(t, db.InitDB())

	_, statErr := os.Stat(db.Path)
	assert.NoError(t, statErr, "Database file should exist")
	assert.NotNil(t, db.GetDB())

	assert.NoError(t, db.CloseDB())
}

func TestCloseDB_Nil(t *testing.T) {
	old := db.Db
	db.Db = nil
	t.Cleanup(func() { db.Db = old })

	assert.NoError(t, db.CloseDB())
	assert.NotPanics(t, db.Shutdown)
}

func TestConfigurePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GLM_HOME", home)
	require.NoError(t, db.ConfigurePath())
	assert.Equal(t, filepath.Join(home, "glm.db"), db.Path)

	xdg := t.TempDir()
	t.Setenv("GLM_HOME", "")
	t.Setenv("XDG_DATA_HOME", xdg)
	require.NoError(t, db.ConfigurePath())
	assert.Equal(t, filepath.Join(xdg, "glm", "glm.db"), db.Path)

	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", home)
	require.NoError(t, db.ConfigurePath())
	assert.Equal(t, filepath.Join(home, ".glm", "glm.db"), db.Path)
}
