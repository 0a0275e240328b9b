package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCmd_CleanRecursiveRemovesOldHashes(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	f := filepath.Join(sub, "file.bin")
	require.NoError(t, os.WriteFile(f, []byte("data"), 0o644))
	// stale checksum files from an older run
	require.NoError(t, os.WriteFile(f+".md5", []byte("hash"), 0o644))
	require.NoError(t, os.WriteFile(f+".sha1", []byte("hash"), 0o644))

	cmd := hashCmd()
	cmd.SetArgs([]string{dir, "-a", "md5", "-c", "-r", "-s"})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(f + ".md5")
	require.NoError(t, err)
	assert.NotEqual(t, "hash", string(data))
	assert.NoFileExists(t, f+".sha1")
}
