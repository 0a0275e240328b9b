package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy, cfg.Install.DuplicatePolicy)
	assert.Equal(t, DefaultRetries, cfg.Install.Retries)
	assert.Equal(t, DefaultThreads, cfg.Install.Threads)
	assert.NotEmpty(t, cfg.Paths.InstallDir)
	assert.Empty(t, cfg.Repository.URL)

	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadFromReader(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	doc := `
repository:
  url: https://files.example.org
  username: alice
  password: secret
  base_dir: games
paths:
  install_dir: ~/Games
install:
  duplicate_policy: oldest
  retries: 5
  rate_limit: 1048576
  args:
    EXE: ["/VERYSILENT", "/DIR={dir}"]
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.org", cfg.Repository.URL)
	assert.Equal(t, filepath.Join("/home/tester", "Games"), cfg.Paths.InstallDir)
	assert.NotEmpty(t, cfg.Paths.StagingDir)
	assert.Equal(t, "oldest", cfg.Install.DuplicatePolicy)
	assert.Equal(t, 5, cfg.Install.Retries)
	assert.Equal(t, DefaultThreads, cfg.Install.Threads)
	assert.Equal(t, []string{"/VERYSILENT", "/DIR={dir}"}, cfg.Install.Args[".exe"])

	opts := cfg.RepoOptions()
	assert.Equal(t, "games", opts.BaseDir)
	assert.Equal(t, int64(1048576), opts.RateLimit)
	assert.Equal(t, 5, opts.Retries)
	assert.Equal(t, filepath.Join("/home/tester", "Games", "hades"), cfg.InstallPath("hades"))
}

func TestLoadFromReader_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":      "repository: [",
		"bad policy":    "install:\n  duplicate_policy: random\n",
		"bad retries":   "install:\n  retries: -1\n",
		"bad threads":   "install:\n  threads: 99\n",
		"bad ratelimit": "install:\n  rate_limit: -5\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Repository.URL = "/mnt/games"
	cfg.Repository.Password = "secret"
	cfg.Install.DuplicatePolicy = "largest"
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/games", loaded.Repository.URL)
	assert.Equal(t, "secret", loaded.Repository.Password)
	assert.Equal(t, "largest", loaded.Install.DuplicatePolicy)

	assert.Error(t, cfg.Save(""))
}
