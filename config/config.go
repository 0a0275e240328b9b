// Package config loads and saves the YAML configuration: where the repository lives, where
// games are installed, and how installs behave.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/habedi/glm/pkg/validation"
	"github.com/habedi/glm/repo"
	"gopkg.in/yaml.v3"
)

// Path is the default location of the configuration file.
var Path = filepath.Join(os.Getenv("HOME"), ".glm", "config.yaml")

// Config is the whole configuration file.
type Config struct {
	Repository Repository `yaml:"repository"`
	Paths      Paths      `yaml:"paths"`
	Install    Install    `yaml:"install"`
}

// Repository locates the game share. URL is either a mounted directory or an http(s)
// address of a file server with JSON directory listings.
type Repository struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	BaseDir  string `yaml:"base_dir,omitempty"`
}

// Paths are local directories.
type Paths struct {
	InstallDir string `yaml:"install_dir"`
	StagingDir string `yaml:"staging_dir"`
	Database   string `yaml:"database,omitempty"`
}

// Install tunes the executor.
type Install struct {
	DuplicatePolicy string `yaml:"duplicate_policy"`
	Retries         int    `yaml:"retries"`
	RateLimit       int64  `yaml:"rate_limit"` // bytes per second, 0 is unlimited
	Threads         int    `yaml:"threads"`
	// Args maps a file extension such as ".exe" to the arguments passed to installers
	// with that extension. "{dir}" is replaced by the install directory.
	Args map[string][]string `yaml:"args,omitempty"`
}

// Default configuration values.
const (
	DefaultRetries = 3
	DefaultThreads = 2
	DefaultPolicy  = "newest"
)

// Default returns a configuration with no repository and directories under the home
// directory.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Paths: Paths{
			InstallDir: filepath.Join(home, "Games"),
			StagingDir: os.TempDir(),
		},
		Install: Install{
			DuplicatePolicy: DefaultPolicy,
			Retries:         DefaultRetries,
			Threads:         DefaultThreads,
		},
	}
}

// Load reads the file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()
	return LoadFromReader(file)
}

// LoadFromReader parses YAML, fills unset fields with defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Paths.InstallDir == "" {
		c.Paths.InstallDir = d.Paths.InstallDir
	}
	if c.Paths.StagingDir == "" {
		c.Paths.StagingDir = d.Paths.StagingDir
	}
	if c.Install.DuplicatePolicy == "" {
		c.Install.DuplicatePolicy = DefaultPolicy
	}
	if c.Install.Threads == 0 {
		c.Install.Threads = DefaultThreads
	}
	c.Paths.InstallDir = expandHome(c.Paths.InstallDir)
	c.Paths.StagingDir = expandHome(c.Paths.StagingDir)
	c.Paths.Database = expandHome(c.Paths.Database)

	if len(c.Install.Args) > 0 {
		normalized := make(map[string][]string, len(c.Install.Args))
		for ext, args := range c.Install.Args {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			normalized[ext] = args
		}
		c.Install.Args = normalized
	}
}

// Validate checks value ranges. An empty repository URL is allowed so that commands not
// touching the repository still work.
func (c *Config) Validate() error {
	if err := validation.ValidateDuplicatePolicy(c.Install.DuplicatePolicy); err != nil {
		return err
	}
	if err := validation.ValidateRetries(c.Install.Retries); err != nil {
		return err
	}
	if err := validation.ValidateThreadCount(c.Install.Threads); err != nil {
		return err
	}
	if err := validation.ValidateRateLimit(c.Install.RateLimit); err != nil {
		return err
	}
	return validation.ValidateNonEmptyString("paths.install_dir", c.Paths.InstallDir)
}

// Save writes the configuration atomically with owner-only permissions, since it may
// hold a password.
func (c *Config) Save(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// RepoOptions converts the repository section for repo.Open.
func (c *Config) RepoOptions() repo.Options {
	return repo.Options{
		URL:       c.Repository.URL,
		Username:  c.Repository.Username,
		Password:  c.Repository.Password,
		BaseDir:   c.Repository.BaseDir,
		RateLimit: c.Install.RateLimit,
		Retries:   c.Install.Retries,
	}
}

// InstallPath is where a game is installed unless overridden.
func (c *Config) InstallPath(gameID string) string {
	return filepath.Join(c.Paths.InstallDir, gameID)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
