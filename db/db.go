package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// Db is the global database connection object
	Db *gorm.DB
	// Path is the default path to the SQLite database file
	Path = filepath.Join(os.Getenv("HOME"), ".glm/glm.db")
)

// InitDB initializes the database by creating the necessary directory,
// opening the database connection, migrating tables, and configuring the logger.
func InitDB() error {
	if err := createDBDirectory(); err != nil {
		return err
	}

	if err := openDatabase(); err != nil {
		return err
	}

	if err := migrateTables(); err != nil {
		return err
	}

	configureLogger()

	log.Info().Str("path", Path).Msg("Database initialized successfully")
	return nil
}

// ConfigurePath picks the database location: $GLM_HOME, then $XDG_DATA_HOME/glm, then
// ~/.glm.
func ConfigurePath() error {
	if home := os.Getenv("GLM_HOME"); home != "" {
		Path = filepath.Join(home, "glm.db")
		return nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		Path = filepath.Join(xdg, "glm", "glm.db")
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}
	Path = filepath.Join(home, ".glm", "glm.db")
	return nil
}

// Shutdown closes the database and only logs failures. It is safe to call from signal
// handlers.
func Shutdown() {
	if err := CloseDB(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}

// GetDB returns the global connection, or nil before InitDB.
func GetDB() *gorm.DB {
	return Db
}

// createDBDirectory creates the directory for the database file if it does not exist.
func createDBDirectory() error {
	dir := filepath.Dir(Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error().Err(err).Msg("Failed to create database directory")
			return err
		}
	}
	return nil
}

// openDatabase opens a connection to the SQLite database. SQLite allows one writer, so
// the pool is limited to a single connection and concurrent updates queue up.
func openDatabase() error {
	var err error
	Db, err = gorm.Open(sqlite.Open(Path+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		return err
	}
	sqlDB, err := Db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

// migrateTables creates or updates the schema.
func migrateTables() error {
	if err := Db.AutoMigrate(&Game{}, &InstalledState{}, &AppliedArtifact{}); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate database")
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// configureLogger silences gorm unless debug logging is enabled.
func configureLogger() {
	if zerolog.GlobalLevel() == zerolog.Disabled || zerolog.GlobalLevel() > zerolog.DebugLevel {
		Db.Logger = Db.Logger.LogMode(logger.Silent)
	} else {
		Db.Logger = Db.Logger.LogMode(logger.Info)
	}
}

// CloseDB closes the database connection.
func CloseDB() error {
	if Db == nil {
		return nil
	}
	sqlDB, err := Db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	return sqlDB.Close()
}
