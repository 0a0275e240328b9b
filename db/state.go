package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habedi/glm/version"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InstalledState is what is installed for one game. It is the only source of truth for
// the installed version; install directories are never inspected.
type InstalledState struct {
	GameID      string            `gorm:"primaryKey" json:"game_id"`
	Version     string            `json:"version"`
	InstallPath string            `json:"install_path"`
	UpdatedAt   time.Time         `json:"updated_at"`
	History     []AppliedArtifact `gorm:"foreignKey:GameID;references:GameID;constraint:OnDelete:CASCADE" json:"history"`
}

// AppliedArtifact is one successfully applied installer or patch.
type AppliedArtifact struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	GameID      string    `gorm:"index" json:"game_id"`
	ArtifactID  string    `json:"artifact_id"`
	Kind        string    `json:"kind"`
	FromVersion string    `json:"from_version,omitempty"`
	ToVersion   string    `json:"to_version"`
	RunID       string    `gorm:"index" json:"run_id"`
	AppliedAt   time.Time `json:"applied_at"`
}

// Token parses the stored version.
func (s *InstalledState) Token() (version.Token, bool) {
	if s == nil || s.Version == "" {
		return version.Token{}, false
	}
	return version.Parse(s.Version)
}

// StateStore persists InstalledState records.
type StateStore interface {
	// Load returns nil, nil when the game is not installed.
	Load(ctx context.Context, gameID string) (*InstalledState, error)
	// Save replaces the record and its history.
	Save(ctx context.Context, state *InstalledState) error
	// Record appends one applied artifact and moves the version to its target atomically.
	Record(ctx context.Context, gameID, installPath string, applied AppliedArtifact) error
	Remove(ctx context.Context, gameID string) error
	List(ctx context.Context) ([]InstalledState, error)
}

type gormStateStore struct{ db *gorm.DB }

// NewStateStore creates a StateStore. Accepts *gorm.DB to avoid global access.
func NewStateStore(db *gorm.DB) StateStore { return &gormStateStore{db: db} }

func historyOrder(db *gorm.DB) *gorm.DB { return db.Order("applied_artifacts.id") }

func (s *gormStateStore) Load(ctx context.Context, gameID string) (*InstalledState, error) {
	if s.db == nil {
		return nil, fmt.Errorf("state store not initialized")
	}
	var state InstalledState
	err := s.db.WithContext(ctx).Preload("History", historyOrder).First(&state, "game_id = ?", gameID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state of %s: %w", gameID, err)
	}
	return &state, nil
}

func (s *gormStateStore) Save(ctx context.Context, state *InstalledState) error {
	if s.db == nil {
		return fmt.Errorf("state store not initialized")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{UpdateAll: true}).Create(state).Error; err != nil {
			return err
		}
		if err := tx.Where("game_id = ?", state.GameID).Delete(&AppliedArtifact{}).Error; err != nil {
			return err
		}
		for i := range state.History {
			h := state.History[i]
			h.ID = 0
			h.GameID = state.GameID
			if err := tx.Create(&h).Error; err != nil {
				return err
			}
			state.History[i] = h
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("game", state.GameID).Msg("Failed to save installed state")
		return fmt.Errorf("failed to save state of %s: %w", state.GameID, err)
	}
	log.Debug().Str("game", state.GameID).Str("version", state.Version).Msg("Installed state saved")
	return nil
}

func (s *gormStateStore) Record(ctx context.Context, gameID, installPath string, applied AppliedArtifact) error {
	if s.db == nil {
		return fmt.Errorf("state store not initialized")
	}
	if applied.AppliedAt.IsZero() {
		applied.AppliedAt = time.Now().UTC()
	}
	applied.ID = 0
	applied.GameID = gameID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state := InstalledState{
			GameID:      gameID,
			Version:     applied.ToVersion,
			InstallPath: installPath,
			UpdatedAt:   applied.AppliedAt,
		}
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{UpdateAll: true}).Create(&state).Error; err != nil {
			return err
		}
		return tx.Create(&applied).Error
	})
	if err != nil {
		log.Error().Err(err).Str("game", gameID).Str("artifact", applied.ArtifactID).Msg("Failed to record applied artifact")
		return fmt.Errorf("failed to record %s for %s: %w", applied.ArtifactID, gameID, err)
	}
	log.Info().Str("game", gameID).Str("artifact", applied.ArtifactID).Str("version", applied.ToVersion).Msg("Recorded applied artifact")
	return nil
}

func (s *gormStateStore) Remove(ctx context.Context, gameID string) error {
	if s.db == nil {
		return fmt.Errorf("state store not initialized")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("game_id = ?", gameID).Delete(&AppliedArtifact{}).Error; err != nil {
			return err
		}
		return tx.Where("game_id = ?", gameID).Delete(&InstalledState{}).Error
	})
}

func (s *gormStateStore) List(ctx context.Context) ([]InstalledState, error) {
	if s.db == nil {
		return nil, fmt.Errorf("state store not initialized")
	}
	var states []InstalledState
	if err := s.db.WithContext(ctx).Preload("History", historyOrder).Order("game_id").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}
