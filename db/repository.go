package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameRepository defines decoupled operations for the catalogue cache.
type GameRepository interface {
	Put(ctx context.Context, g Game) error
	GetByID(ctx context.Context, id string) (*Game, error)
	List(ctx context.Context) ([]Game, error)
	SearchByTitle(ctx context.Context, titleSubstr string) ([]Game, error)
	Clear(ctx context.Context) error
	Replace(ctx context.Context, games []Game) error
}

// gormGameRepo is a GORM-backed implementation of GameRepository.
// Use constructor NewGameRepository to obtain an instance.
type gormGameRepo struct{ db *gorm.DB }

// NewGameRepository creates a GameRepository. Accepts *gorm.DB to avoid global access.
func NewGameRepository(db *gorm.DB) GameRepository { return &gormGameRepo{db: db} }

func (r *gormGameRepo) Put(ctx context.Context, g Game) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&g).Error
}

func (r *gormGameRepo) GetByID(ctx context.Context, id string) (*Game, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var game Game
	err := r.db.WithContext(ctx).First(&game, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (r *gormGameRepo) List(ctx context.Context) ([]Game, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var games []Game
	if err := r.db.WithContext(ctx).Order("title").Find(&games).Error; err != nil {
		return nil, err
	}
	return games, nil
}

func (r *gormGameRepo) SearchByTitle(ctx context.Context, titleSubstr string) ([]Game, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var games []Game
	pattern := "%" + titleSubstr + "%"
	if err := r.db.WithContext(ctx).Where("title LIKE ? OR id LIKE ?", pattern, pattern).Order("title").Find(&games).Error; err != nil {
		return nil, err
	}
	return games, nil
}

func (r *gormGameRepo) Clear(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&Game{}).Error
}

// Replace swaps the whole cache in one transaction, so readers never see a partial refresh.
func (r *gormGameRepo) Replace(ctx context.Context, games []Game) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&Game{}).Error; err != nil {
			return err
		}
		if len(games) == 0 {
			return nil
		}
		return tx.CreateInBatches(games, 100).Error
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to replace game catalogue")
		return err
	}
	log.Info().Int("games", len(games)).Msg("Game catalogue replaced")
	return nil
}
