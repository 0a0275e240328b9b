package db

import (
	"encoding/json"
	"fmt"

	"github.com/habedi/glm/catalog"
)

// Game is a cached catalogue row used for browsing. Planning never reads it; catalogs are
// always rebuilt from the repository.
type Game struct {
	ID     string `gorm:"primaryKey" json:"id"`
	Title  string `gorm:"index" json:"title"` // Indexed for faster queries
	Latest string `json:"latest"`
	Data   string `json:"data"`
}

// GameFromSummary serializes a catalog summary into a cache row.
func GameFromSummary(s catalog.Summary) (Game, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return Game{}, fmt.Errorf("failed to encode summary for %s: %w", s.GameID, err)
	}
	return Game{ID: s.GameID, Title: s.Title, Latest: s.Latest, Data: string(data)}, nil
}

// Summary decodes the cached summary.
func (g Game) Summary() (catalog.Summary, error) {
	var s catalog.Summary
	if err := json.Unmarshal([]byte(g.Data), &s); err != nil {
		return catalog.Summary{}, fmt.Errorf("failed to decode cached data for %s: %w", g.ID, err)
	}
	return s, nil
}
