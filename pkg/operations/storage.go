package operations

import (
	"context"
	"fmt"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/db"
	"github.com/habedi/glm/planner"
)

// PlanEstimate breaks down the download volume of a plan.
type PlanEstimate struct {
	Steps          int
	InstallerBytes int64
	PatchBytes     int64
}

// Total returns the number of bytes the plan downloads.
func (e PlanEstimate) Total() int64 { return e.InstallerBytes + e.PatchBytes }

// EstimatePlan sums the artifact sizes of a plan per kind.
func EstimatePlan(p *planner.Plan) PlanEstimate {
	var e PlanEstimate
	if p == nil {
		return e
	}
	for _, step := range p.Steps {
		e.Steps++
		if step.Kind == catalog.Patch {
			e.PatchBytes += step.Size
		} else {
			e.InstallerBytes += step.Size
		}
	}
	return e
}

// EstimateGameSize returns the repository size of a game from the catalogue cache.
func EstimateGameSize(ctx context.Context, games db.GameRepository, gameID string) (int64, *catalog.Summary, error) {
	game, err := games.GetByID(ctx, gameID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to retrieve game data for %s: %w", gameID, err)
	}
	if game == nil {
		return 0, nil, fmt.Errorf("game %s not found in the catalogue", gameID)
	}
	summary, err := game.Summary()
	if err != nil {
		return 0, nil, err
	}
	return summary.Size, &summary, nil
}
