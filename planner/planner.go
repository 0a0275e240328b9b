// Package planner computes the ordered list of artifacts that brings an installation from
// its current version to the newest version a catalog can produce.
package planner

import (
	"errors"
	"fmt"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/version"
	"github.com/rs/zerolog/log"
)

// ErrNoTargetAvailable is returned when a catalog has no installer at all.
var ErrNoTargetAvailable = errors.New("no installer available")

// Strategy describes how a plan reaches its target.
type Strategy int

const (
	UpToDate    Strategy = iota // nothing to do
	PatchChain                  // patches applied over the current installation
	FullInstall                 // fresh installation
	Reinstall                   // installed, but no patch chain reaches the target
)

func (s Strategy) String() string {
	switch s {
	case UpToDate:
		return "up-to-date"
	case PatchChain:
		return "patch-chain"
	case FullInstall:
		return "full-install"
	case Reinstall:
		return "reinstall"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Plan is an ordered artifact sequence. It is a query result and is never persisted.
type Plan struct {
	GameID   string
	From     *version.Token
	Target   version.Token
	Strategy Strategy
	Steps    []catalog.Artifact
}

// Empty reports whether there is nothing to apply.
func (p *Plan) Empty() bool { return len(p.Steps) == 0 }

// TotalSize is the number of bytes the plan fetches.
func (p *Plan) TotalSize() int64 {
	var n int64
	for _, s := range p.Steps {
		n += s.Size
	}
	return n
}

// Compute plans the upgrade of a game given its catalog and the installed version, which
// is nil when the game is not installed. The result depends only on its inputs.
func Compute(c *catalog.Catalog, current *version.Token) (*Plan, error) {
	if len(c.Installers) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoTargetAvailable, c.GameID)
	}

	g := newGraph(c.Patches)
	target := g.target(c.Installers)
	plan := &Plan{GameID: c.GameID, From: current, Target: target}

	if current != nil {
		if cmp := version.Compare(*current, target); cmp >= 0 {
			if cmp > 0 {
				log.Warn().Str("game", c.GameID).Str("installed", current.String()).Str("target", target.String()).
					Msg("Installed version is newer than anything the repository offers")
			}
			plan.Strategy = UpToDate
			return plan, nil
		}
		if chain, ok := g.shortestPath(*current, target); ok {
			plan.Strategy = PatchChain
			plan.Steps = chain
			log.Debug().Str("game", c.GameID).Int("steps", len(chain)).Msg("Found patch chain")
			return plan, nil
		}
		log.Info().Str("game", c.GameID).Str("installed", current.String()).
			Msg("No patch chain from installed version, falling back to full installer")
		plan.Strategy = Reinstall
	} else {
		plan.Strategy = FullInstall
	}

	steps, err := g.fullInstall(c.Installers, target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.GameID, err)
	}
	plan.Steps = steps
	return plan, nil
}
