package cmd

import (
	"context"
	"fmt"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/config"
	"github.com/habedi/glm/db"
	"github.com/habedi/glm/installer"
	"github.com/habedi/glm/pkg/clierr"
	"github.com/habedi/glm/pkg/validation"
	"github.com/habedi/glm/repo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// updateOutcome is the result of updating one game.
type updateOutcome struct {
	GameID string
	From   string
	To     string
	Status string
	Err    error
}

// updateCmd updates installed games. Games are updated in parallel; the steps of one game
// are always applied in order.
func updateCmd() *cobra.Command {
	var all bool
	var jobs int

	cmd := &cobra.Command{
		Use:   "update [gameID...]",
		Short: "Update installed games to their latest version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return clierr.New(clierr.Validation, "Pass either game IDs or --all.", nil)
			}
			return updateGames(cmd, args, jobs)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Update every installed game")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Number of games to update in parallel [1-20]; 0 uses the configured value")
	return cmd
}

func updateGames(cmd *cobra.Command, gameIDs []string, jobs int) error {
	cfg := currentConfig()
	if jobs == 0 {
		jobs = cfg.Install.Threads
	}
	if err := validation.ValidateThreadCount(jobs); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}

	ctx := cmd.Context()
	store := db.NewStateStore(db.GetDB())
	if len(gameIDs) == 0 {
		states, err := store.List(ctx)
		if err != nil {
			return clierr.New(clierr.Internal, "Failed to list installed games", err)
		}
		for _, s := range states {
			gameIDs = append(gameIDs, s.GameID)
		}
		if len(gameIDs) == 0 {
			cmd.Println("No installed games.")
			return nil
		}
	}
	for _, id := range gameIDs {
		if err := checkGameID(id); err != nil {
			return err
		}
	}

	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	builder, err := newBuilder(src, cfg)
	if err != nil {
		return err
	}

	outcomes := make([]updateOutcome, len(gameIDs))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, id := range gameIDs {
		g.Go(func() error {
			// failures are reported per game and do not stop the others
			outcomes[i] = updateOne(ctx, src, builder, store, cfg, id)
			return nil
		})
	}
	_ = g.Wait()

	table := newTable(cmd.OutOrStdout(), []string{"Game ID", "From", "To", "Result"})
	failed := 0
	for _, o := range outcomes {
		result := o.Status
		if o.Err != nil {
			failed++
			result = "failed: " + o.Err.Error()
		}
		table.Append([]string{o.GameID, o.From, o.To, result})
	}
	table.Render()

	if failed > 0 {
		return clierr.New(clierr.Install, fmt.Sprintf("%d of %d updates failed", failed, len(outcomes)), nil)
	}
	return nil
}

func updateOne(ctx context.Context, src repo.Source, builder *catalog.Builder, store db.StateStore, cfg *config.Config, gameID string) updateOutcome {
	out := updateOutcome{GameID: gameID, From: "-"}
	state, err := store.Load(ctx, gameID)
	if err != nil {
		out.Err = err
		return out
	}
	if state == nil {
		out.Err = fmt.Errorf("%w: %s", installer.ErrNotInstalled, gameID)
		return out
	}
	out.From = state.Version

	p, err := planGame(ctx, builder, store, gameID)
	if err != nil {
		out.Err = err
		return out
	}
	out.To = p.Plan.Target.String()
	if p.Plan.Empty() {
		out.Status = "up to date"
		return out
	}

	installPath := state.InstallPath
	if installPath == "" {
		installPath = cfg.InstallPath(gameID)
	}
	log.Info().Str("game", gameID).Str("from", out.From).Str("to", out.To).Int("steps", len(p.Plan.Steps)).Msg("Updating game")
	err = newExecutor(src, cfg).Execute(ctx, installer.Request{GameID: gameID, InstallPath: installPath, Plan: p.Plan}, nil)
	if err != nil {
		out.Err = installError(gameID, err)
		return out
	}
	out.Status = fmt.Sprintf("updated (%s, %d steps)", p.Plan.Strategy, len(p.Plan.Steps))
	return out
}
