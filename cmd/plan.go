package cmd

import (
	"strconv"

	"github.com/habedi/glm/db"
	"github.com/habedi/glm/pkg/operations"
	"github.com/habedi/glm/planner"
	"github.com/spf13/cobra"
)

// planCmd shows what installing or updating a game would do.
func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [gameID]",
		Short: "Show the steps needed to bring a game to its latest version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := currentConfig()
			src, err := openSource(cfg)
			if err != nil {
				return err
			}
			builder, err := newBuilder(src, cfg)
			if err != nil {
				return err
			}
			p, err := planGame(cmd.Context(), builder, db.NewStateStore(db.GetDB()), args[0])
			if err != nil {
				return err
			}
			renderPlan(cmd, p.Plan)
			return nil
		},
	}
}

func renderPlan(cmd *cobra.Command, p *planner.Plan) {
	current := "not installed"
	if p.From != nil {
		current = p.From.String()
	}
	cmd.Printf("Game: %s\n", p.GameID)
	cmd.Printf("Installed: %s, latest: %s\n", current, p.Target)
	cmd.Printf("Strategy: %s\n", p.Strategy)
	if p.Empty() {
		cmd.Println("Nothing to do.")
		return
	}

	table := newTable(cmd.OutOrStdout(), []string{"Step", "Artifact", "File", "Size"})
	for i, step := range p.Steps {
		table.Append([]string{strconv.Itoa(i + 1), stepLabel(step), step.Name, formatBytes(step.Size)})
	}
	table.Render()

	est := operations.EstimatePlan(p)
	cmd.Printf("Total download: %s (installers %s, patches %s)\n",
		formatBytes(est.Total()), formatBytes(est.InstallerBytes), formatBytes(est.PatchBytes))
}
