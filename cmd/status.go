package cmd

import (
	"strconv"

	"github.com/habedi/glm/db"
	"github.com/habedi/glm/pkg/clierr"
	"github.com/spf13/cobra"
)

// statusCmd shows installed games, or the history of one.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [gameID]",
		Short: "Show installed games and their history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := db.NewStateStore(db.GetDB())
			if len(args) == 1 {
				return showGameStatus(cmd, store, args[0])
			}
			return listInstalled(cmd, store)
		},
	}
}

func listInstalled(cmd *cobra.Command, store db.StateStore) error {
	states, err := store.List(cmd.Context())
	if err != nil {
		return clierr.New(clierr.Internal, "Failed to list installed games", err)
	}
	if len(states) == 0 {
		cmd.Println("No installed games. Use `glm install` to install one.")
		return nil
	}

	table := newTable(cmd.OutOrStdout(), []string{"Game ID", "Version", "Path", "Updated"})
	for _, s := range states {
		table.Append([]string{s.GameID, s.Version, s.InstallPath, s.UpdatedAt.Local().Format("2006-01-02 15:04")})
	}
	table.Render()
	return nil
}

func showGameStatus(cmd *cobra.Command, store db.StateStore, gameID string) error {
	if err := checkGameID(gameID); err != nil {
		return err
	}
	state, err := store.Load(cmd.Context(), gameID)
	if err != nil {
		return clierr.New(clierr.Internal, "Failed to load the installed state", err)
	}
	if state == nil {
		return clierr.New(clierr.NotFound, gameID+" is not installed.", nil)
	}

	cmd.Printf("Game: %s\n", state.GameID)
	cmd.Printf("Version: %s\n", state.Version)
	cmd.Printf("Path: %s\n", state.InstallPath)

	table := newTable(cmd.OutOrStdout(), []string{"#", "Artifact", "Kind", "From", "To", "Run", "Applied"})
	for i, h := range state.History {
		run := h.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		table.Append([]string{
			strconv.Itoa(i + 1), h.ArtifactID, h.Kind, h.FromVersion, h.ToVersion, run,
			h.AppliedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return nil
}
