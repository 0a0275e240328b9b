package cmd

import (
	"errors"

	"github.com/habedi/glm/db"
	"github.com/habedi/glm/installer"
	"github.com/habedi/glm/pkg/clierr"
	"github.com/spf13/cobra"
)

// uninstallCmd forgets an installed game and optionally deletes its files.
func uninstallCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "uninstall [gameID]",
		Short: "Remove a game from the installed games",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID := args[0]
			if err := checkGameID(gameID); err != nil {
				return err
			}
			// uninstalling needs no repository access
			e := &installer.Executor{Store: db.NewStateStore(db.GetDB())}
			if err := e.Uninstall(cmd.Context(), gameID, purge); err != nil {
				if errors.Is(err, installer.ErrNotInstalled) {
					return clierr.New(clierr.NotFound, gameID+" is not installed.", err)
				}
				return clierr.New(clierr.Install, "Failed to uninstall "+gameID+": "+err.Error(), err)
			}
			if purge {
				cmd.Printf("%s uninstalled and its files removed.\n", gameID)
			} else {
				cmd.Printf("%s uninstalled. Its files were left in place.\n", gameID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Also delete the install directory")
	return cmd
}
