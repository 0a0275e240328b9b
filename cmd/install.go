package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/habedi/glm/db"
	"github.com/habedi/glm/installer"
	"github.com/habedi/glm/pkg/clierr"
	"github.com/habedi/glm/planner"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// installCmd installs a game, or brings an installed one to its latest version.
func installCmd() *cobra.Command {
	var installPath string

	cmd := &cobra.Command{
		Use:   "install [gameID]",
		Short: "Install a game or update it to the latest version",
		Long: "Install a game from the repository. Installed games are updated with patches when possible. " +
			"A failed or interrupted install keeps the completed steps; running the command again continues from there. " +
			"Passing a --path other than the recorded one installs the game afresh into that directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return installGame(cmd, args[0], installPath)
		},
	}

	cmd.Flags().StringVarP(&installPath, "path", "p", "", "Install directory (default: <install_dir>/<gameID>, or the current location of an installed game)")
	return cmd
}

func installGame(cmd *cobra.Command, gameID, installPath string) error {
	cfg := currentConfig()
	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	builder, err := newBuilder(src, cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p, err := planGame(ctx, builder, db.NewStateStore(db.GetDB()), gameID)
	if err != nil {
		return err
	}

	switch {
	case installPath != "":
		if p.State != nil && filepath.Clean(p.State.InstallPath) != filepath.Clean(installPath) {
			// patches only make sense on top of the recorded directory
			log.Warn().Str("recorded", p.State.InstallPath).Str("requested", installPath).
				Msg("Install path differs from the recorded one, running a full install")
			if p.Plan, err = planner.Compute(p.Catalog, nil); err != nil {
				return clierr.New(clierr.Internal, "Failed to plan "+gameID, err)
			}
			cmd.Printf("%s is installed in %s; performing a full install into %s.\n", gameID, p.State.InstallPath, installPath)
		}
	case p.State != nil && p.State.InstallPath != "":
		installPath = p.State.InstallPath
	default:
		installPath = cfg.InstallPath(gameID)
	}

	if p.Plan.Empty() {
		cmd.Printf("%s is up to date (%s).\n", gameID, p.Plan.Target)
		return nil
	}
	cmd.Printf("Installing %s %s into %s (%s, %d steps, %s)\n", gameID, p.Plan.Target, installPath,
		p.Plan.Strategy, len(p.Plan.Steps), formatBytes(p.Plan.TotalSize()))

	events := make(chan installer.Event, 16)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderProgress(cmd.ErrOrStderr(), events)
	}()

	executor := newExecutor(src, cfg)
	err = executor.Execute(ctx, installer.Request{GameID: gameID, InstallPath: installPath, Plan: p.Plan}, events)
	close(events)
	<-rendered
	if err != nil {
		return installError(gameID, err)
	}

	cmd.Printf("%s %s installed successfully in %s\n", gameID, p.Plan.Target, installPath)
	return nil
}

// renderProgress draws one byte progress bar per step until events is closed.
func renderProgress(w io.Writer, events <-chan installer.Event) {
	var bar *progressbar.ProgressBar
	step := 0
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
			_, _ = fmt.Fprintln(w)
			bar = nil
		}
	}

	for ev := range events {
		switch ev.Phase {
		case installer.PhaseFetching:
			if ev.Step != step || bar == nil {
				finish()
				step = ev.Step
				bar = progressbar.NewOptions64(ev.BytesTotal,
					progressbar.OptionSetWriter(w),
					progressbar.OptionSetDescription(fmt.Sprintf("[%d/%d] %s", ev.Step, ev.Total, ev.ArtifactID)),
					progressbar.OptionShowBytes(true),
					progressbar.OptionSetWidth(30),
					progressbar.OptionThrottle(100*time.Millisecond),
				)
			}
			_ = bar.Set64(ev.BytesDone)
		case installer.PhaseVerifying, installer.PhaseInstalling:
			if bar != nil {
				bar.Describe(fmt.Sprintf("[%d/%d] %s: %s", ev.Step, ev.Total, ev.Phase, ev.ArtifactID))
			}
		case installer.PhaseApplied:
			finish()
			_, _ = fmt.Fprintf(w, "[%d/%d] applied %s (now %s)\n", ev.Step, ev.Total, ev.ArtifactID, ev.Message)
		case installer.PhaseFailed:
			finish()
			_, _ = fmt.Fprintf(w, "[%d/%d] failed %s: %v\n", ev.Step, ev.Total, ev.ArtifactID, ev.Err)
		case installer.PhaseDone:
			finish()
		}
	}
	finish()
}
