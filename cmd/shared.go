package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/config"
	"github.com/habedi/glm/db"
	"github.com/habedi/glm/installer"
	"github.com/habedi/glm/pkg/clierr"
	"github.com/habedi/glm/pkg/validation"
	"github.com/habedi/glm/planner"
	"github.com/habedi/glm/repo"
	"github.com/olekukonko/tablewriter"
)

// formatBytes renders a size with binary units.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// newTable returns a left-aligned table without row separators.
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)       // Align all columns to the left
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT) // Align headers to the left
	table.SetAutoWrapText(false)                     // Disable text wrapping in all columns
	table.SetRowLine(false)                          // Disable row line breaks
	return table
}

// remoteError categorizes a repository error for the user.
func remoteError(msg string, err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return clierr.New(clierr.NotFound, msg+": not found in the repository", err)
	case errors.Is(err, repo.ErrAccessDenied):
		return clierr.New(clierr.Remote, msg+": access denied, check the repository credentials", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return clierr.New(clierr.Internal, msg+": cancelled", err)
	default:
		return clierr.New(clierr.Remote, msg+": "+err.Error(), err)
	}
}

func openSource(cfg *config.Config) (repo.Source, error) {
	if cfg.Repository.URL == "" {
		return nil, clierr.New(clierr.Validation, "No repository configured. Run `glm init` first.", nil)
	}
	src, err := repo.Open(cfg.RepoOptions())
	if err != nil {
		return nil, clierr.New(clierr.Validation, "Invalid repository configuration: "+err.Error(), err)
	}
	return src, nil
}

func newBuilder(src repo.Source, cfg *config.Config) (*catalog.Builder, error) {
	policy, err := catalog.ParsePolicy(cfg.Install.DuplicatePolicy)
	if err != nil {
		return nil, clierr.New(clierr.Validation, err.Error(), err)
	}
	return &catalog.Builder{Source: src, Policy: policy}, nil
}

func newExecutor(src repo.Fetcher, cfg *config.Config) *installer.Executor {
	e := installer.NewExecutor(src, db.NewStateStore(db.GetDB()))
	e.StagingDir = cfg.Paths.StagingDir
	e.Args = cfg.Install.Args
	e.Retries = cfg.Install.Retries
	return e
}

func checkGameID(id string) error {
	if err := validation.ValidateGameID(id); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	return nil
}

// planned is everything needed to show or apply the plan of one game.
type planned struct {
	Catalog *catalog.Catalog
	State   *db.InstalledState
	Plan    *planner.Plan
}

// planGame rebuilds the catalog of a game from the repository and plans against its
// recorded state.
func planGame(ctx context.Context, builder *catalog.Builder, store db.StateStore, gameID string) (*planned, error) {
	if err := checkGameID(gameID); err != nil {
		return nil, err
	}
	c, err := builder.Build(ctx, gameID)
	if err != nil {
		return nil, remoteError("Failed to read "+gameID, err)
	}
	state, err := store.Load(ctx, gameID)
	if err != nil {
		return nil, clierr.New(clierr.Internal, "Failed to load the installed state", err)
	}

	p := &planned{Catalog: c, State: state}
	if tok, ok := state.Token(); ok {
		p.Plan, err = planner.Compute(c, &tok)
	} else {
		p.Plan, err = planner.Compute(c, nil)
	}
	if errors.Is(err, planner.ErrNoTargetAvailable) {
		return nil, clierr.New(clierr.NotFound, fmt.Sprintf("No installer found for %s", gameID), err)
	}
	if err != nil {
		return nil, clierr.New(clierr.Internal, "Failed to plan "+gameID, err)
	}
	return p, nil
}

// installError explains a failed plan execution.
func installError(gameID string, err error) error {
	var stepErr *installer.StepError
	var integrity *installer.IntegrityError
	var exitErr *installer.ExitError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return clierr.New(clierr.Install, fmt.Sprintf("Installation of %s was cancelled. Completed steps are kept; run the command again to continue.", gameID), err)
	case errors.As(err, &integrity):
		return clierr.New(clierr.Install, fmt.Sprintf("Checksum mismatch for %s (%s). The file in the repository may be damaged.", integrity.ArtifactID, integrity.Algo), err)
	case errors.As(err, &exitErr):
		return clierr.New(clierr.Install, fmt.Sprintf("%s exited with code %d.", exitErr.ArtifactID, exitErr.Code), err)
	case errors.Is(err, installer.ErrSpawnFailed):
		return clierr.New(clierr.Install, "Could not start the installer: "+err.Error(), err)
	case installer.IsTransient(err):
		return clierr.New(clierr.Remote, fmt.Sprintf("Transfer failed for %s. Run the command again to resume.", gameID), err)
	case errors.As(err, &stepErr):
		return clierr.New(clierr.Install, stepErr.Error(), err)
	default:
		return clierr.New(clierr.Install, fmt.Sprintf("Installation of %s failed: %v", gameID, err), err)
	}
}

// stepLabel is the short description of an artifact used in tables and progress bars.
func stepLabel(a catalog.Artifact) string {
	if a.Kind == catalog.Patch {
		return fmt.Sprintf("patch %s -> %s", a.From, a.To)
	}
	return "installer " + a.To.String()
}

func cleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
