// Package installer applies upgrade plans: it fetches each artifact into a staging area,
// verifies it, runs or unpacks it, and records the result in the state store.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/db"
	"github.com/habedi/glm/planner"
	"github.com/habedi/glm/repo"
	"github.com/rs/zerolog/log"
)

// ErrNotInstalled is returned by Uninstall for games without a state record.
var ErrNotInstalled = errors.New("game is not installed")

// Request is one plan to apply to one install directory.
type Request struct {
	GameID      string
	InstallPath string
	Plan        *planner.Plan
}

// Executor applies plans one artifact at a time.
type Executor struct {
	Source  repo.Fetcher
	Invoker Invoker
	Store   db.StateStore

	// StagingDir is the parent of the per-artifact staging directories.
	StagingDir string
	// Args overrides DefaultArgs per extension.
	Args       map[string][]string
	Retries    int
	RetryDelay time.Duration
}

// NewExecutor returns an Executor that runs real processes and stages under the system
// temp directory.
func NewExecutor(src repo.Fetcher, store db.StateStore) *Executor {
	return &Executor{
		Source:     src,
		Invoker:    ExecInvoker{},
		Store:      store,
		StagingDir: os.TempDir(),
		Retries:    3,
		RetryDelay: time.Second,
	}
}

// Execute applies req.Plan in order. State is recorded after every successful step, so a
// failed or cancelled run leaves the store reflecting exactly the completed steps. progress
// may be nil; it is never closed by Execute.
func (e *Executor) Execute(ctx context.Context, req Request, progress chan<- Event) error {
	if req.Plan == nil {
		return fmt.Errorf("no plan for %s", req.GameID)
	}
	if req.InstallPath == "" {
		return fmt.Errorf("no install path for %s", req.GameID)
	}
	em := emitter{ch: progress}
	total := len(req.Plan.Steps)
	if req.Plan.Empty() {
		log.Info().Str("game", req.GameID).Str("strategy", req.Plan.Strategy.String()).Msg("Nothing to apply")
		em.emit(ctx, Event{Phase: PhaseDone, Message: req.Plan.Strategy.String()})
		return nil
	}

	if err := os.MkdirAll(req.InstallPath, 0o755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}
	if e.StagingDir != "" {
		if err := os.MkdirAll(e.StagingDir, 0o755); err != nil {
			return fmt.Errorf("failed to create staging directory: %w", err)
		}
	}

	runID := uuid.NewString()
	log.Info().Str("game", req.GameID).Str("run", runID).Int("steps", total).
		Str("strategy", req.Plan.Strategy.String()).Str("target", req.Plan.Target.String()).Msg("Applying plan")

	for i, step := range req.Plan.Steps {
		base := Event{Step: i + 1, Total: total, ArtifactID: step.ID(), BytesTotal: step.Size}
		if err := ctx.Err(); err != nil {
			log.Warn().Str("game", req.GameID).Int("step", i+1).Msg("Plan cancelled before step")
			return &StepError{Index: i + 1, Total: total, ArtifactID: step.ID(), Err: err}
		}
		if err := e.apply(ctx, runID, req, step, em, base); err != nil {
			failed := base
			failed.Phase = PhaseFailed
			failed.Err = err
			em.emit(ctx, failed)
			log.Error().Err(err).Str("game", req.GameID).Str("artifact", step.ID()).Int("step", i+1).Msg("Step failed")
			return &StepError{Index: i + 1, Total: total, ArtifactID: step.ID(), Err: err}
		}
	}

	em.emit(ctx, Event{Step: total, Total: total, Phase: PhaseDone, Message: req.Plan.Target.String()})
	log.Info().Str("game", req.GameID).Str("run", runID).Str("version", req.Plan.Target.String()).Msg("Plan applied")
	return nil
}

// apply runs one step. Its staging directory is removed on every path.
func (e *Executor) apply(ctx context.Context, runID string, req Request, a catalog.Artifact, em emitter, base Event) error {
	staging, err := os.MkdirTemp(e.StagingDir, "glm-stage-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			log.Warn().Err(err).Str("dir", staging).Msg("Failed to remove staging directory")
		}
	}()

	s, err := e.fetch(ctx, a, staging, em, base)
	if err != nil {
		return err
	}

	if a.Checksum.Known() {
		ev := base
		ev.Phase = PhaseVerifying
		ev.BytesDone = s.size
		em.emit(ctx, ev)
		if !strings.EqualFold(s.digest, a.Checksum.Value) {
			return &IntegrityError{ArtifactID: a.ID(), Algo: a.Checksum.Algo, Expected: a.Checksum.Value, Actual: s.digest}
		}
	}

	// last point at which the step can be abandoned
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := base
	ev.Phase = PhaseInstalling
	ev.BytesDone = s.size
	em.emit(ctx, ev)

	// once started, installation runs to completion
	runCtx := context.WithoutCancel(ctx)
	if isArchive(s.path) {
		n, err := extractArchive(runCtx, s.path, req.InstallPath)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInstallerFailed, a.ID(), err)
		}
		log.Debug().Str("artifact", a.ID()).Int("files", n).Msg("Archive extracted")
	} else {
		if e.Invoker == nil {
			return fmt.Errorf("%w: no invoker configured", ErrSpawnFailed)
		}
		code, err := e.Invoker.Run(runCtx, s.path, buildArgs(e.Args, s.path, req.InstallPath))
		if err != nil {
			if !errors.Is(err, ErrSpawnFailed) {
				err = fmt.Errorf("%w: %v", ErrSpawnFailed, err)
			}
			return err
		}
		if code != 0 {
			return &ExitError{ArtifactID: a.ID(), Code: code}
		}
	}

	applied := db.AppliedArtifact{
		ArtifactID: a.ID(),
		Kind:       a.Kind.String(),
		ToVersion:  a.To.String(),
		RunID:      runID,
	}
	if a.Kind == catalog.Patch {
		applied.FromVersion = a.From.String()
	}
	if err := e.Store.Record(runCtx, req.GameID, req.InstallPath, applied); err != nil {
		return err
	}

	ev.Phase = PhaseApplied
	ev.Message = a.To.String()
	em.emit(ctx, ev)
	return nil
}

// Uninstall forgets an installed game. With removeFiles the install directory is deleted
// first.
func (e *Executor) Uninstall(ctx context.Context, gameID string, removeFiles bool) error {
	state, err := e.Store.Load(ctx, gameID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("%w: %s", ErrNotInstalled, gameID)
	}
	if removeFiles {
		if err := removeInstallDir(state.InstallPath); err != nil {
			return err
		}
	}
	if err := e.Store.Remove(ctx, gameID); err != nil {
		return fmt.Errorf("failed to remove state of %s: %w", gameID, err)
	}
	log.Info().Str("game", gameID).Bool("files", removeFiles).Msg("Game uninstalled")
	return nil
}

func removeInstallDir(dir string) error {
	if dir == "" {
		return nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	home, _ := os.UserHomeDir()
	if abs == filepath.Dir(abs) || abs == home {
		return fmt.Errorf("refusing to remove %s", abs)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("failed to remove install directory: %w", err)
	}
	return nil
}
