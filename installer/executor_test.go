package installer

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/db"
	"github.com/habedi/glm/planner"
	"github.com/habedi/glm/repo"
	"github.com/habedi/glm/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockInvoker struct {
	mock.Mock
}

func (m *mockInvoker) Run(ctx context.Context, executable string, args []string) (int, error) {
	ret := m.Called(ctx, executable, args)
	return ret.Int(0), ret.Error(1)
}

// memFetcher serves files from memory and can simulate broken transfers.
type memFetcher struct {
	mu          sync.Mutex
	files       map[string][]byte
	cut         map[string]int // deliver n bytes then fail, once
	short       map[string]int // end every transfer cleanly after n bytes
	chunk       map[string]int // fail every transfer after n bytes unless it completes
	ignoreRange bool
	offsets     []int64
}

func newMemFetcher() *memFetcher {
	return &memFetcher{files: map[string][]byte{}, cut: map[string]int{}, short: map[string]int{}, chunk: map[string]int{}}
}

func (f *memFetcher) Fetch(_ context.Context, p string, offset int64) (*repo.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	data, ok := f.files[p]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if f.ignoreRange {
		offset = 0
	}
	body := data[offset:]
	if n, ok := f.cut[p]; ok {
		delete(f.cut, p)
		r := io.MultiReader(bytes.NewReader(body[:n]), iotest.ErrReader(io.ErrUnexpectedEOF))
		return &repo.Stream{Body: io.NopCloser(r), Offset: offset, Total: int64(len(data))}, nil
	}
	if n, ok := f.chunk[p]; ok && n < len(body) {
		r := io.MultiReader(bytes.NewReader(body[:n]), iotest.ErrReader(io.ErrUnexpectedEOF))
		return &repo.Stream{Body: io.NopCloser(r), Offset: offset, Total: int64(len(data))}, nil
	}
	if n, ok := f.short[p]; ok {
		body = nil
		if int(offset) < n {
			body = data[offset:n]
		}
	}
	return &repo.Stream{Body: io.NopCloser(bytes.NewReader(body)), Offset: offset, Total: int64(len(data))}, nil
}

func (f *memFetcher) add(a *catalog.Artifact, data []byte, withChecksum bool) {
	f.files[a.Path] = data
	a.Size = int64(len(data))
	if withChecksum {
		sum := sha256.Sum256(data)
		a.Checksum = catalog.Checksum{Algo: "sha256", Value: hex.EncodeToString(sum[:])}
	}
}

func installerArtifact(name, to string) catalog.Artifact {
	return catalog.Artifact{Kind: catalog.FullInstaller, To: version.MustParse(to), Name: name, Path: "game/" + name}
}

func patchArtifact(name, from, to string) catalog.Artifact {
	return catalog.Artifact{Kind: catalog.Patch, From: version.MustParse(from), To: version.MustParse(to), Name: name, Path: "game/" + name}
}

func newTestExecutor(t *testing.T, f *memFetcher, inv Invoker) (*Executor, db.StateStore) {
	t.Helper()
	db.Path = filepath.Join(t.TempDir(), "glm.db")
	require.NoError(t, db.InitDB())
	t.Cleanup(func() { _ = db.CloseDB() })
	store := db.NewStateStore(db.GetDB())
	return &Executor{
		Source:     f,
		Invoker:    inv,
		Store:      store,
		StagingDir: t.TempDir(),
		Retries:    2,
	}, store
}

func assertStagingEmpty(t *testing.T, e *Executor) {
	t.Helper()
	entries, err := os.ReadDir(e.StagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func named(name string) interface{} {
	return mock.MatchedBy(func(p string) bool { return filepath.Base(p) == name })
}

func threeStepPlan(f *memFetcher) *planner.Plan {
	steps := []catalog.Artifact{
		installerArtifact("setup_game_1.0.exe", "1.0"),
		patchArtifact("patch_game_1.0_to_1.1.exe", "1.0", "1.1"),
		patchArtifact("patch_game_1.1_to_1.2.exe", "1.1", "1.2"),
	}
	for i := range steps {
		f.add(&steps[i], []byte("payload of "+steps[i].Name), true)
	}
	return &planner.Plan{GameID: "game", Target: version.MustParse("1.2"), Strategy: planner.FullInstall, Steps: steps}
}

func TestExecuteAppliesStepsInOrder(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	plan := threeStepPlan(f)
	dir := filepath.Join(t.TempDir(), "game")

	mock.InOrder(
		inv.On("Run", mock.Anything, named("setup_game_1.0.exe"), mock.Anything).Return(0, nil).Once(),
		inv.On("Run", mock.Anything, named("patch_game_1.0_to_1.1.exe"), mock.Anything).Return(0, nil).Once(),
		inv.On("Run", mock.Anything, named("patch_game_1.1_to_1.2.exe"), mock.Anything).Return(0, nil).Once(),
	)

	require.NoError(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: dir, Plan: plan}, nil))
	inv.AssertExpectations(t)

	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "1.2", state.Version)
	assert.Equal(t, dir, state.InstallPath)
	require.Len(t, state.History, 3)
	assert.Equal(t, "game/setup_game_1.0.exe", state.History[0].ArtifactID)
	assert.Equal(t, "1.0", state.History[1].FromVersion)
	assert.Equal(t, state.History[0].RunID, state.History[2].RunID)
	assert.NotEmpty(t, state.History[0].RunID)
	assertStagingEmpty(t, e)
}

func TestExecutePassesInstallArguments(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, _ := newTestExecutor(t, f, inv)
	e.Args = map[string][]string{".exe": {"/S", "/D={dir}"}}
	a := installerArtifact("setup_game_1.0.exe", "1.0")
	f.add(&a, []byte("x"), false)
	dir := t.TempDir()

	inv.On("Run", mock.Anything, named("setup_game_1.0.exe"), []string{"/S", "/D=" + dir}).Return(0, nil).Once()
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}
	require.NoError(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: dir, Plan: plan}, nil))
	inv.AssertExpectations(t)
}

func TestExecuteStopsAtFailingStep(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	plan := threeStepPlan(f)

	inv.On("Run", mock.Anything, named("setup_game_1.0.exe"), mock.Anything).Return(0, nil).Once()
	inv.On("Run", mock.Anything, named("patch_game_1.0_to_1.1.exe"), mock.Anything).Return(3, nil).Once()

	err := e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, nil)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 2, stepErr.Index)
	assert.Equal(t, 3, stepErr.Total)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.ErrorIs(t, err, ErrInstallerFailed)
	inv.AssertNumberOfCalls(t, "Run", 2)

	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "1.0", state.Version)
	assert.Len(t, state.History, 1)
	assertStagingEmpty(t, e)
}

func TestExecuteResumesFromRecordedState(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	full := threeStepPlan(f)
	dir := t.TempDir()

	inv.On("Run", mock.Anything, named("setup_game_1.0.exe"), mock.Anything).Return(0, nil).Once()
	inv.On("Run", mock.Anything, named("patch_game_1.0_to_1.1.exe"), mock.Anything).Return(1, nil).Once()
	require.Error(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: dir, Plan: full}, nil))

	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	current, ok := state.Token()
	require.True(t, ok)

	c := &catalog.Catalog{GameID: "game", Installers: full.Steps[:1], Patches: full.Steps[1:]}
	next, err := planner.Compute(c, &current)
	require.NoError(t, err)
	require.Equal(t, planner.PatchChain, next.Strategy)
	require.Len(t, next.Steps, 2)

	inv.On("Run", mock.Anything, named("patch_game_1.0_to_1.1.exe"), mock.Anything).Return(0, nil).Once()
	inv.On("Run", mock.Anything, named("patch_game_1.1_to_1.2.exe"), mock.Anything).Return(0, nil).Once()
	require.NoError(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: dir, Plan: next}, nil))

	state, err = store.Load(context.Background(), "game")
	require.NoError(t, err)
	assert.Equal(t, "1.2", state.Version)
	assert.Len(t, state.History, 3)
	inv.AssertNumberOfCalls(t, "Run", 4)
}

func TestExecuteIntegrityMismatch(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	a := installerArtifact("setup_game_1.0.exe", "1.0")
	f.add(&a, []byte("tampered"), false)
	sum := sha256.Sum256([]byte("original"))
	a.Checksum = catalog.Checksum{Algo: "sha256", Value: hex.EncodeToString(sum[:])}
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}

	err := e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)
	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, a.Checksum.Value, integrity.Expected)
	assert.False(t, IsTransient(err))

	inv.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	assert.Nil(t, state)
	assertStagingEmpty(t, e)
}

func TestExecuteCancelBetweenSteps(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	plan := threeStepPlan(f)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv.On("Run", mock.Anything, named("setup_game_1.0.exe"), mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(0, nil).Once()

	err := e.Execute(ctx, Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 2, stepErr.Index)
	inv.AssertNumberOfCalls(t, "Run", 1)

	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "1.0", state.Version)
	assert.Len(t, state.History, 1)
	assertStagingEmpty(t, e)
}

func TestExecuteResumesInterruptedTransfer(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	a := installerArtifact("setup_game_1.0.exe", "1.0")
	f.add(&a, bytes.Repeat([]byte("0123456789"), 100), true)
	f.cut[a.Path] = 300
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}

	inv.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(0, nil).Once()
	require.NoError(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, nil))
	assert.Equal(t, []int64{0, 300}, f.offsets)

	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	assert.Equal(t, "1.0", state.Version)
}

func TestExecuteKeepsResumingWhileTransferProgresses(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	a := installerArtifact("setup_game_1.0.exe", "1.0")
	f.add(&a, bytes.Repeat([]byte("0123456789"), 10), true)
	f.chunk[a.Path] = 10
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}

	inv.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(0, nil).Once()
	require.NoError(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, nil))
	// nine interruptions against two retries, each resume moved forward
	assert.Equal(t, []int64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}, f.offsets)

	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	assert.Equal(t, "1.0", state.Version)
}

func TestExecuteRestartsWhenRangeIgnored(t *testing.T) {
	f := newMemFetcher()
	f.ignoreRange = true
	inv := &mockInvoker{}
	e, _ := newTestExecutor(t, f, inv)
	a := installerArtifact("setup_game_1.0.exe", "1.0")
	f.add(&a, bytes.Repeat([]byte("abcdef"), 50), true)
	f.cut[a.Path] = 40
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}

	inv.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(0, nil).Once()
	require.NoError(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, nil))
	assert.Equal(t, []int64{0, 40}, f.offsets)
}

func TestExecuteShortTransferExhaustsRetries(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	a := installerArtifact("setup_game_1.0.exe", "1.0")
	f.add(&a, []byte("0123456789"), false)
	f.short[a.Path] = 4
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}

	err := e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.ErrTransferInterrupted)
	assert.True(t, IsTransient(err))
	assert.Len(t, f.offsets, e.Retries+1)
	inv.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)

	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	assert.Nil(t, state)
	assertStagingEmpty(t, e)
}

func TestExecuteMissingArtifact(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, _ := newTestExecutor(t, f, inv)
	a := installerArtifact("setup_game_1.0.exe", "1.0")
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}

	err := e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Len(t, f.offsets, 1)
}

func TestExecuteSpawnFailure(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	a := installerArtifact("setup_game_1.0.exe", "1.0")
	f.add(&a, []byte("x"), false)
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}

	inv.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(-1, errors.New("exec format error")).Once()
	err := e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawnFailed)

	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExecuteExtractsArchive(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	a := installerArtifact("game_1.0.zip", "1.0")
	f.add(&a, zipBytes(t, map[string]string{"bin/game": "binary", "data/level1.dat": "level"}), true)
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}
	dir := t.TempDir()

	require.NoError(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: dir, Plan: plan}, nil))
	inv.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)

	content, err := os.ReadFile(filepath.Join(dir, "data", "level1.dat"))
	require.NoError(t, err)
	assert.Equal(t, "level", string(content))
	assert.FileExists(t, filepath.Join(dir, "bin", "game"))

	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	assert.Equal(t, "1.0", state.Version)
}

func TestExecuteEmptyPlan(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, store := newTestExecutor(t, f, inv)
	events := make(chan Event, 4)
	plan := &planner.Plan{GameID: "game", Target: version.MustParse("1.0"), Strategy: planner.UpToDate}

	require.NoError(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, events))
	close(events)
	var phases []Phase
	for ev := range events {
		phases = append(phases, ev.Phase)
	}
	assert.Equal(t, []Phase{PhaseDone}, phases)
	assert.Empty(t, f.offsets)

	state, err := store.Load(context.Background(), "game")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestExecuteRejectsIncompleteRequest(t *testing.T) {
	e, _ := newTestExecutor(t, newMemFetcher(), &mockInvoker{})
	plan := &planner.Plan{GameID: "game"}
	assert.Error(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir()}, nil))
	assert.Error(t, e.Execute(context.Background(), Request{GameID: "game", Plan: plan}, nil))
}

func TestExecuteReportsProgress(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, _ := newTestExecutor(t, f, inv)
	a := installerArtifact("setup_game_1.0.exe", "1.0")
	f.add(&a, bytes.Repeat([]byte{7}, progressStep*2+10), true)
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}
	events := make(chan Event, 64)

	inv.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(0, nil).Once()
	require.NoError(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, events))
	close(events)

	var phases []Phase
	var lastBytes int64
	for ev := range events {
		if len(phases) == 0 || phases[len(phases)-1] != ev.Phase {
			phases = append(phases, ev.Phase)
		}
		if ev.Phase == PhaseFetching {
			assert.GreaterOrEqual(t, ev.BytesDone, lastBytes)
			lastBytes = ev.BytesDone
			assert.Equal(t, a.Size, ev.BytesTotal)
			assert.Equal(t, 1, ev.Step)
			assert.Equal(t, 1, ev.Total)
		}
	}
	assert.Equal(t, []Phase{PhaseFetching, PhaseVerifying, PhaseInstalling, PhaseApplied, PhaseDone}, phases)
	assert.Equal(t, a.Size, lastBytes)
}

func TestExecuteReportsFailure(t *testing.T) {
	f := newMemFetcher()
	inv := &mockInvoker{}
	e, _ := newTestExecutor(t, f, inv)
	a := installerArtifact("setup_game_1.0.exe", "1.0")
	f.add(&a, []byte("x"), false)
	plan := &planner.Plan{GameID: "game", Target: a.To, Strategy: planner.FullInstall, Steps: []catalog.Artifact{a}}
	events := make(chan Event, 16)

	inv.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(2, nil).Once()
	require.Error(t, e.Execute(context.Background(), Request{GameID: "game", InstallPath: t.TempDir(), Plan: plan}, events))
	close(events)

	var last Event
	for ev := range events {
		last = ev
	}
	assert.Equal(t, PhaseFailed, last.Phase)
	assert.ErrorIs(t, last.Err, ErrInstallerFailed)
	assert.Contains(t, last.String(), "failed")
}

func TestUninstall(t *testing.T) {
	e, store := newTestExecutor(t, newMemFetcher(), &mockInvoker{})
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "game")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "game.bin"), []byte("x"), 0o644))
	require.NoError(t, store.Record(ctx, "game", dir, db.AppliedArtifact{ArtifactID: "game/setup_game_1.0.exe", Kind: "installer", ToVersion: "1.0"}))

	require.NoError(t, e.Uninstall(ctx, "game", false))
	assert.DirExists(t, dir)
	state, err := store.Load(ctx, "game")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, store.Record(ctx, "game", dir, db.AppliedArtifact{ArtifactID: "game/setup_game_1.0.exe", Kind: "installer", ToVersion: "1.0"}))
	require.NoError(t, e.Uninstall(ctx, "game", true))
	assert.NoDirExists(t, dir)

	err = e.Uninstall(ctx, "game", true)
	assert.ErrorIs(t, err, ErrNotInstalled)
}
