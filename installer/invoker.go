package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
)

// Invoker runs an installer or patch executable and returns its exit code. A non-nil
// error means the process could not be started.
type Invoker interface {
	Run(ctx context.Context, executable string, args []string) (int, error)
}

// DefaultArgs are the silent-install arguments per extension. "{dir}" is replaced by the
// install directory.
var DefaultArgs = map[string][]string{
	// Inno Setup, used by GOG offline installers and patches
	".exe": {"/VERYSILENT", "/SUPPRESSMSGBOXES", "/NORESTART", "/SP-", "/DIR={dir}"},
	".msi": {"/quiet", "/norestart", "TARGETDIR={dir}"},
	// makeself archives used by GOG Linux installers
	".sh":  {"--", "--i-agree-to-all-licenses", "--noreadme", "--nooptions", "--noprompt", "--destination", "{dir}"},
	".run": {"--", "--i-agree-to-all-licenses", "--noreadme", "--nooptions", "--noprompt", "--destination", "{dir}"},
	".bin": {},
}

// archiveExtensions are unpacked into the install directory instead of being run.
var archiveExtensions = []string{".tar.gz", ".tgz", ".zip", ".7z", ".rar", ".tar"}

// extOf returns the lower-case extension, keeping ".tar.gz" whole.
func extOf(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".tar.gz") {
		return ".tar.gz"
	}
	if i := strings.LastIndex(lower, "."); i >= 0 {
		return lower[i:]
	}
	return ""
}

func isArchive(name string) bool {
	ext := extOf(name)
	for _, a := range archiveExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// buildArgs expands the argument template for the artifact's extension. Configured
// templates override DefaultArgs.
func buildArgs(overrides map[string][]string, name, dir string) []string {
	ext := extOf(name)
	tmpl, ok := overrides[ext]
	if !ok {
		tmpl = DefaultArgs[ext]
	}
	args := make([]string, len(tmpl))
	for i, a := range tmpl {
		args[i] = strings.ReplaceAll(a, "{dir}", dir)
	}
	return args
}

// command decides what to execute for a staged artifact. Shell installers run through sh
// so they need no executable bit; MSI packages go through msiexec.
func command(path string, args []string) (string, []string) {
	switch extOf(path) {
	case ".sh", ".run":
		return "sh", append([]string{path}, args...)
	case ".msi":
		return "msiexec", append([]string{"/i", path}, args...)
	case ".exe":
		if runtime.GOOS != "windows" {
			if wine, err := exec.LookPath("wine"); err == nil {
				return wine, append([]string{path}, args...)
			}
		}
	}
	return path, args
}

// ExecInvoker starts real processes. Once started, a process runs to completion even if
// ctx is cancelled: a half-run installer leaves the installation in an unknown state.
type ExecInvoker struct {
	// Dir is the working directory; empty means the executable's directory.
	Dir string
}

func (ExecInvoker) String() string { return "exec" }

// Run implements Invoker.
func (inv ExecInvoker) Run(ctx context.Context, executable string, args []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	if extOf(executable) == ".bin" || extOf(executable) == "" {
		if err := os.Chmod(executable, 0o755); err != nil {
			log.Warn().Err(err).Str("file", executable).Msg("Failed to mark installer executable")
		}
	}
	name, argv := command(executable, args)
	cmd := exec.Command(name, argv...)
	cmd.Dir = inv.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log.Info().Str("cmd", name).Strs("args", argv).Msg("Running installer")
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	err := cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
}
