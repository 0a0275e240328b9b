package installer

import (
	"errors"
	"fmt"

	"github.com/habedi/glm/repo"
)

var (
	ErrSpawnFailed       = errors.New("failed to start installer")
	ErrIntegrityMismatch = errors.New("integrity check failed")
	ErrInstallerFailed   = errors.New("installer failed")
)

// IntegrityError reports a checksum mismatch on a fetched artifact.
type IntegrityError struct {
	ArtifactID string
	Algo       string
	Expected   string
	Actual     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %s mismatch, expected %s, got %s", e.ArtifactID, e.Algo, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrityMismatch }

// ExitError reports an installer that ran but exited abnormally.
type ExitError struct {
	ArtifactID string
	Code       int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.ArtifactID, e.Code)
}

func (e *ExitError) Unwrap() error { return ErrInstallerFailed }

// StepError tells which plan step failed. Steps before Index were applied and recorded.
type StepError struct {
	Index      int // 1-based
	Total      int
	ArtifactID string
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d of %d (%s): %v", e.Index, e.Total, e.ArtifactID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsTransient reports whether err may go away on retry: an unreachable repository or an
// interrupted transfer. Integrity and installer failures are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIntegrityMismatch) || errors.Is(err, ErrInstallerFailed) || errors.Is(err, ErrSpawnFailed) {
		return false
	}
	return errors.Is(err, repo.ErrRemoteUnavailable) || errors.Is(err, repo.ErrTransferInterrupted)
}
