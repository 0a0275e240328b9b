package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/installer"
	"github.com/habedi/glm/pkg/clierr"
	"github.com/habedi/glm/repo"
	"github.com/habedi/glm/version"
	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{999, "999 B"},
		{1024, "1.0KiB"},
		{1024*1024 + 512*1024, "1.5MiB"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, formatBytes(c.in), "formatBytes(%d)", c.in)
	}
}

func TestStepLabel(t *testing.T) {
	full := catalog.Artifact{Kind: catalog.FullInstaller, To: version.MustParse("1.0")}
	patch := catalog.Artifact{Kind: catalog.Patch, From: version.MustParse("1.0"), To: version.MustParse("1.1")}
	assert.Equal(t, "installer 1.0", stepLabel(full))
	assert.Equal(t, "patch 1.0 -> 1.1", stepLabel(patch))
}

func TestRemoteErrorCategories(t *testing.T) {
	assert.Equal(t, clierr.NotFound, clierr.TypeOf(remoteError("x", repo.ErrNotFound)))
	assert.Equal(t, clierr.Remote, clierr.TypeOf(remoteError("x", repo.ErrAccessDenied)))
	assert.Equal(t, clierr.Remote, clierr.TypeOf(remoteError("x", repo.ErrRemoteUnavailable)))
}

func TestInstallErrorCategories(t *testing.T) {
	step := func(err error) error {
		return &installer.StepError{Index: 2, Total: 3, ArtifactID: "hades/patch.zip", Err: err}
	}

	assert.Equal(t, clierr.Remote, clierr.TypeOf(installError("hades", step(fmt.Errorf("%w: reset", repo.ErrTransferInterrupted)))))
	assert.Equal(t, clierr.Install, clierr.TypeOf(installError("hades", step(&installer.ExitError{ArtifactID: "a", Code: 2}))))
	assert.Equal(t, 130, exitCode(installError("hades", step(context.Canceled))))
	assert.Equal(t, 5, exitCode(installError("hades", errors.New("disk full"))))
}
