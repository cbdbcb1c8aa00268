package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vk/studymanager/internal/ctxlog"
	"github.com/vk/studymanager/internal/model"
)

// ShellRunner executes cases as local subprocesses. The case command runs
// in its destination run directory; whatever files it leaves there are the
// run's artifacts.
type ShellRunner struct {
	// Dest is the destination run directory root.
	Dest string
	// Ref is the reference results root used by Compare.
	Ref string
	// GracePeriod is how long a terminated process gets between SIGTERM
	// and SIGKILL.
	GracePeriod time.Duration
}

// runDir returns the per-case working directory under the destination.
func (r *ShellRunner) runDir(c *model.Case) string {
	return filepath.Join(r.Dest, c.Study, c.Name)
}

// Run executes the case command through the shell. Cancellation sends
// SIGTERM and escalates to SIGKILL after the grace period.
func (r *ShellRunner) Run(ctx context.Context, c *model.Case) (*model.RunResult, error) {
	logger := ctxlog.FromContext(ctx).With("case", c.ID())

	dir := r.runDir(c)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	result := &model.RunResult{Started: time.Now()}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", c.Command)
	cmd.Dir = dir
	cmd.Cancel = func() error {
		logger.Warn("Sending termination signal to case process.")
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.GracePeriod

	err := cmd.Run()
	result.Finished = time.Now()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, err
	}

	artifacts, err := listArtifacts(dir)
	if err != nil {
		return result, err
	}
	result.Artifacts = artifacts
	return result, nil
}

// Compare diffs the case's run directory against the reference directory,
// judging numeric deviations against the case tolerance.
func (r *ShellRunner) Compare(ctx context.Context, c *model.Case) (*model.CompareSummary, error) {
	refDir := filepath.Join(r.Ref, c.Study, c.Name)
	return CompareDirs(ctx, refDir, r.runDir(c), c.CompareTolerance)
}

// listArtifacts returns every regular file below dir, relative to it.
func listArtifacts(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
