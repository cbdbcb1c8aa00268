package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/studymanager/internal/ctxlog"
	"github.com/vk/studymanager/internal/model"
)

// CaseRunner executes the concrete phases of a case. Implementations run
// the solver (ShellRunner) or stand in for it in tests.
type CaseRunner interface {
	// Run executes the case's computation and returns its result record.
	// A non-nil error means the execution machinery itself failed; solver
	// failures are reported through RunResult.ExitCode.
	Run(ctx context.Context, c *model.Case) (*model.RunResult, error)
	// Compare diffs the case's results against the reference and returns a
	// summary judged against the case's tolerance.
	Compare(ctx context.Context, c *model.Case) (*model.CompareSummary, error)
}

// Driver runs one case to a terminal lifecycle state.
type Driver struct {
	Runner CaseRunner
	// Compare enables the comparison phase after a completed run.
	Compare bool
}

// Execute takes a QUEUED case through RUNNING to a terminal state. The
// returned error reflects the case outcome (nil for COMPLETED/MATCH,
// non-nil otherwise); the case itself always ends in exactly one terminal
// status with its RunResult attached.
func (d *Driver) Execute(ctx context.Context, c *model.Case) error {
	logger := ctxlog.FromContext(ctx).With("case", c.ID())

	if err := c.Advance(model.StatusRunning); err != nil {
		return err
	}
	c.StartedAt = time.Now()
	logger.Info("Case started.")

	runCtx := ctx
	if c.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.MaxDuration)
		defer cancel()
	}

	result, err := d.Runner.Run(runCtx, c)
	c.FinishedAt = time.Now()
	if result == nil {
		result = &model.RunResult{Started: c.StartedAt, Finished: c.FinishedAt}
	}

	if failure := classifyRun(runCtx, c, result, err); failure != nil {
		result.Err = failure.Error()
		c.SetResult(result)
		if advErr := c.Advance(model.StatusFailed); advErr != nil {
			return advErr
		}
		logger.Error("Case failed.", "error", failure)
		return failure
	}

	if err := c.Advance(model.StatusCompleted); err != nil {
		return err
	}
	logger.Info("Case completed.", "duration", c.FinishedAt.Sub(c.StartedAt))

	if !d.Compare {
		c.SetResult(result)
		return nil
	}
	return d.compare(ctx, c, result)
}

// compare runs the comparison phase. A mismatch is a distinct outcome from
// an execution failure and never blocks dependents.
func (d *Driver) compare(ctx context.Context, c *model.Case, result *model.RunResult) error {
	logger := ctxlog.FromContext(ctx).With("case", c.ID())

	if err := c.Advance(model.StatusCompared); err != nil {
		return err
	}

	summary, err := d.Runner.Compare(ctx, c)
	if err != nil {
		// A broken comparison cannot attest a match; record it as a
		// mismatch with the reason preserved.
		result.Err = fmt.Sprintf("comparison error: %v", err)
		c.SetResult(result)
		if advErr := c.Advance(model.StatusMismatch); advErr != nil {
			return advErr
		}
		return fmt.Errorf("case %s: %s", c.ID(), result.Err)
	}

	result.Diff = summary
	c.SetResult(result)
	if summary.Match() {
		logger.Info("Comparison matched.", "max_deviation", summary.MaxDeviation)
		return c.Advance(model.StatusMatch)
	}

	logger.Warn("Comparison mismatched.",
		"max_deviation", summary.MaxDeviation,
		"tolerance", summary.Tolerance,
		"fields", summary.Fields)
	if err := c.Advance(model.StatusMismatch); err != nil {
		return err
	}
	return fmt.Errorf("case %s: comparison mismatch (max deviation %g exceeds tolerance %g)",
		c.ID(), summary.MaxDeviation, summary.Tolerance)
}

// classifyRun decides whether the run phase failed, and why. Timeout,
// non-zero exit and missing artifacts are distinguished so the aggregated
// report can tell them apart.
func classifyRun(ctx context.Context, c *model.Case, result *model.RunResult, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("case %s: timed out after %s", c.ID(), c.MaxDuration)
	}
	if err != nil {
		return fmt.Errorf("case %s: %w", c.ID(), err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("case %s: solver exited with code %d", c.ID(), result.ExitCode)
	}
	if len(result.Artifacts) == 0 {
		return fmt.Errorf("case %s: run produced no output artifacts", c.ID())
	}
	return nil
}
