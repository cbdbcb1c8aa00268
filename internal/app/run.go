package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vk/studymanager/internal/aggregate"
	"github.com/vk/studymanager/internal/coordinator"
	"github.com/vk/studymanager/internal/ctxlog"
	"github.com/vk/studymanager/internal/executor"
	"github.com/vk/studymanager/internal/filter"
	"github.com/vk/studymanager/internal/graph"
	"github.com/vk/studymanager/internal/lifecycle"
	"github.com/vk/studymanager/internal/planner"
	"github.com/vk/studymanager/internal/report"
)

// Run executes one full orchestrator run. Configuration errors surface
// immediately, before any execution; per-case failures are deferred to the
// aggregated report and reflected in the returned error.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	started := time.Now()

	studies, err := a.loader.Load(ctx, a.config.StudyPath)
	if err != nil {
		return err
	}

	if a.config.NProcs > 0 {
		// Run-wide processor override: applied before filtering so the
		// n_procs filter sees the effective values.
		for _, s := range studies {
			for _, c := range s.Cases {
				c.NProcs = a.config.NProcs
			}
		}
	}

	g, err := graph.Build(studies)
	if err != nil {
		return err
	}
	if err := g.DetectCycles(); err != nil {
		// A cycle is a configuration error and is never swallowed.
		return err
	}
	ordered, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	a.logger.Debug("Dependency graph built.", "cases", g.Len())

	sel := filter.Apply(ctx, ordered, filter.Criteria{
		TagsInclude: a.config.TagsInclude,
		TagsExclude: a.config.TagsExclude,
		Level:       a.config.FilterLevel,
		NProcs:      a.config.FilterNProcs,
	})
	if len(sel.Cases) == 0 {
		return &EmptySelectionError{StudyPath: a.config.StudyPath}
	}

	wallTime := a.config.BatchWallTime()
	if a.config.BatchSize == 0 {
		// Batching off: the wall-time budget only splits sized batches.
		wallTime = 0
	}
	plan := planner.Build(ctx, sel.Cases, a.config.BatchSize, wallTime)

	exec, err := a.buildExecutor(g)
	if err != nil {
		return err
	}

	a.logger.Info("Starting execution.",
		"mode", a.config.Mode, "batches", len(plan.Batches), "cases", len(sel.Cases))
	runErr := coordinator.New(g, plan, sel, exec).Run(ctx)

	agg := aggregate.New()
	for _, c := range sel.Cases {
		if err := agg.Add(c); err != nil {
			// Every selected case must end in exactly one terminal state.
			return fmt.Errorf("aggregating outcomes: %w", err)
		}
	}

	doc := report.Build(agg, a.runMeta(started), runErr)
	if err := yaml.NewEncoder(a.outW).Encode(doc); err != nil {
		return fmt.Errorf("writing report document: %w", err)
	}

	if ctx.Err() != nil && runErr == nil {
		return fmt.Errorf("run aborted: %w", ctx.Err())
	}
	if runErr != nil {
		return fmt.Errorf("run finished with failures: %w", runErr)
	}
	a.logger.Info("Run finished.", "duration", time.Since(started))
	return nil
}

// buildExecutor selects the executor variant for the configured mode.
func (a *App) buildExecutor(g *graph.Graph) (executor.Executor, error) {
	switch a.config.Mode {
	case ModeCluster:
		if a.adapter == nil {
			return nil, errors.New("cluster mode requires a submission adapter")
		}
		return executor.NewCluster(a.adapter, a.config.PollInterval, a.config.GracePeriod), nil
	default:
		driver := &lifecycle.Driver{
			Runner: &lifecycle.ShellRunner{
				Dest:        a.config.DestPath,
				Ref:         a.config.RefPath,
				GracePeriod: a.config.GracePeriod,
			},
			Compare: a.config.Compare,
		}
		return executor.NewLocal(driver, g, a.config.Workers), nil
	}
}

func (a *App) runMeta(started time.Time) report.Meta {
	host, _ := os.Hostname()
	return report.Meta{
		Started:  started,
		Finished: time.Now(),
		Host:     host,
		Repo:     a.config.RepoPath,
		Dest:     a.config.DestPath,
	}
}
