// Package coordinator consumes the frozen execution plan batch by batch.
//
// Batches run strictly in sequence: batch N+1 is not submitted until every
// case of batch N is terminal. Before a batch goes out, each of its cases
// is gated on its prerequisites from earlier batches; failed or skipped
// prerequisites propagate a skip, filter-relaxed ones are treated as
// completed, and intra-batch ordering is left to the executor.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/studymanager/internal/ctxlog"
	"github.com/vk/studymanager/internal/executor"
	"github.com/vk/studymanager/internal/filter"
	"github.com/vk/studymanager/internal/graph"
	"github.com/vk/studymanager/internal/model"
	"github.com/vk/studymanager/internal/planner"
)

// Coordinator owns the shared run state for one orchestrator run: the
// graph, the plan, and the relaxation set are frozen before Run starts.
type Coordinator struct {
	graph    *graph.Graph
	plan     *planner.Plan
	relaxed  map[string]bool
	executor executor.Executor

	// firstFailure records the first blocking case failure of the run.
	firstFailure error
}

// New assembles a coordinator for one run.
func New(g *graph.Graph, plan *planner.Plan, sel filter.Selection, exec executor.Executor) *Coordinator {
	return &Coordinator{
		graph:    g,
		plan:     plan,
		relaxed:  sel.Relaxed,
		executor: exec,
	}
}

// Run executes the whole plan. It returns nil when every non-skipped case
// ended COMPLETED or MATCH; otherwise the first blocking failure. A
// canceled context halts further submission, resolves in-flight cases
// within the runner's grace handling, and marks the rest SKIPPED.
func (co *Coordinator) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	for _, batch := range co.plan.Batches {
		if ctx.Err() != nil {
			logger.Warn("Run aborted; halting batch submission.", "next_batch", batch.Index)
			break
		}

		co.gateBatch(ctx, batch)
		if err := co.runBatch(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
			co.noteFailure(ctx, err)
		}
	}

	co.drainPlan(ctx)
	return co.firstFailure
}

// gateBatch queues every case of the batch whose prerequisites are met and
// skips the ones already blocked by an earlier failure.
func (co *Coordinator) gateBatch(ctx context.Context, batch *planner.Batch) {
	logger := ctxlog.FromContext(ctx)

	members := make(map[string]bool, batch.Size())
	for _, c := range batch.Cases {
		members[c.ID()] = true
	}

	for _, c := range batch.Cases {
		blocked, relaxedDeps := co.checkPrerequisites(c, members)
		if blocked != nil {
			if c.Skip(blocked) {
				logger.Warn("Skipping case: prerequisite did not complete.",
					"case", c.ID(), "reason", blocked)
			}
			continue
		}
		if len(relaxedDeps) > 0 {
			// The relaxation is deliberate and must stay observable: these
			// prerequisites were excluded by the filter and are assumed
			// satisfied from an earlier run.
			logger.Info("Queuing case with relaxed prerequisites.",
				"case", c.ID(), "relaxed", relaxedDeps)
		}
		if err := c.Advance(model.StatusQueued); err == nil {
			c.QueuedAt = time.Now()
		}
	}
}

// checkPrerequisites inspects every prerequisite of a case. It returns a
// blocking reason when one failed or was skipped, and the list of
// filter-relaxed prerequisites it relied on.
func (co *Coordinator) checkPrerequisites(c *model.Case, batchMembers map[string]bool) (blocked error, relaxedDeps []string) {
	for _, depID := range co.graph.Dependencies(c.ID()) {
		if batchMembers[depID] {
			continue // same batch: the executor sequences it
		}
		if co.relaxed[depID] {
			relaxedDeps = append(relaxedDeps, depID)
			continue
		}
		dep := co.graph.Case(depID)
		status := dep.Status()
		if status.Blocks() {
			return fmt.Errorf("prerequisite %s ended %s", depID, status), nil
		}
		if !status.Satisfies() {
			// Earlier batches are fully terminal before this one starts,
			// so a non-satisfying, non-blocking prerequisite here means
			// the plan was corrupted.
			return fmt.Errorf("prerequisite %s in unexpected state %s", depID, status), nil
		}
	}
	return nil, relaxedDeps
}

// runBatch submits one batch and waits for it to become fully terminal.
func (co *Coordinator) runBatch(ctx context.Context, batch *planner.Batch) error {
	logger := ctxlog.FromContext(ctx)

	handle, err := co.executor.Submit(ctx, batch)
	if err != nil {
		var infraErr *executor.InfrastructureError
		if errors.As(err, &infraErr) {
			// The executor already marked the batch FAILED; dependent
			// later cases are pruned by gating, independent ones proceed.
			logger.Error("Batch submission failed; continuing with independent work.",
				"batch", batch.Index, "error", err)
			return err
		}
		return err
	}

	_, waitErr := co.executor.Wait(ctx, handle)
	for _, c := range batch.Cases {
		status := c.Status()
		if status == model.StatusFailed || status == model.StatusMismatch {
			co.noteFailure(ctx, caseFailure(c))
		}
	}
	logger.Info("Batch terminal.", "batch", batch.Index)
	return waitErr
}

// drainPlan resolves every still-pending selected case to SKIPPED. After a
// clean run this is a no-op; after an abort or an upstream failure it is
// what guarantees that nothing is silently dropped.
func (co *Coordinator) drainPlan(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for _, batch := range co.plan.Batches {
		for _, c := range batch.Cases {
			if c.Status().Terminal() {
				continue
			}
			reason := fmt.Errorf("run ended before case was executed")
			if ctx.Err() != nil {
				reason = fmt.Errorf("run aborted: %w", ctx.Err())
			}
			if c.Skip(reason) {
				logger.Warn("Skipping unexecuted case.", "case", c.ID(), "reason", reason)
			}
		}
	}
}

// noteFailure records the first blocking failure and logs every one.
func (co *Coordinator) noteFailure(ctx context.Context, err error) {
	if co.firstFailure == nil {
		co.firstFailure = err
		ctxlog.FromContext(ctx).Error("First blocking failure of the run.", "error", err)
	}
}

// caseFailure renders a terminal failed/mismatched case as an error.
func caseFailure(c *model.Case) error {
	if c == nil {
		return errors.New("unknown case failed")
	}
	if r := c.Result(); r != nil && r.Err != "" {
		return fmt.Errorf("case %s: %s", c.ID(), r.Err)
	}
	return fmt.Errorf("case %s ended %s", c.ID(), c.Status())
}
