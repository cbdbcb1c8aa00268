package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vk/studymanager/internal/ctxlog"
	"github.com/vk/studymanager/internal/model"
	"github.com/vk/studymanager/internal/planner"
)

// Cluster delegates batch execution to an external submission adapter and
// polls it until every case in the batch resolves. Intra-batch parallelism
// and placement belong to the external scheduler.
type Cluster struct {
	adapter      SubmissionAdapter
	pollInterval time.Duration
	gracePeriod  time.Duration
}

// NewCluster creates a cluster executor around the given adapter.
func NewCluster(adapter SubmissionAdapter, pollInterval, gracePeriod time.Duration) *Cluster {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Cluster{adapter: adapter, pollInterval: pollInterval, gracePeriod: gracePeriod}
}

type clusterHandle struct {
	batch *planner.Batch
	jobID string
}

func (h *clusterHandle) BatchIndex() int { return h.batch.Index }

// Submit serializes the batch into one logical submission request and hands
// it to the adapter. An adapter failure is an InfrastructureError: the
// whole batch is marked FAILED.
func (c *Cluster) Submit(ctx context.Context, batch *planner.Batch) (Handle, error) {
	logger := ctxlog.FromContext(ctx)

	req := buildRequest(batch)
	logger.Info("Submitting batch to cluster adapter.",
		"batch", batch.Index, "cases", batch.Size(),
		"total_procs", req.TotalProcs, "wall_time", req.WallTime)

	jobID, err := c.adapter.Submit(ctx, req)
	if err != nil {
		infraErr := &InfrastructureError{BatchIndex: batch.Index, Err: err}
		for _, cs := range batch.Cases {
			failCase(cs, infraErr)
		}
		return nil, infraErr
	}

	logger.Info("Batch accepted by scheduler.", "batch", batch.Index, "job_id", jobID)
	return &clusterHandle{batch: batch, jobID: jobID}, nil
}

// Wait polls the adapter until every case of the batch reaches a terminal
// state. On cancellation it asks the scheduler to terminate the job, allows
// the grace period for a final report, and skips whatever never resolved.
func (c *Cluster) Wait(ctx context.Context, h Handle) (map[string]model.Status, error) {
	ch, ok := h.(*clusterHandle)
	if !ok {
		return nil, fmt.Errorf("handle %T was not produced by the cluster executor", h)
	}
	logger := ctxlog.FromContext(ctx)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Warn("Run aborted; cancelling cluster job.", "job_id", ch.jobID)
			return c.abort(ch)
		case <-ticker.C:
			reports, err := c.adapter.Poll(ctx, ch.jobID)
			if err != nil {
				if ctx.Err() != nil {
					return c.abort(ch)
				}
				logger.Warn("Adapter poll failed, will retry.", "job_id", ch.jobID, "error", err)
				continue
			}
			if applyReports(ch.batch, reports) {
				return c.statuses(ch), nil
			}
		}
	}
}

// abort cancels the job, gives the scheduler the grace period to deliver a
// final state, and resolves every remaining case as SKIPPED.
func (c *Cluster) abort(ch *clusterHandle) (map[string]model.Status, error) {
	// The run context is already canceled; use a fresh one bounded by the
	// grace period for the teardown conversation.
	graceCtx, cancel := context.WithTimeout(context.Background(), max(c.gracePeriod, time.Second))
	defer cancel()

	_ = c.adapter.Cancel(graceCtx, ch.jobID)
	if reports, err := c.adapter.Poll(graceCtx, ch.jobID); err == nil {
		applyReports(ch.batch, reports)
	}

	for _, cs := range ch.batch.Cases {
		if !cs.Status().Terminal() {
			cs.Skip(fmt.Errorf("run aborted while batch %d was in flight", ch.batch.Index))
		}
	}
	return c.statuses(ch), context.Canceled
}

func (c *Cluster) statuses(ch *clusterHandle) map[string]model.Status {
	statuses := make(map[string]model.Status, ch.batch.Size())
	for _, cs := range ch.batch.Cases {
		statuses[cs.ID()] = cs.Status()
	}
	return statuses
}

// applyReports folds one poll into case state and reports whether the whole
// batch is terminal.
func applyReports(batch *planner.Batch, reports map[string]CaseReport) bool {
	allTerminal := true
	for _, cs := range batch.Cases {
		report, ok := reports[cs.ID()]
		if !ok {
			allTerminal = allTerminal && cs.Status().Terminal()
			continue
		}
		applyReport(cs, report)
		allTerminal = allTerminal && cs.Status().Terminal()
	}
	return allTerminal
}

// applyReport advances one case to the state the scheduler observed. The
// lifecycle only moves forward; stale poll data cannot regress a case.
func applyReport(cs *model.Case, report CaseReport) {
	if cs.Status().Terminal() {
		return
	}
	switch report.Status {
	case model.StatusRunning:
		if cs.Status() == model.StatusQueued {
			if cs.Advance(model.StatusRunning) == nil {
				cs.StartedAt = time.Now()
			}
		}
	case model.StatusCompleted:
		applyReport(cs, CaseReport{Status: model.StatusRunning})
		cs.SetResult(&model.RunResult{
			ExitCode:  report.ExitCode,
			Artifacts: report.Artifacts,
			Finished:  time.Now(),
		})
		if cs.Advance(model.StatusCompleted) == nil {
			cs.FinishedAt = time.Now()
		}
	case model.StatusFailed:
		applyReport(cs, CaseReport{Status: model.StatusRunning})
		// The result must carry the scheduler's exit code and artifacts, so
		// it is attached before failCase can record its generic one.
		cs.SetResult(&model.RunResult{
			ExitCode:  report.ExitCode,
			Artifacts: report.Artifacts,
			Err:       report.Err,
			Finished:  time.Now(),
		})
		failCase(cs, fmt.Errorf("scheduler reported failure: %s", report.Err))
	}
}

// failCase forces a case to FAILED regardless of whether it was still
// queued or already running.
func failCase(cs *model.Case, reason error) {
	if cs.Status() == model.StatusQueued {
		_ = cs.Advance(model.StatusRunning)
	}
	if cs.Advance(model.StatusFailed) == nil {
		cs.FinishedAt = time.Now()
		cs.SetResult(&model.RunResult{ExitCode: -1, Err: reason.Error()})
	}
}

// buildRequest flattens a batch into the logical submission request.
func buildRequest(batch *planner.Batch) *SubmissionRequest {
	ids := make([]string, 0, batch.Size())
	script := make([]string, 0, batch.Size())
	for _, cs := range batch.Cases {
		ids = append(ids, cs.ID())
		script = append(script, cs.Command)
	}
	return &SubmissionRequest{
		BatchIndex: batch.Index,
		CaseIDs:    ids,
		TotalProcs: batch.TotalProcs(),
		WallTime:   batch.EstimatedWallTime,
		Script:     strings.Join(script, "\n"),
	}
}
