// Package executor provides the execution capability for batches: a local
// bounded worker pool, or delegation to an external cluster submission
// adapter. Both variants expose the same submit-then-wait contract so the
// run coordinator never cares which one it drives.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/studymanager/internal/model"
	"github.com/vk/studymanager/internal/planner"
)

// Handle identifies one in-flight batch submission.
type Handle interface {
	// BatchIndex returns the index of the submitted batch.
	BatchIndex() int
}

// Executor runs one batch at a time to full termination.
type Executor interface {
	// Submit hands a batch over for execution and returns immediately.
	Submit(ctx context.Context, batch *planner.Batch) (Handle, error)
	// Wait blocks until every case of the submitted batch is terminal and
	// returns the terminal status per case id.
	Wait(ctx context.Context, h Handle) (map[string]model.Status, error)
}

// SubmissionRequest is the logical request handed to a cluster submission
// adapter for one batch. This core never speaks a scheduler wire protocol;
// the adapter owns that translation.
type SubmissionRequest struct {
	// BatchIndex identifies the batch within the frozen plan.
	BatchIndex int
	// CaseIDs lists the batch's cases in execution order.
	CaseIDs []string
	// TotalProcs is the summed processor request.
	TotalProcs int
	// WallTime is the requested wall-clock allocation.
	WallTime time.Duration
	// Script is the batch invocation script, one case command per line.
	Script string
}

// CaseReport is one case's state as reported by a submission adapter poll.
type CaseReport struct {
	Status    model.Status
	ExitCode  int
	Artifacts []string
	Err       string
}

// SubmissionAdapter is the external collaborator that talks to an actual
// cluster scheduler.
type SubmissionAdapter interface {
	// Submit enqueues the batch and returns the scheduler's job id.
	Submit(ctx context.Context, req *SubmissionRequest) (string, error)
	// Poll reports the current state of every case in the job.
	Poll(ctx context.Context, jobID string) (map[string]CaseReport, error)
	// Cancel asks the scheduler to terminate the job.
	Cancel(ctx context.Context, jobID string) error
}

// InfrastructureError reports a batch-level submission failure: every case
// in the batch is marked FAILED and dependent later cases are pruned, while
// independent work proceeds.
type InfrastructureError struct {
	BatchIndex int
	Err        error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("batch %d submission failed: %v", e.BatchIndex, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
