package model

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Case is a single vertex in the execution graph: one simulation
// configuration belonging to a Study.
type Case struct {
	// Name is the case name as declared in the study file.
	Name string
	// Study is the name of the owning study.
	Study string

	// Tags select case subsets for partial runs.
	Tags []string
	// Level is the integer tier used for coarse staged ordering: a case at
	// level L implicitly depends on every lower-level case of its study.
	Level int
	// NProcs is the requested processor count.
	NProcs int
	// DependsOn holds explicit prerequisite case ids.
	DependsOn []string

	// Command is the solver invocation to run for this case. The binary it
	// names is located by external configuration plumbing, not by this core.
	Command string
	// EstimatedWallTime feeds the batch planner's wall-time budget.
	EstimatedWallTime time.Duration
	// MaxDuration, when non-zero, forces FAILED once exceeded.
	MaxDuration time.Duration
	// CompareTolerance is the allowed deviation for the comparison phase.
	CompareTolerance float64

	// QueuedAt, StartedAt and FinishedAt are set by the lifecycle driver.
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	status     atomic.Int32
	skipOnce   sync.Once
	resultOnce sync.Once
	result     *RunResult
}

// ID returns the unique case identifier, "study/case".
func (c *Case) ID() string {
	return c.Study + "/" + c.Name
}

// Status atomically reads the case's lifecycle status.
func (c *Case) Status() Status {
	return Status(c.status.Load())
}

// Advance moves the case to the given status. It returns an error for any
// transition the lifecycle does not allow; status never moves backward.
func (c *Case) Advance(to Status) error {
	for {
		from := Status(c.status.Load())
		if !CanAdvance(from, to) {
			return fmt.Errorf("case %s: illegal transition %s -> %s", c.ID(), from, to)
		}
		if c.status.CompareAndSwap(int32(from), int32(to)) {
			return nil
		}
	}
}

// Skip marks the case SKIPPED exactly once, recording the reason. Calls
// after the first, or on a case already past PENDING/QUEUED/RUNNING, are
// no-ops; it returns true only when this call performed the skip.
func (c *Case) Skip(reason error) bool {
	skipped := false
	c.skipOnce.Do(func() {
		if err := c.Advance(StatusSkipped); err != nil {
			return
		}
		c.SetResult(&RunResult{Err: reason.Error()})
		skipped = true
	})
	return skipped
}

// SetResult attaches the run's result record. The first call wins; a case
// owns exactly one RunResult per run and it is immutable after creation.
func (c *Case) SetResult(r *RunResult) {
	c.resultOnce.Do(func() {
		c.result = r
	})
}

// Result returns the case's result record, or nil before execution.
func (c *Case) Result() *RunResult {
	return c.result
}

// HasTag reports whether the case carries the given tag.
func (c *Case) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
