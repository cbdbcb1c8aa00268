package model

import "fmt"

// Status is the lifecycle state of a Case within a single orchestrator run.
type Status int32

const (
	// StatusPending indicates the case is waiting for its prerequisites.
	StatusPending Status = iota
	// StatusQueued indicates every prerequisite is satisfied or relaxed and
	// the case is waiting for an execution slot.
	StatusQueued
	// StatusRunning indicates the case holds an execution slot.
	StatusRunning
	// StatusCompleted indicates a zero exit code and all expected artifacts.
	StatusCompleted
	// StatusCompared indicates the comparison phase has started.
	StatusCompared
	// StatusMatch indicates results matched the reference within tolerance.
	StatusMatch
	// StatusMismatch indicates results diverged from the reference. This is
	// a comparison outcome, not an execution failure.
	StatusMismatch
	// StatusFailed indicates a non-zero exit, a timeout, or missing
	// artifacts. Failure is isolated to the case and its dependents.
	StatusFailed
	// StatusSkipped indicates the case never ran because a prerequisite
	// failed or the run was aborted.
	StatusSkipped
	// StatusReported indicates the terminal outcome was captured by the
	// aggregator. Nothing advances past this state.
	StatusReported
)

var statusNames = map[Status]string{
	StatusPending:   "PENDING",
	StatusQueued:    "QUEUED",
	StatusRunning:   "RUNNING",
	StatusCompleted: "COMPLETED",
	StatusCompared:  "COMPARED",
	StatusMatch:     "MATCH",
	StatusMismatch:  "MISMATCH",
	StatusFailed:    "FAILED",
	StatusSkipped:   "SKIPPED",
	StatusReported:  "REPORTED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// transitions enumerates every legal forward step in the lifecycle. A rerun
// never reuses these: it creates a fresh Case with a fresh RunResult.
var transitions = map[Status][]Status{
	StatusPending:   {StatusQueued, StatusSkipped},
	StatusQueued:    {StatusRunning, StatusSkipped},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusSkipped},
	StatusCompleted: {StatusCompared, StatusReported},
	StatusCompared:  {StatusMatch, StatusMismatch},
	StatusMatch:     {StatusReported},
	StatusMismatch:  {StatusReported},
	StatusFailed:    {StatusReported},
	StatusSkipped:   {StatusReported},
	StatusReported:  {},
}

// CanAdvance reports whether moving from one status to another is a legal
// forward transition.
func CanAdvance(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a case in this status has finished executing for
// the current run. Batch sequencing waits on this, not on StatusReported.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusMatch, StatusMismatch, StatusFailed, StatusSkipped, StatusReported:
		return true
	}
	return false
}

// Satisfies reports whether a prerequisite in this status unblocks its
// dependents. A mismatch satisfies: it is a recorded divergence, not a
// failure to produce results.
func (s Status) Satisfies() bool {
	switch s {
	case StatusCompleted, StatusCompared, StatusMatch, StatusMismatch, StatusReported:
		return true
	}
	return false
}

// Blocks reports whether a prerequisite in this status permanently blocks
// its dependents.
func (s Status) Blocks() bool {
	return s == StatusFailed || s == StatusSkipped
}
