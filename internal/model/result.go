package model

import "time"

// RunResult is the immutable record of one case execution. It is created
// once per case per run; a rerun creates a new record rather than mutating
// history.
type RunResult struct {
	// ExitCode is the solver process exit code. Zero on success.
	ExitCode int
	// Artifacts lists the output artifact paths produced by the run.
	Artifacts []string
	// Diff summarizes the comparison phase, nil when comparison was not
	// requested or never reached.
	Diff *CompareSummary
	// Err carries the failure or skip reason for non-successful outcomes.
	Err string

	Started  time.Time
	Finished time.Time
}

// CompareSummary describes the outcome of diffing a case's results against
// the reference directory.
type CompareSummary struct {
	// MaxDeviation is the largest relative deviation observed.
	MaxDeviation float64
	// Tolerance is the threshold the deviation was judged against.
	Tolerance float64
	// Fields lists the compared quantities that exceeded the tolerance.
	Fields []string
}

// Match reports whether the comparison stayed within tolerance.
func (s *CompareSummary) Match() bool {
	return s.MaxDeviation <= s.Tolerance
}
