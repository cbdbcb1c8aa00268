// Package lifecycle drives a single case through its phases: run, optional
// comparison against reference results, and hand-off to reporting.
//
// The actual solver invocation sits behind the CaseRunner capability so the
// driver stays testable and the orchestrator never hard-codes a solver or a
// scheduler. ShellRunner is the local implementation backed by a subprocess.
package lifecycle
