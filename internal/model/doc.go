// Package model defines the in-memory representation of parsed studies and
// cases, the per-case lifecycle status, and the immutable run result record.
//
// A Study groups related Cases; a Case is one simulation configuration to be
// run, compared against reference results, and reported. Case status is
// stored in an atomic word because it is read by filtering and aggregation
// snapshots while the run coordinator advances it from worker goroutines.
package model
