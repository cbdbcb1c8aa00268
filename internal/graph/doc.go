// Package graph builds the directed acyclic dependency graph over cases and
// derives the execution order from it.
//
// Edges come from two sources: explicit depends_on declarations, and the
// staged-validation policy that a case at level L depends on every case at a
// lower level within the same study. A cycle anywhere in the combined graph
// is a configuration error reported with the full cycle path.
package graph
