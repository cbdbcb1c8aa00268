// Package loader reads declarative study definitions from HCL files and
// materializes them into the model.
//
// A study file contains one or more `study` blocks, each with nested `case`
// blocks. Case bodies are decoded against an evaluation context exposing
// `study` (name, path) and `paths` (repo, dest) variables, so attributes
// like command lines can reference their surroundings without templating
// outside HCL.
package loader
