// Package step defines the ordered recognition pipeline steps, the bitset
// that tracks which steps a sheet has completed, the rollback policy used
// when a step is forced to re-run, and the error taxonomy shared by the
// executor and step runners.
package step
