// Package diff computes line-level diffs between two document versions
// and detects image reference changes.
//
// The engine produces a single ordered operation sequence; the unified
// and side-by-side presentations are both pure projections of that
// sequence. Identical inputs always yield identical operations.
package diff
