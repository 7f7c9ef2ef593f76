// Package increco implements an in-process incremental computation engine:
// memoized functions, interned values, tracked structs, and accumulators,
// all invalidated against a single revision clock rather than recomputed
// from scratch on every input change.
package increco
