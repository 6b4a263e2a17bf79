// Package hlc implements a Hybrid Logical Clock for causal event ordering.
//
// An HLC timestamp pairs wall-clock milliseconds with a logical counter.
// When the wall clock advances the counter resets; when it stalls (or runs
// backwards) the counter increments, so successive timestamps from one node
// never regress. Merging a remote timestamp via Update keeps the local clock
// ahead of everything it has observed, which is what makes the ordering
// causal: if event A was known when event B was stamped, B compares greater.
//
// Compare defines a total order over (physical, logical, node_id). The final
// node-id tie-break is lexicographic and deliberately non-causal - it exists
// so that every node sorts concurrent events identically, not because the
// comparison means anything.
//
// The Clock serializes all mutation behind a mutex. Now never fails; Update
// rejects remote timestamps whose physical component is further than the
// configured offset from local wall time, returning a DriftError and leaving
// local state untouched.
package hlc
