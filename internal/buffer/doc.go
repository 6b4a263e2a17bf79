// Package buffer implements per-subscriber causal ordering buffers.
//
// A Buffer accepts HLC-stamped events and delivers them to its subscriber
// in timestamp order. Each incoming event is classified on arrival:
//
//   - bypass: delivered immediately, skipping the buffer entirely
//     (explicit bypass flag, or a priority signal whose intensity crosses
//     the configured threshold)
//   - duplicate: same timestamp as the most recently delivered event;
//     dropped and counted
//   - late: older than the reordering window; delivered immediately out of
//     band rather than dropped
//   - future: ahead of wall time beyond drift tolerance; buffered
//     optimistically on the assumption the skew self-corrects
//   - in order: held in a sorted buffer until the window timer fires
//
// Bypassed and late events are exempt from the ordering guarantee by
// design; everything else is delivered non-decreasing under hlc.Compare.
//
// ARCHITECTURE
//
// Every Buffer (and Partitioned) instance is a single-writer actor: one
// goroutine drains an ordered mailbox and owns all buffer state, so state
// transitions are linearizable without locks. Submit enqueues and never
// blocks the producer. The only self-scheduled trigger is the delivery
// timer, of which at most one is pending per buffer (per tier in the
// partitioned variant); a fired timer clears its pending marker before any
// reschedule.
//
// When the sorted buffer reaches MaxBufferSize the whole buffer is flushed
// synchronously. That is backpressure, not an error: memory stays bounded
// and producers are never blocked.
//
// The adaptive control loop re-tunes the window after each timed flush,
// widening under observed reordering and narrowing when traffic is slow or
// fast-but-orderly. Windows always stay within [MinWindow, MaxWindow].
package buffer
