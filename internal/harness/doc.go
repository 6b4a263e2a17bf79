// Package harness runs YAML-defined ordering scenarios against a buffer
// with a manually advanced clock.
//
// A scenario stamps events explicitly (physical_ms, logical, node), feeds
// them to a buffer, moves the clock, and waits for or forces deliveries.
// Expectations cover delivery order and per-outcome counters; full delivery
// traces can additionally be pinned with golden files.
//
// Scenarios live in testdata/scenarios and golden traces in testdata/golden.
// Regenerate goldens with:
//
//	go test ./internal/harness -update
package harness
