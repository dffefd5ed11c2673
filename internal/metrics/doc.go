// Package metrics provides lock-free counters and latency histograms for the
// telecare session.
//
// Counters live in cache-line-padded uint64 slots incremented with
// [sync/atomic.AddUint64]. Histograms use 8 fixed buckets (25ms … +Inf).
// The write path does not allocate.
//
// Export (Prometheus, OTel) lives in metrics/export and reads [Snapshot]
// values. This package performs no I/O and keeps no global registry.
package metrics
