// Package kv wraps the shared Redis client behind the small command surface the
// guards actually use: TTL-bounded strings and hashes, atomic increments,
// pipelined batch reads, prefix scans, and deletes.
//
// Every connectivity failure is wrapped with [ErrUnavailable] so callers can
// classify it with errors.Is and apply their fail-open policy. A missing key is
// never an error here; it is reported as absence.
//
// # What this package must NOT do
//
//   - Decide fail-open vs fail-closed — that belongs to the calling guard.
//   - Hold per-request state or cache values in process.
package kv
