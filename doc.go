// Package finguard provides the request-admission and session-integrity guards
// for a multi-tenant personal-finance backend: Redis-backed rate limiting with
// progressive lockout, failed-login lockout tracking, and absolute/idle session
// timeout enforcement.
//
// The package is designed for stateless, horizontally-scaled deployments: no
// component holds in-process mutable shared state, and all coordination is
// delegated to a single injected Redis client. Guard methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// finguard is the public surface. It exposes [Guard], [Builder], [Config], and
// value types (RateLimitResult, LockoutInfo, SessionInfo, SessionStats). All
// internal coordination — counter windows, lockout backoff, session records,
// audit dispatch — lives under internal/ and is never exported.
//
// # Failure policy
//
// Business-rule rejections (rate limit exceeded, account locked, session timed
// out) are always surfaced as typed sentinel errors. Infrastructure failures
// (Redis unreachable, corrupt stored records) are audited and degrade to the
// permissive outcome: a store outage lowers the security posture, never
// availability. The two classes are distinguished with [errors.Is], never by
// message text.
//
// # What this package must NOT do
//
//   - Issue, refresh, or persist credentials; it verifies bearer tokens handed
//     to it and defers everything else to the authentication layer.
//   - Expose Redis clients, internal stores, or key layouts in its public API.
//   - Cache records in process — the store is the single source of truth.
package finguard
