// Package middleware adapts the finguard guards to net/http.
//
// [RateLimit] attaches a per-route admission policy through an explicit
// [PolicyTable] passed at registration time, [SessionTimeout] runs every
// bearer-carrying request through the session monitor, and [ClientIP]
// resolves the caller address with proxy-header trust gated behind a flag.
//
// # What this package must NOT do
//
//   - Reach into guard internals; it only calls exported Guard methods.
//   - Decide authentication; requests without a bearer token pass through.
package middleware
