// Package ratelimit implements the generic fixed-window attempt counter with
// progressive lockout, keyed by (action, identifier).
//
// Two independently-expiring pieces of state back each key pair: the counter
// hash at rate_limit:{action}:{identifier} and the lockout marker at
// lockout:{action}:{identifier}. The counter's lockoutCount field is the
// exponential-backoff memory; when a lockout is written the counter TTL is
// extended past the lockout itself so the memory survives it. Do not merge the
// two keys.
//
// This package surfaces real store errors; the caller owns fail-open policy.
package ratelimit
