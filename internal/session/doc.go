// Package session enforces absolute and idle timeouts over per-token session
// records and provides the administrative read/invalidate/stat operations on
// the same records.
//
// One JSON record lives at session:{userId}:{tokenDigest}. The store TTL is
// always the sooner of remaining-absolute-time and idle-timeout, but expiry is
// additionally checked lazily against wall-clock time on every request: TTL
// eviction alone cannot express the composite "absolute vs idle, whichever is
// sooner" rule once lastActivity moves.
//
// The token digest namespaces records under their owning user; it is not a
// security boundary, the credential itself is the secret.
package session
