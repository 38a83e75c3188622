package finguard

import (
	"errors"

	"github.com/ledgerline/finguard/internal/kv"
	"github.com/ledgerline/finguard/internal/session"
	"github.com/ledgerline/finguard/jwt"
)

// Business-rule rejections. These must reach the HTTP boundary as 4xx-class
// responses and are never swallowed by fail-open handling.
var (
	// ErrRateLimited is returned when an (action, identifier) pair is over
	// its attempt budget or inside a lockout window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrAccountLocked is returned while an identity's failed-login lockout
	// is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrSessionMaxDuration is returned when a session exceeded its absolute
	// lifetime. Aliased from the session monitor so errors.Is matches across
	// layers.
	ErrSessionMaxDuration = session.ErrMaxDuration
	// ErrSessionIdle is returned when a session expired due to inactivity.
	ErrSessionIdle = session.ErrIdleExpired
)

// Infrastructure-class errors. Guards audit these and default to the
// permissive outcome instead of propagating them to request handlers.
var (
	// ErrStoreUnavailable wraps any key-value store connectivity failure.
	ErrStoreUnavailable = kv.ErrUnavailable
	// ErrTokenInvalid wraps credential verification failures.
	ErrTokenInvalid = jwt.ErrTokenInvalid
)
