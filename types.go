package finguard

import (
	"context"
	"time"
)

// UserStatus represents the lifecycle state of an identity as seen by the
// lockout tracker. The two suspended states are distinct so that clearing a
// lockout never reverses an administrator's suspension.
type UserStatus uint8

const (
	// UserStatusActive is the normal state; the only state Suspend acts on.
	UserStatusActive UserStatus = iota
	// UserStatusSuspendedLockout marks a suspension made by the lockout
	// tracker itself.
	UserStatusSuspendedLockout
	// UserStatusSuspendedAdmin marks a suspension made by an administrator.
	UserStatusSuspendedAdmin
	// UserStatusDisabled marks a permanently disabled identity.
	UserStatusDisabled
)

func (s UserStatus) String() string {
	switch s {
	case UserStatusActive:
		return "active"
	case UserStatusSuspendedLockout:
		return "suspended_lockout"
	case UserStatusSuspendedAdmin:
		return "suspended_admin"
	case UserStatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// UserDirectory is the identity collaborator consumed by the lockout tracker.
// The Guard only reads and transitions status; it never creates identities.
type UserDirectory interface {
	Status(ctx context.Context, identifier string) (UserStatus, error)
	SetStatus(ctx context.Context, identifier string, status UserStatus) error
}

// Verifier decodes a bearer credential into its subject user ID, or fails.
// The default implementation is [github.com/ledgerline/finguard/jwt.Verifier].
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// RateLimitPolicy overrides the per-action counting parameters for one check.
type RateLimitPolicy struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
	Progressive bool
}

// RateLimitResult is returned by [Guard.CheckRateLimit].
type RateLimitResult struct {
	Allowed           bool
	AttemptsRemaining int
	ResetAt           time.Time
	Locked            bool
	LockedUntil       time.Time
}

// LockoutInfo is returned by [Guard.RecordFailedAttempt] and
// [Guard.GetLockoutInfo].
type LockoutInfo struct {
	Locked            bool
	LockedUntil       time.Time
	FailedAttempts    int
	AttemptsRemaining int
	LockoutCount      int
}

// LockoutStats is the administrative aggregate over tracked identities.
type LockoutStats struct {
	TrackedIdentities   int
	LockedIdentities    int
	TotalFailedAttempts int
}

// SessionInfo describes one live session record.
type SessionInfo struct {
	UserID       string
	Digest       string
	CreatedAt    time.Time
	LastActivity time.Time
	IPAddress    string
	UserAgent    string
}

// SessionStats is the global session aggregate. TotalActiveSessions counts
// keys and is authoritative; SessionsByUser counts only records that parsed,
// so a corrupt record appears in the total but not in the breakdown.
type SessionStats struct {
	TotalActiveSessions int
	SessionsByUser      map[string]int
	OldestSession       time.Time
}

// SessionRequest carries the per-request inputs to [Guard.CheckSession].
// ClientIP and UserAgent fall back to context values attached with
// [WithClientIP] and [WithUserAgent] when empty.
type SessionRequest struct {
	Token     string
	ClientIP  string
	UserAgent string
}
