package ratelimit

import "time"

// Well-known action names with built-in default policies.
const (
	ActionLogin          = "login"
	ActionPasswordReset  = "password_reset"
	ActionPasswordChange = "password_change"
)

// Policy holds the per-action counting and lockout parameters.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
	Progressive bool
}

// maxProgressiveLockout caps exponential lockout growth. It is also the TTL
// applied to the counter hash when a progressive lockout fires, so the
// backoff memory outlives the lockout window.
const maxProgressiveLockout = 24 * time.Hour

// DefaultPolicies returns the built-in per-action policy table. Callers may
// override or extend it per deployment.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		ActionLogin: {
			MaxAttempts: 5,
			Window:      15 * time.Minute,
			Lockout:     30 * time.Minute,
			Progressive: true,
		},
		ActionPasswordReset: {
			MaxAttempts: 3,
			Window:      60 * time.Minute,
			Lockout:     60 * time.Minute,
			Progressive: false,
		},
		ActionPasswordChange: {
			MaxAttempts: 10,
			Window:      60 * time.Minute,
			Lockout:     15 * time.Minute,
			Progressive: false,
		},
	}
}

// lockoutDuration computes the lockout span for the given policy and the
// number of prior lockouts. Progressive policies double per prior lockout,
// clamped at maxProgressiveLockout.
func lockoutDuration(p Policy, lockoutCount int) time.Duration {
	if !p.Progressive {
		return p.Lockout
	}
	d := p.Lockout
	for i := 0; i < lockoutCount; i++ {
		d *= 2
		if d >= maxProgressiveLockout {
			return maxProgressiveLockout
		}
	}
	if d > maxProgressiveLockout {
		d = maxProgressiveLockout
	}
	return d
}
