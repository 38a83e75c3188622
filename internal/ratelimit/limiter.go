package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/ledgerline/finguard/internal/kv"
	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed           bool
	AttemptsRemaining int
	ResetAt           time.Time
	Locked            bool
	LockedUntil       time.Time

	// LockoutWritten reports that this check crossed the attempt budget and
	// persisted a new lockout record. The caller emits the policy-trigger
	// signal exactly once off this flag.
	LockoutWritten bool
}

// Limiter enforces fixed-window attempt counting with progressive lockout
// per (action, identifier) pair, backed by the shared key-value store.
type Limiter struct {
	store    *kv.Store
	policies map[string]Policy
	now      func() time.Time
}

// New creates a [Limiter]. A nil or incomplete policy table falls back to
// [DefaultPolicies] entries per action.
func New(store *kv.Store, policies map[string]Policy) *Limiter {
	merged := DefaultPolicies()
	for action, p := range policies {
		merged[action] = p
	}
	return &Limiter{
		store:    store,
		policies: merged,
		now:      time.Now,
	}
}

func counterKey(action, identifier string) string {
	return "rate_limit:" + action + ":" + identifier
}

func lockKey(action, identifier string) string {
	return "lockout:" + action + ":" + identifier
}

func (l *Limiter) policyFor(action string, override *Policy) Policy {
	if override != nil {
		return *override
	}
	if p, ok := l.policies[action]; ok {
		return p
	}
	// Unknown actions get the strictest built-in shape.
	return DefaultPolicies()[ActionLogin]
}

// counterState is the decoded rate_limit:{action}:{identifier} hash. An empty
// or missing hash decodes to the zero state: the store returning nothing is
// never an error condition here.
type counterState struct {
	count        int
	windowStart  time.Time
	lockoutCount int
}

func decodeCounter(fields map[string]string) counterState {
	var st counterState
	if v, err := strconv.Atoi(fields["count"]); err == nil {
		st.count = v
	}
	if v, err := strconv.ParseInt(fields["windowStart"], 10, 64); err == nil && v > 0 {
		st.windowStart = time.UnixMilli(v)
	}
	if v, err := strconv.Atoi(fields["lockoutCount"]); err == nil {
		st.lockoutCount = v
	}
	return st
}

// Check evaluates the lockout record, then the window counter, for one
// (identifier, action) pair. It never mutates the attempt count; call
// [Limiter.RecordAttempt] after the guarded operation resolves.
//
// Check surfaces store errors to the caller unmodified; the guard layer, not
// this component, decides whether to fail open.
func (l *Limiter) Check(ctx context.Context, identifier, action string, override *Policy) (Result, error) {
	policy := l.policyFor(action, override)
	now := l.now()

	lockVal, locked, err := l.store.Get(ctx, lockKey(action, identifier))
	if err != nil {
		return Result{}, err
	}
	if locked {
		until := parseMilli(lockVal)
		if until.After(now) {
			return Result{Locked: true, LockedUntil: until, ResetAt: until}, nil
		}
		// Expired lockout: lazy cleanup of both keys before counting resumes.
		if err := l.store.Del(ctx, lockKey(action, identifier), counterKey(action, identifier)); err != nil {
			return Result{}, err
		}
	}

	fields, err := l.store.HGetAll(ctx, counterKey(action, identifier))
	if err != nil {
		return Result{}, err
	}
	st := decodeCounter(fields)
	if st.windowStart.IsZero() {
		st.windowStart = now
	}

	windowEnd := st.windowStart.Add(policy.Window)
	if now.After(windowEnd) {
		if err := l.store.Del(ctx, counterKey(action, identifier)); err != nil {
			return Result{}, err
		}
		return Result{
			Allowed:           true,
			AttemptsRemaining: policy.MaxAttempts - 1,
			ResetAt:           now.Add(policy.Window),
		}, nil
	}

	if st.count >= policy.MaxAttempts {
		duration := lockoutDuration(policy, st.lockoutCount)
		until := now.Add(duration)

		err := l.store.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, lockKey(action, identifier), formatMilli(until), duration)
			if policy.Progressive {
				// Backoff memory must outlive the lockout: the counter keeps
				// lockoutCount under its own, longer TTL.
				pipe.HIncrBy(ctx, counterKey(action, identifier), "lockoutCount", 1)
				pipe.Expire(ctx, counterKey(action, identifier), maxProgressiveLockout)
			}
			return nil
		})
		if err != nil {
			return Result{}, err
		}

		return Result{
			Locked:         true,
			LockedUntil:    until,
			ResetAt:        until,
			LockoutWritten: true,
		}, nil
	}

	return Result{
		Allowed:           true,
		AttemptsRemaining: policy.MaxAttempts - st.count - 1,
		ResetAt:           windowEnd,
	}, nil
}

// RecordAttempt updates the window counter after a guarded operation. Success
// deletes the counter outright. Failure either starts a fresh window or
// increments the current one; the TTL is refreshed to the window duration
// either way. The lockoutCount field is deliberately left untouched so prior
// backoff history carries into the new window.
func (l *Limiter) RecordAttempt(ctx context.Context, identifier, action string, success bool, override *Policy) error {
	key := counterKey(action, identifier)
	if success {
		return l.store.Del(ctx, key)
	}

	policy := l.policyFor(action, override)
	now := l.now()

	fields, err := l.store.HGetAll(ctx, key)
	if err != nil {
		return err
	}
	st := decodeCounter(fields)

	if st.windowStart.IsZero() || now.After(st.windowStart.Add(policy.Window)) {
		return l.store.HSetEx(ctx, key, map[string]any{
			"count":       1,
			"windowStart": now.UnixMilli(),
		}, policy.Window)
	}

	_, err = l.store.HIncrByEx(ctx, key, "count", 1, policy.Window)
	return err
}

// Clear removes both the counter and the lockout record for the pair.
func (l *Limiter) Clear(ctx context.Context, identifier, action string) error {
	return l.store.Del(ctx, counterKey(action, identifier), lockKey(action, identifier))
}

// IsLocked reports whether an unexpired lockout record exists for the pair.
func (l *Limiter) IsLocked(ctx context.Context, identifier, action string) (bool, error) {
	val, ok, err := l.store.Get(ctx, lockKey(action, identifier))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return parseMilli(val).After(l.now()), nil
}

// SetClock overrides the time source. Test hook only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

func parseMilli(val string) time.Time {
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func formatMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
