package lockout

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerline/finguard/internal/kv"
)

// observabilityGrace extends the lockout record TTL past the lockout itself so
// the record stays inspectable for a day after it fires.
const observabilityGrace = 24 * time.Hour

// Policy holds the failed-login lockout parameters for one deployment.
type Policy struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	ResetWindow       time.Duration
	Progressive       bool
	Multipliers       []int
}

// DefaultPolicy returns the baseline policy: five failures inside 24h, 30m
// base lockout, progressive multipliers clamped at the last entry.
func DefaultPolicy() Policy {
	return Policy{
		MaxFailedAttempts: 5,
		LockoutDuration:   30 * time.Minute,
		ResetWindow:       24 * time.Hour,
		Progressive:       true,
		Multipliers:       []int{1, 2, 4, 8, 16, 48},
	}
}

func (p Policy) multiplier(lockoutCount int) int {
	if !p.Progressive || len(p.Multipliers) == 0 {
		return 1
	}
	if lockoutCount >= len(p.Multipliers) {
		return p.Multipliers[len(p.Multipliers)-1]
	}
	if lockoutCount < 0 {
		lockoutCount = 0
	}
	return p.Multipliers[lockoutCount]
}

// Info describes the lockout state of one identity.
type Info struct {
	Locked            bool
	LockedUntil       time.Time
	FailedAttempts    int
	AttemptsRemaining int
	LockoutCount      int

	// Degraded marks that the store was unreachable and this Info is the
	// permissive fallback, not observed state.
	Degraded bool
}

// Stats is an administrative aggregate over all tracked identities.
type Stats struct {
	TrackedIdentities   int
	LockedIdentities    int
	TotalFailedAttempts int
}

// Directory is the slice of the identity collaborator this component needs.
// Suspend is expected to be idempotent and only transition active identities;
// Reactivate only reverses suspensions made by this mechanism.
type Directory interface {
	Suspend(ctx context.Context, identifier string) error
	Reactivate(ctx context.Context, identifier string) error
}

// Tracker counts failed logins per identity and writes progressive lockouts.
type Tracker struct {
	store     *kv.Store
	directory Directory
	policy    Policy
	now       func() time.Time
}

// New creates a [Tracker]. directory may be nil when no identity collaborator
// is wired; suspension then becomes a no-op.
func New(store *kv.Store, directory Directory, policy Policy) *Tracker {
	if policy.MaxFailedAttempts <= 0 {
		policy = DefaultPolicy()
	}
	return &Tracker{
		store:     store,
		directory: directory,
		policy:    policy,
		now:       time.Now,
	}
}

func recordKey(identifier string) string {
	return "lockout:" + identifier
}

type state struct {
	failedAttempts int
	lockedUntil    time.Time
	lockoutCount   int
	firstFailedAt  time.Time
}

func decodeState(fields map[string]string) state {
	var st state
	if v, err := strconv.Atoi(fields["failedAttempts"]); err == nil {
		st.failedAttempts = v
	}
	if v, err := strconv.ParseInt(fields["lockedUntil"], 10, 64); err == nil && v > 0 {
		st.lockedUntil = time.UnixMilli(v)
	}
	if v, err := strconv.Atoi(fields["lockoutCount"]); err == nil {
		st.lockoutCount = v
	}
	if v, err := strconv.ParseInt(fields["firstFailedAt"], 10, 64); err == nil && v > 0 {
		st.firstFailedAt = time.UnixMilli(v)
	}
	return st
}

// degraded is the permissive fallback used whenever the store fails: not
// locked, one failed attempt noted. Availability beats a delayed lockout.
func (t *Tracker) degraded() Info {
	return Info{
		FailedAttempts:    1,
		AttemptsRemaining: t.policy.MaxFailedAttempts - 1,
		Degraded:          true,
	}
}

// RecordFailure registers one failed login for the identity and returns the
// resulting lockout state. When the store is unreachable the returned error is
// non-nil and Info is the permissive fallback; callers audit the error and
// proceed with the Info.
func (t *Tracker) RecordFailure(ctx context.Context, identifier string, override *Policy) (Info, error) {
	policy := t.policy
	if override != nil {
		policy = *override
	}
	now := t.now()
	key := recordKey(identifier)

	fields, err := t.store.HGetAll(ctx, key)
	if err != nil {
		return t.degraded(), err
	}
	st := decodeState(fields)

	// An active lockout is the sole gate: no counter mutation while it holds.
	if st.lockedUntil.After(now) {
		return Info{
			Locked:       true,
			LockedUntil:  st.lockedUntil,
			LockoutCount: st.lockoutCount,
		}, nil
	}

	if !st.firstFailedAt.IsZero() && now.Sub(st.firstFailedAt) > policy.ResetWindow {
		st.failedAttempts = 0
		st.firstFailedAt = time.Time{}
	}
	if st.firstFailedAt.IsZero() {
		st.firstFailedAt = now
	}
	st.failedAttempts++

	if st.failedAttempts < policy.MaxFailedAttempts {
		err := t.store.HSetEx(ctx, key, map[string]any{
			"failedAttempts": st.failedAttempts,
			"firstFailedAt":  st.firstFailedAt.UnixMilli(),
		}, policy.ResetWindow)
		if err != nil {
			return t.degraded(), err
		}
		return Info{
			FailedAttempts:    st.failedAttempts,
			AttemptsRemaining: policy.MaxFailedAttempts - st.failedAttempts,
			LockoutCount:      st.lockoutCount,
		}, nil
	}

	duration := policy.LockoutDuration * time.Duration(policy.multiplier(st.lockoutCount))
	until := now.Add(duration)

	err = t.store.HSetEx(ctx, key, map[string]any{
		"failedAttempts": 0,
		"lockedUntil":    until.UnixMilli(),
		"lockoutCount":   st.lockoutCount + 1,
		"firstFailedAt":  now.UnixMilli(),
	}, duration+observabilityGrace)
	if err != nil {
		return t.degraded(), err
	}

	info := Info{
		Locked:       true,
		LockedUntil:  until,
		LockoutCount: st.lockoutCount + 1,
	}
	if t.directory != nil {
		if dirErr := t.directory.Suspend(ctx, identifier); dirErr != nil {
			// Suspension is a side effect; the lockout record already gates
			// the identity, so surface the error without changing outcome.
			return info, dirErr
		}
	}
	return info, nil
}

// Clear discards the failure record and reverses a lockout-made suspension.
func (t *Tracker) Clear(ctx context.Context, identifier string) error {
	if err := t.store.Del(ctx, recordKey(identifier)); err != nil {
		return err
	}
	if t.directory != nil {
		return t.directory.Reactivate(ctx, identifier)
	}
	return nil
}

// Unlock is the administrative variant of [Tracker.Clear]. It exists as a
// separate entry point so callers can audit the two paths distinctly.
func (t *Tracker) Unlock(ctx context.Context, identifier string) error {
	return t.Clear(ctx, identifier)
}

// Info returns the current lockout state without mutating it. A lockout whose
// expiry has passed reports as unlocked; deletion is left to the next write.
func (t *Tracker) Info(ctx context.Context, identifier string) (Info, error) {
	fields, err := t.store.HGetAll(ctx, recordKey(identifier))
	if err != nil {
		return Info{AttemptsRemaining: t.policy.MaxFailedAttempts, Degraded: true}, err
	}
	st := decodeState(fields)
	now := t.now()

	if st.lockedUntil.After(now) {
		return Info{
			Locked:       true,
			LockedUntil:  st.lockedUntil,
			LockoutCount: st.lockoutCount,
		}, nil
	}

	attempts := st.failedAttempts
	if !st.firstFailedAt.IsZero() && now.Sub(st.firstFailedAt) > t.policy.ResetWindow {
		attempts = 0
	}
	return Info{
		FailedAttempts:    attempts,
		AttemptsRemaining: t.policy.MaxFailedAttempts - attempts,
		LockoutCount:      st.lockoutCount,
	}, nil
}

// Stats scans all identity lockout records. Keys from the rate limiter's
// lockout:{action}:{identifier} namespace carry an extra segment and are
// filtered out; records that fail to read are skipped rather than aborting
// the whole scan.
func (t *Tracker) Stats(ctx context.Context) (Stats, error) {
	keys, err := t.store.ScanKeys(ctx, "lockout:*")
	if err != nil {
		return Stats{}, err
	}

	now := t.now()
	var stats Stats
	for _, key := range keys {
		if strings.Count(key, ":") != 1 {
			continue
		}
		fields, err := t.store.HGetAll(ctx, key)
		if err != nil || len(fields) == 0 {
			continue
		}
		st := decodeState(fields)
		stats.TrackedIdentities++
		stats.TotalFailedAttempts += st.failedAttempts
		if st.lockedUntil.After(now) {
			stats.LockedIdentities++
		}
	}
	return stats, nil
}

// SetClock overrides the time source. Test hook only.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}
