package finguard

import (
	"context"
	"strconv"

	"github.com/ledgerline/finguard/internal/lockout"
)

// RecordFailedAttempt registers one failed login for the identity and returns
// the resulting lockout state. Crossing the threshold writes the lockout
// record and suspends the identity through the wired [UserDirectory].
//
// Store failures degrade to the permissive "not locked, one attempt noted"
// default: a store outage must never lock the whole authentication pipeline.
// The failure itself is audited.
func (g *Guard) RecordFailedAttempt(ctx context.Context, identifier string) LockoutInfo {
	g.metricInc(MetricLockoutRecorded)

	info, err := g.tracker.RecordFailure(ctx, identifier, nil)
	if err != nil {
		g.failOpen(ctx, "lockout", err)
	}

	if info.Locked && err == nil {
		g.metricInc(MetricLockoutTriggered)
		g.emitAudit(ctx, AuditEvent{
			EventType:  EventLockoutTriggered,
			Identifier: identifier,
			Metadata: map[string]string{
				"locked_until":  strconv.FormatInt(info.LockedUntil.UnixMilli(), 10),
				"lockout_count": strconv.Itoa(info.LockoutCount),
			},
		})
	}

	return toLockoutInfo(info)
}

// ClearFailedAttempts discards the identity's failure record, e.g. after a
// successful login, and reverses a lockout-made suspension.
func (g *Guard) ClearFailedAttempts(ctx context.Context, identifier string) error {
	if err := g.tracker.Clear(ctx, identifier); err != nil {
		g.failOpen(ctx, "lockout", err)
		return nil
	}
	g.emitAudit(ctx, AuditEvent{
		EventType:  EventLockoutCleared,
		Identifier: identifier,
		Success:    true,
	})
	return nil
}

// GetLockoutInfo returns the identity's current lockout state without
// mutating it. Fails open to "not locked" on store errors.
func (g *Guard) GetLockoutInfo(ctx context.Context, identifier string) LockoutInfo {
	info, err := g.tracker.Info(ctx, identifier)
	if err != nil {
		g.failOpen(ctx, "lockout", err)
	}
	return toLockoutInfo(info)
}

// UnlockAccount is the administrative unlock: it removes the lockout record
// and reactivates the identity if this mechanism suspended it. Unlike the
// request-path operations it propagates store errors, so operators see
// whether the unlock actually happened.
func (g *Guard) UnlockAccount(ctx context.Context, identifier string) error {
	if err := g.tracker.Unlock(ctx, identifier); err != nil {
		return err
	}
	g.emitAudit(ctx, AuditEvent{
		EventType:  EventAccountUnlocked,
		Identifier: identifier,
		Success:    true,
	})
	return nil
}

// LockoutStats aggregates all tracked identities. Administrative O(n) scan;
// store errors propagate.
func (g *Guard) LockoutStats(ctx context.Context) (LockoutStats, error) {
	stats, err := g.tracker.Stats(ctx)
	if err != nil {
		return LockoutStats{}, err
	}
	return LockoutStats{
		TrackedIdentities:   stats.TrackedIdentities,
		LockedIdentities:    stats.LockedIdentities,
		TotalFailedAttempts: stats.TotalFailedAttempts,
	}, nil
}

func toLockoutInfo(info lockout.Info) LockoutInfo {
	return LockoutInfo{
		Locked:            info.Locked,
		LockedUntil:       info.LockedUntil,
		FailedAttempts:    info.FailedAttempts,
		AttemptsRemaining: info.AttemptsRemaining,
		LockoutCount:      info.LockoutCount,
	}
}
