package finguard

import (
	"context"
	"errors"
	"strconv"

	"github.com/ledgerline/finguard/internal/ratelimit"
)

// CheckRateLimit evaluates admission for one (identifier, action) pair
// without consuming an attempt. override, when non-nil, replaces the
// configured policy for this call only.
//
// Store failures fail open: the request is reported allowed, the error is
// audited, and no error is returned. A denied result is accompanied by
// [ErrRateLimited] so callers can surface it as a client-visible rejection.
func (g *Guard) CheckRateLimit(ctx context.Context, identifier, action string, override *RateLimitPolicy) (RateLimitResult, error) {
	res, err := g.limiter.Check(ctx, identifier, action, toLimiterPolicy(override))
	if err != nil {
		g.failOpen(ctx, "rate_limit:"+action, err)
		return RateLimitResult{Allowed: true, AttemptsRemaining: g.policyMaxAttempts(action, override) - 1}, nil
	}

	out := RateLimitResult{
		Allowed:           res.Allowed,
		AttemptsRemaining: res.AttemptsRemaining,
		ResetAt:           res.ResetAt,
		Locked:            res.Locked,
		LockedUntil:       res.LockedUntil,
	}

	if res.LockoutWritten {
		g.metricInc(MetricRateLimitLockout)
		g.emitAudit(ctx, AuditEvent{
			EventType:  EventRateLimitLockout,
			Identifier: identifier,
			Action:     action,
			Metadata: map[string]string{
				"locked_until": strconv.FormatInt(res.LockedUntil.UnixMilli(), 10),
			},
		})
	}

	if !out.Allowed {
		g.metricInc(MetricRateLimitBlocked)
		if !res.LockoutWritten {
			g.emitAudit(ctx, AuditEvent{
				EventType:  EventRateLimitBlocked,
				Identifier: identifier,
				Action:     action,
			})
		}
		return out, ErrRateLimited
	}

	g.metricInc(MetricRateLimitAllowed)
	return out, nil
}

// RecordAttempt registers the outcome of a guarded operation. Success clears
// the counter entirely; failure counts against the current window. Store
// failures are audited and swallowed.
func (g *Guard) RecordAttempt(ctx context.Context, identifier, action string, success bool) {
	if err := g.limiter.RecordAttempt(ctx, identifier, action, success, nil); err != nil {
		g.failOpen(ctx, "rate_limit:"+action, err)
	}
}

// ClearRateLimit removes both the counter and any lockout for the pair.
// Administrative; store errors propagate.
func (g *Guard) ClearRateLimit(ctx context.Context, identifier, action string) error {
	return g.limiter.Clear(ctx, identifier, action)
}

// IsRateLimitLocked reports whether an unexpired lockout exists for the pair.
// Fails open to false on store errors.
func (g *Guard) IsRateLimitLocked(ctx context.Context, identifier, action string) bool {
	locked, err := g.limiter.IsLocked(ctx, identifier, action)
	if err != nil {
		g.failOpen(ctx, "rate_limit:"+action, err)
		return false
	}
	return locked
}

func (g *Guard) policyMaxAttempts(action string, override *RateLimitPolicy) int {
	if override != nil {
		return override.MaxAttempts
	}
	if p, ok := g.config.RateLimit.Policies[action]; ok {
		return p.MaxAttempts
	}
	return ratelimit.DefaultPolicies()[ratelimit.ActionLogin].MaxAttempts
}

func toLimiterPolicy(p *RateLimitPolicy) *ratelimit.Policy {
	if p == nil {
		return nil
	}
	return &ratelimit.Policy{
		MaxAttempts: p.MaxAttempts,
		Window:      p.Window,
		Lockout:     p.Lockout,
		Progressive: p.Progressive,
	}
}

// IsBusinessRejection reports whether err is one of the typed guard
// rejections, as opposed to an infrastructure failure. Handlers that catch
// broadly must re-raise these unchanged.
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrAccountLocked) ||
		errors.Is(err, ErrSessionMaxDuration) ||
		errors.Is(err, ErrSessionIdle)
}
