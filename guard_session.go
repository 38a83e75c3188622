package finguard

import (
	"context"
	"errors"
	"time"

	"github.com/ledgerline/finguard/internal/session"
)

// CheckSession runs one authenticated request through the session timeout
// state machine. A nil return allows the request.
//
// An empty token skips the guard entirely: credential presence is the
// authentication layer's concern, this guard is defense-in-depth behind it.
// The two deliberate rejections, [ErrSessionMaxDuration] and
// [ErrSessionIdle], propagate unchanged. Everything else — verifier failures,
// store outages, corrupt records — is audited and fails open.
func (g *Guard) CheckSession(ctx context.Context, req SessionRequest) error {
	if req.Token == "" {
		return nil
	}

	start := time.Now()
	defer func() {
		if g.metrics != nil {
			g.metrics.Observe(MetricCheckLatency, time.Since(start))
		}
	}()

	if g.verifier == nil {
		return nil
	}
	userID, err := g.verifier.Verify(ctx, req.Token)
	if err != nil {
		g.failOpen(ctx, "session:verify", err)
		return nil
	}

	ip := req.ClientIP
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = userAgentFromContext(ctx)
	}

	digest := session.TokenDigest(req.Token)
	outcome, err := g.monitor.Check(ctx, userID, digest, ip, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionMaxDuration):
			g.metricInc(MetricSessionExpiredAbsolute)
			g.emitAudit(ctx, AuditEvent{
				EventType: EventSessionAbsolute,
				UserID:    userID,
				IP:        ip,
			})
			return err
		case errors.Is(err, ErrSessionIdle):
			g.metricInc(MetricSessionExpiredIdle)
			g.emitAudit(ctx, AuditEvent{
				EventType: EventSessionIdle,
				UserID:    userID,
				IP:        ip,
			})
			return err
		default:
			g.failOpen(ctx, "session:check", err)
			return nil
		}
	}

	switch outcome {
	case session.OutcomeCreated:
		g.metricInc(MetricSessionCreated)
		g.emitAudit(ctx, AuditEvent{
			EventType: EventSessionCreated,
			UserID:    userID,
			IP:        ip,
			Success:   true,
		})
	case session.OutcomeRefreshed:
		g.metricInc(MetricSessionRefreshed)
	}
	return nil
}

// UserSessions lists a user's live sessions, most recently active first.
// Returns an empty slice on store errors (audited): administrative reads
// never propagate infrastructure failures.
func (g *Guard) UserSessions(ctx context.Context, userID string) []SessionInfo {
	entries, err := g.sessions.UserSessions(ctx, userID)
	if err != nil {
		g.failOpen(ctx, "session:list", err)
		return []SessionInfo{}
	}

	out := make([]SessionInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, SessionInfo{
			UserID:       e.Record.UserID,
			Digest:       e.Digest,
			CreatedAt:    e.Record.CreatedTime(),
			LastActivity: e.Record.LastActivityTime(),
			IPAddress:    e.Record.IPAddress,
			UserAgent:    e.Record.UserAgent,
		})
	}
	return out
}

// InvalidateUserSessions bulk-deletes every session for the user and returns
// how many were removed, zero on store errors (audited).
func (g *Guard) InvalidateUserSessions(ctx context.Context, userID string) int {
	count, err := g.sessions.InvalidateUserSessions(ctx, userID)
	if err != nil {
		g.failOpen(ctx, "session:invalidate", err)
		return 0
	}
	if count > 0 {
		g.metricInc(MetricSessionInvalidated)
		g.emitAudit(ctx, AuditEvent{
			EventType: EventSessionsRevoked,
			UserID:    userID,
			Success:   true,
		})
	}
	return count
}

// SessionStats aggregates all session records. The global count is key-based
// and authoritative; the per-user breakdown excludes corrupt records. Returns
// zeroed stats on store errors (audited).
func (g *Guard) SessionStats(ctx context.Context) SessionStats {
	stats, err := g.sessions.GlobalStats(ctx)
	if err != nil {
		g.failOpen(ctx, "session:stats", err)
	}
	return SessionStats{
		TotalActiveSessions: stats.TotalActiveSessions,
		SessionsByUser:      stats.SessionsByUser,
		OldestSession:       stats.OldestSession,
	}
}
