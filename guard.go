package finguard

import (
	"context"
	"time"

	"github.com/ledgerline/finguard/internal/kv"
	"github.com/ledgerline/finguard/internal/lockout"
	"github.com/ledgerline/finguard/internal/ratelimit"
	"github.com/ledgerline/finguard/internal/session"
	"github.com/redis/go-redis/v9"
)

// Guard is the assembled request-admission and session-integrity engine.
// Safe for concurrent use after [Builder.Build].
type Guard struct {
	config    Config
	redis     redis.UniversalClient
	ownsRedis bool
	store     *kv.Store

	limiter  *ratelimit.Limiter
	tracker  *lockout.Tracker
	monitor  *session.Monitor
	sessions *session.Manager

	directory UserDirectory
	verifier  Verifier
	audit     *auditDispatcher
	metrics   *Metrics
}

// Close stops the audit dispatcher and, when the guard opened its own Redis
// client, closes it.
func (g *Guard) Close() error {
	if g == nil {
		return nil
	}
	if g.audit != nil {
		g.audit.Close()
	}
	if g.ownsRedis && g.redis != nil {
		return g.redis.Close()
	}
	return nil
}

// Ping reports store availability and round-trip latency.
func (g *Guard) Ping(ctx context.Context) (time.Duration, error) {
	return g.store.Ping(ctx)
}

// Config returns the configuration the guard was built with.
func (g *Guard) Config() Config {
	return g.config
}

// MetricsSnapshot returns a point-in-time copy of all guard counters.
func (g *Guard) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return g.metrics.Snapshot()
}

// AuditDropped returns the number of audit events discarded under
// backpressure.
func (g *Guard) AuditDropped() uint64 {
	if g == nil || g.audit == nil {
		return 0
	}
	return g.audit.Dropped()
}

func (g *Guard) metricInc(id MetricID) {
	if g == nil || g.metrics == nil {
		return
	}
	g.metrics.Inc(id)
}

func (g *Guard) emitAudit(ctx context.Context, event AuditEvent) {
	if g == nil || g.audit == nil {
		return
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	g.audit.Emit(ctx, event)
}

// failOpen audits an infrastructure failure that was resolved permissively.
func (g *Guard) failOpen(ctx context.Context, scope string, err error) {
	g.metricInc(MetricStoreFailOpen)
	g.emitAudit(ctx, AuditEvent{
		EventType: EventFailOpen,
		Action:    scope,
		Error:     err.Error(),
	})
}

// directoryAdapter bridges the public [UserDirectory] to the lockout
// tracker's narrower contract, enforcing the status-transition rules:
// suspend only from Active, reactivate only a lockout-made suspension.
type directoryAdapter struct {
	guard *Guard
}

func (a directoryAdapter) Suspend(ctx context.Context, identifier string) error {
	dir := a.guard.directory
	if dir == nil {
		return nil
	}
	status, err := dir.Status(ctx, identifier)
	if err != nil {
		return err
	}
	if status != UserStatusActive {
		return nil
	}
	if err := dir.SetStatus(ctx, identifier, UserStatusSuspendedLockout); err != nil {
		return err
	}
	a.guard.metricInc(MetricAccountSuspended)
	return nil
}

func (a directoryAdapter) Reactivate(ctx context.Context, identifier string) error {
	dir := a.guard.directory
	if dir == nil {
		return nil
	}
	status, err := dir.Status(ctx, identifier)
	if err != nil {
		return err
	}
	// An administrator's suspension is not ours to reverse.
	if status != UserStatusSuspendedLockout {
		return nil
	}
	return dir.SetStatus(ctx, identifier, UserStatusActive)
}
