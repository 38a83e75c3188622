package session

import (
	"context"
	"errors"
	"time"

	"github.com/ledgerline/finguard/internal/kv"
)

var (
	// ErrMaxDuration is the business rejection for a session older than the
	// absolute lifetime, regardless of activity.
	ErrMaxDuration = errors.New("session maximum duration reached")
	// ErrIdleExpired is the business rejection for a session whose last
	// activity is older than the idle timeout.
	ErrIdleExpired = errors.New("session expired due to inactivity")
)

// Config holds the timeout policy.
type Config struct {
	MaxDuration time.Duration
	IdleTimeout time.Duration
}

// DefaultConfig returns the baseline 8h absolute / 30m idle policy.
func DefaultConfig() Config {
	return Config{
		MaxDuration: 8 * time.Hour,
		IdleTimeout: 30 * time.Minute,
	}
}

// Outcome reports what a successful check did to the record.
type Outcome int

const (
	// OutcomeCreated means no record existed and one was written.
	OutcomeCreated Outcome = iota
	// OutcomeRefreshed means the record existed and lastActivity advanced.
	OutcomeRefreshed
	// OutcomeClosed means the request was admitted but the record's bound
	// was reached exactly, so it was removed instead of rewritten.
	OutcomeClosed
)

// Monitor evaluates the per-request session timeout state machine.
type Monitor struct {
	store *kv.Store
	cfg   Config
	now   func() time.Time
}

// NewMonitor creates a [Monitor]. Zero config fields fall back to defaults.
func NewMonitor(store *kv.Store, cfg Config) *Monitor {
	defaults := DefaultConfig()
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaults.MaxDuration
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	return &Monitor{store: store, cfg: cfg, now: time.Now}
}

// Check runs one authenticated request through the timeout state machine.
//
// Absent record: create it with createdAt=lastActivity=now and allow.
// Present record: reject with [ErrMaxDuration] or [ErrIdleExpired] when the
// respective bound is exceeded (deleting the record), otherwise advance
// lastActivity and rewrite with TTL = min(remaining absolute, idle timeout).
//
// Store and decode errors surface unmodified; the caller fails open on them
// but must re-raise the two rejection sentinels unchanged.
func (m *Monitor) Check(ctx context.Context, userID, digest, ip, userAgent string) (Outcome, error) {
	key := Key(userID, digest)
	now := m.now()

	raw, found, err := m.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}

	if !found {
		rec := Record{
			UserID:       userID,
			CreatedAt:    now.UnixMilli(),
			LastActivity: now.UnixMilli(),
			IPAddress:    ip,
			UserAgent:    userAgent,
		}
		encoded, err := Encode(rec)
		if err != nil {
			return 0, err
		}
		if err := m.store.SetEx(ctx, key, encoded, m.cfg.MaxDuration); err != nil {
			return 0, err
		}
		return OutcomeCreated, nil
	}

	rec, err := Decode(raw)
	if err != nil {
		return 0, err
	}

	elapsedAbsolute := now.Sub(rec.CreatedTime())
	elapsedIdle := now.Sub(rec.LastActivityTime())

	if elapsedAbsolute > m.cfg.MaxDuration {
		if err := m.store.Del(ctx, key); err != nil {
			return 0, err
		}
		return 0, ErrMaxDuration
	}
	if elapsedIdle > m.cfg.IdleTimeout {
		if err := m.store.Del(ctx, key); err != nil {
			return 0, err
		}
		return 0, ErrIdleExpired
	}

	rec.LastActivity = now.UnixMilli()
	ttl := m.cfg.MaxDuration - elapsedAbsolute
	if m.cfg.IdleTimeout < ttl {
		ttl = m.cfg.IdleTimeout
	}
	// Exact-boundary case: never write a record whose bound already reached zero.
	if ttl <= 0 {
		if err := m.store.Del(ctx, key); err != nil {
			return 0, err
		}
		return OutcomeClosed, nil
	}

	encoded, err := Encode(rec)
	if err != nil {
		return 0, err
	}
	if err := m.store.SetEx(ctx, key, encoded, ttl); err != nil {
		return 0, err
	}
	return OutcomeRefreshed, nil
}

// SetClock overrides the time source. Test hook only.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}
