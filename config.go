package finguard

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the full guard configuration. Configure it during initialization
// and treat it as immutable afterwards.
type Config struct {
	Store     StoreConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	Session   SessionConfig
	Audit     AuditConfig
	Metrics   MetricsConfig

	// TrustProxyHeaders enables client-IP extraction from X-Forwarded-For /
	// X-Real-IP. Only safe behind a reverse proxy that strips inbound
	// forwarding headers; spoofable otherwise.
	TrustProxyHeaders bool
}

// StoreConfig describes the shared Redis backend. It is used only when no
// client is injected through [Builder.WithRedis]; the preferred deployment is
// one pooled client per process with explicit lifecycle.
type StoreConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// Options converts the store configuration to go-redis client options.
func (c StoreConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     c.Addr,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
	}
}

// RateLimitConfig carries the per-action policy table. Missing actions fall
// back to built-in defaults (login, password_reset, password_change).
type RateLimitConfig struct {
	Policies map[string]RateLimitPolicy
}

// LockoutConfig tunes the failed-login lockout tracker.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	ResetWindow       time.Duration
	Progressive       bool
	Multipliers       []int
}

// SessionConfig tunes the session timeout monitor.
type SessionConfig struct {
	MaxDuration time.Duration
	IdleTimeout time.Duration
}

// AuditConfig tunes the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig tunes the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline policy set: per-action rate limits for
// login, password reset and password change, 5-failure/30m progressive
// account lockout with a 24h reset window, and 8h/30m session timeouts.
// Audit and metrics are enabled with a small drop-if-full buffer.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Addr: "localhost:6379",
		},
		RateLimit: RateLimitConfig{
			Policies: map[string]RateLimitPolicy{
				"login": {
					MaxAttempts: 5,
					Window:      15 * time.Minute,
					Lockout:     30 * time.Minute,
					Progressive: true,
				},
				"password_reset": {
					MaxAttempts: 3,
					Window:      60 * time.Minute,
					Lockout:     60 * time.Minute,
				},
				"password_change": {
					MaxAttempts: 10,
					Window:      60 * time.Minute,
					Lockout:     15 * time.Minute,
				},
			},
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   30 * time.Minute,
			ResetWindow:       24 * time.Hour,
			Progressive:       true,
			Multipliers:       []int{1, 2, 4, 8, 16, 48},
		},
		Session: SessionConfig{
			MaxDuration: 8 * time.Hour,
			IdleTimeout: 30 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// HighSecurityConfig tightens the baseline: smaller attempt budgets, shorter
// sessions, latency histograms on.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()

	login := cfg.RateLimit.Policies["login"]
	login.MaxAttempts = 3
	cfg.RateLimit.Policies["login"] = login

	cfg.Lockout.MaxFailedAttempts = 3
	cfg.Session.MaxDuration = 4 * time.Hour
	cfg.Session.IdleTimeout = 15 * time.Minute
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

// Validate rejects configurations that would make a guard misbehave rather
// than merely be strict or lax.
func (c Config) Validate() error {
	for action, p := range c.RateLimit.Policies {
		if p.MaxAttempts <= 0 {
			return fmt.Errorf("rate limit policy %q: MaxAttempts must be positive", action)
		}
		if p.Window <= 0 || p.Lockout <= 0 {
			return fmt.Errorf("rate limit policy %q: Window and Lockout must be positive", action)
		}
	}

	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("lockout: MaxFailedAttempts must be positive")
	}
	if c.Lockout.LockoutDuration <= 0 || c.Lockout.ResetWindow <= 0 {
		return errors.New("lockout: LockoutDuration and ResetWindow must be positive")
	}
	if c.Lockout.Progressive && len(c.Lockout.Multipliers) == 0 {
		return errors.New("lockout: progressive mode requires a multiplier table")
	}
	for i, m := range c.Lockout.Multipliers {
		if m <= 0 {
			return fmt.Errorf("lockout: multiplier %d must be positive", i)
		}
	}

	if c.Session.MaxDuration <= 0 || c.Session.IdleTimeout <= 0 {
		return errors.New("session: MaxDuration and IdleTimeout must be positive")
	}
	if c.Session.IdleTimeout > c.Session.MaxDuration {
		return errors.New("session: IdleTimeout must not exceed MaxDuration")
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit: BufferSize must not be negative")
	}
	return nil
}
