package finguard

import (
	"errors"

	"github.com/ledgerline/finguard/internal/kv"
	"github.com/ledgerline/finguard/internal/lockout"
	"github.com/ledgerline/finguard/internal/ratelimit"
	"github.com/ledgerline/finguard/internal/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Guard]. Construction is allocation-only; no I/O
// happens until the guard's methods are called.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory UserDirectory
	verifier  Verifier
	auditSink AuditSink

	built bool
}

// New returns a [Builder] primed with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis injects a pooled Redis client owned by the caller. Without it,
// Build opens a client from Config.Store and the guard closes it on Close.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserDirectory wires the identity collaborator used to suspend and
// reactivate accounts on lockout transitions. Optional.
func (b *Builder) WithUserDirectory(directory UserDirectory) *Builder {
	b.directory = directory
	return b
}

// WithVerifier wires the bearer-credential verifier used by CheckSession.
// Required for session checks; other guards work without it.
func (b *Builder) WithVerifier(v Verifier) *Builder {
	b.verifier = v
	return b
}

// WithAuditSink wires the observability sink. Defaults to [NoOpSink].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and assembles the guard. A builder can
// be used once.
func (b *Builder) Build() (*Guard, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	client := b.redis
	ownsRedis := false
	if client == nil {
		if b.config.Store.Addr == "" {
			return nil, errors.New("no redis client injected and Config.Store.Addr empty")
		}
		client = redis.NewClient(b.config.Store.Options())
		ownsRedis = true
	}

	store := kv.New(client)

	g := &Guard{
		config:    b.config,
		redis:     client,
		ownsRedis: ownsRedis,
		store:     store,
		verifier:  b.verifier,
		directory: b.directory,
		metrics:   NewMetrics(b.config.Metrics),
		audit:     newAuditDispatcher(b.config.Audit, b.auditSink),
	}

	g.limiter = ratelimit.New(store, toLimiterPolicies(b.config.RateLimit.Policies))
	g.tracker = lockout.New(store, directoryAdapter{guard: g}, lockout.Policy{
		MaxFailedAttempts: b.config.Lockout.MaxFailedAttempts,
		LockoutDuration:   b.config.Lockout.LockoutDuration,
		ResetWindow:       b.config.Lockout.ResetWindow,
		Progressive:       b.config.Lockout.Progressive,
		Multipliers:       b.config.Lockout.Multipliers,
	})
	g.monitor = session.NewMonitor(store, session.Config{
		MaxDuration: b.config.Session.MaxDuration,
		IdleTimeout: b.config.Session.IdleTimeout,
	})
	g.sessions = session.NewManager(store)

	b.built = true
	return g, nil
}

func toLimiterPolicies(policies map[string]RateLimitPolicy) map[string]ratelimit.Policy {
	out := make(map[string]ratelimit.Policy, len(policies))
	for action, p := range policies {
		out[action] = ratelimit.Policy{
			MaxAttempts: p.MaxAttempts,
			Window:      p.Window,
			Lockout:     p.Lockout,
			Progressive: p.Progressive,
		}
	}
	return out
}
