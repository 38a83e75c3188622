package finguard

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigPolicies(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	login := cfg.RateLimit.Policies["login"]
	if login.MaxAttempts != 5 || login.Window != 15*time.Minute || login.Lockout != 30*time.Minute || !login.Progressive {
		t.Fatalf("unexpected login policy: %+v", login)
	}
	reset := cfg.RateLimit.Policies["password_reset"]
	if reset.MaxAttempts != 3 || reset.Window != time.Hour || reset.Lockout != time.Hour || reset.Progressive {
		t.Fatalf("unexpected password_reset policy: %+v", reset)
	}
	change := cfg.RateLimit.Policies["password_change"]
	if change.MaxAttempts != 10 || change.Lockout != 15*time.Minute {
		t.Fatalf("unexpected password_change policy: %+v", change)
	}

	if cfg.Lockout.MaxFailedAttempts != 5 || cfg.Lockout.LockoutDuration != 30*time.Minute {
		t.Fatalf("unexpected lockout policy: %+v", cfg.Lockout)
	}
	if got, want := cfg.Lockout.Multipliers, []int{1, 2, 4, 8, 16, 48}; len(got) != len(want) {
		t.Fatalf("multipliers = %v, want %v", got, want)
	} else {
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("multipliers = %v, want %v", got, want)
			}
		}
	}

	if cfg.Session.MaxDuration != 8*time.Hour || cfg.Session.IdleTimeout != 30*time.Minute {
		t.Fatalf("unexpected session policy: %+v", cfg.Session)
	}
	if cfg.TrustProxyHeaders {
		t.Fatal("proxy headers must be untrusted by default")
	}
}

func TestHighSecurityConfigTightensBaseline(t *testing.T) {
	cfg := HighSecurityConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("high-security config must validate: %v", err)
	}
	if cfg.RateLimit.Policies["login"].MaxAttempts != 3 {
		t.Fatalf("login budget = %d, want 3", cfg.RateLimit.Policies["login"].MaxAttempts)
	}
	if cfg.Lockout.MaxFailedAttempts != 3 {
		t.Fatalf("lockout budget = %d, want 3", cfg.Lockout.MaxFailedAttempts)
	}
	if cfg.Session.MaxDuration != 4*time.Hour || cfg.Session.IdleTimeout != 15*time.Minute {
		t.Fatalf("unexpected session policy: %+v", cfg.Session)
	}
	if !cfg.Metrics.EnableLatencyHistograms {
		t.Fatal("high-security preset should enable latency histograms")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "zero max attempts",
			mutate: func(c *Config) {
				p := c.RateLimit.Policies["login"]
				p.MaxAttempts = 0
				c.RateLimit.Policies["login"] = p
			},
			wantValid: false,
		},
		{
			name: "negative window",
			mutate: func(c *Config) {
				p := c.RateLimit.Policies["login"]
				p.Window = -time.Minute
				c.RateLimit.Policies["login"] = p
			},
			wantValid: false,
		},
		{
			name: "zero lockout attempts",
			mutate: func(c *Config) {
				c.Lockout.MaxFailedAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "progressive without multipliers",
			mutate: func(c *Config) {
				c.Lockout.Multipliers = nil
			},
			wantValid: false,
		},
		{
			name: "non-positive multiplier",
			mutate: func(c *Config) {
				c.Lockout.Multipliers = []int{1, 0, 4}
			},
			wantValid: false,
		},
		{
			name: "fixed lockout without multipliers",
			mutate: func(c *Config) {
				c.Lockout.Progressive = false
				c.Lockout.Multipliers = nil
			},
			wantValid: true,
		},
		{
			name: "idle exceeds absolute",
			mutate: func(c *Config) {
				c.Session.IdleTimeout = 9 * time.Hour
			},
			wantValid: false,
		},
		{
			name: "zero session duration",
			mutate: func(c *Config) {
				c.Session.MaxDuration = 0
			},
			wantValid: false,
		},
		{
			name: "negative audit buffer",
			mutate: func(c *Config) {
				c.Audit.BufferSize = -1
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if tt.wantValid && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.wantValid && err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestLoadConfigFileLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finguard.yaml")
	content := `
store:
  addr: redis.internal:6380
  db: 3
trust_proxy_headers: true
rate_limit:
  login:
    max_attempts: 4
    window: 10m
    lockout: 20m
lockout:
  max_failed_attempts: 4
  lockout_duration: 45m
session:
  max_duration: 6h
  idle_timeout: 20m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	if cfg.Store.Addr != "redis.internal:6380" || cfg.Store.DB != 3 {
		t.Fatalf("store not applied: %+v", cfg.Store)
	}
	if !cfg.TrustProxyHeaders {
		t.Fatal("trust_proxy_headers not applied")
	}

	login := cfg.RateLimit.Policies["login"]
	if login.MaxAttempts != 4 || login.Window != 10*time.Minute || login.Lockout != 20*time.Minute {
		t.Fatalf("login policy not applied: %+v", login)
	}
	if !login.Progressive {
		t.Fatal("tuning other login fields must not clear Progressive")
	}

	// Untouched sections keep their defaults.
	if cfg.RateLimit.Policies["password_reset"].MaxAttempts != 3 {
		t.Fatal("absent policy section must keep defaults")
	}
	if cfg.Lockout.ResetWindow != 24*time.Hour {
		t.Fatal("absent lockout field must keep default")
	}

	if cfg.Session.MaxDuration != 6*time.Hour || cfg.Session.IdleTimeout != 20*time.Minute {
		t.Fatalf("session not applied: %+v", cfg.Session)
	}
}

func TestLoadConfigFileProgressiveOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finguard.yaml")
	content := `
rate_limit:
  login:
    progressive: false
  password_reset:
    progressive: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	if cfg.RateLimit.Policies["login"].Progressive {
		t.Fatal("explicit progressive: false must apply")
	}
	if !cfg.RateLimit.Policies["password_reset"].Progressive {
		t.Fatal("explicit progressive: true must apply")
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("session:\n  max_duration: notaduration\n"), 0o600)
	if _, err := LoadConfigFile(bad); err == nil {
		t.Fatal("expected error for bad duration")
	}

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	_ = os.WriteFile(invalid, []byte("session:\n  max_duration: 10m\n  idle_timeout: 1h\n"), 0o600)
	if _, err := LoadConfigFile(invalid); err == nil {
		t.Fatal("expected validation error for idle > absolute")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FINGUARD_REDIS_ADDR", "redis.example:6379")
	t.Setenv("FINGUARD_REDIS_DB", "2")
	t.Setenv("FINGUARD_TRUST_PROXY", "true")
	t.Setenv("SESSION_MAX_DURATION", "4h")
	t.Setenv("SESSION_IDLE_TIMEOUT", "10m")

	cfg, err := ApplyEnv(DefaultConfig())
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Store.Addr != "redis.example:6379" || cfg.Store.DB != 2 {
		t.Fatalf("store env not applied: %+v", cfg.Store)
	}
	if !cfg.TrustProxyHeaders {
		t.Fatal("FINGUARD_TRUST_PROXY not applied")
	}
	if cfg.Session.MaxDuration != 4*time.Hour || cfg.Session.IdleTimeout != 10*time.Minute {
		t.Fatalf("session env not applied: %+v", cfg.Session)
	}
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("FINGUARD_REDIS_DB", "two")
	if _, err := ApplyEnv(DefaultConfig()); err == nil {
		t.Fatal("expected error for non-numeric DB")
	}

	t.Setenv("FINGUARD_REDIS_DB", "")
	t.Setenv("SESSION_IDLE_TIMEOUT", "soon")
	if _, err := ApplyEnv(DefaultConfig()); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
