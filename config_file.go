package finguard

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of a deployment config. Durations are Go
// duration strings ("30m", "8h"); absent sections keep their defaults.
type fileConfig struct {
	Store struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"store"`
	TrustProxyHeaders *bool `yaml:"trust_proxy_headers"`
	RateLimit         map[string]struct {
		MaxAttempts int    `yaml:"max_attempts"`
		Window      string `yaml:"window"`
		Lockout     string `yaml:"lockout"`
		Progressive *bool  `yaml:"progressive"`
	} `yaml:"rate_limit"`
	Lockout struct {
		MaxFailedAttempts int    `yaml:"max_failed_attempts"`
		LockoutDuration   string `yaml:"lockout_duration"`
		ResetWindow       string `yaml:"reset_window"`
		Progressive       *bool  `yaml:"progressive"`
		Multipliers       []int  `yaml:"multipliers"`
	} `yaml:"lockout"`
	Session struct {
		MaxDuration string `yaml:"max_duration"`
		IdleTimeout string `yaml:"idle_timeout"`
	} `yaml:"session"`
}

// LoadConfigFile reads a YAML deployment config layered over [DefaultConfig].
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if fc.Store.Addr != "" {
		cfg.Store.Addr = fc.Store.Addr
	}
	if fc.Store.Username != "" {
		cfg.Store.Username = fc.Store.Username
	}
	if fc.Store.Password != "" {
		cfg.Store.Password = fc.Store.Password
	}
	if fc.Store.DB != 0 {
		cfg.Store.DB = fc.Store.DB
	}
	if fc.TrustProxyHeaders != nil {
		cfg.TrustProxyHeaders = *fc.TrustProxyHeaders
	}

	for action, p := range fc.RateLimit {
		policy := cfg.RateLimit.Policies[action]
		if p.MaxAttempts > 0 {
			policy.MaxAttempts = p.MaxAttempts
		}
		if d, err := parseDuration(p.Window); err != nil {
			return cfg, fmt.Errorf("rate_limit.%s.window: %w", action, err)
		} else if d > 0 {
			policy.Window = d
		}
		if d, err := parseDuration(p.Lockout); err != nil {
			return cfg, fmt.Errorf("rate_limit.%s.lockout: %w", action, err)
		} else if d > 0 {
			policy.Lockout = d
		}
		if p.Progressive != nil {
			policy.Progressive = *p.Progressive
		}
		cfg.RateLimit.Policies[action] = policy
	}

	if fc.Lockout.MaxFailedAttempts > 0 {
		cfg.Lockout.MaxFailedAttempts = fc.Lockout.MaxFailedAttempts
	}
	if d, err := parseDuration(fc.Lockout.LockoutDuration); err != nil {
		return cfg, fmt.Errorf("lockout.lockout_duration: %w", err)
	} else if d > 0 {
		cfg.Lockout.LockoutDuration = d
	}
	if d, err := parseDuration(fc.Lockout.ResetWindow); err != nil {
		return cfg, fmt.Errorf("lockout.reset_window: %w", err)
	} else if d > 0 {
		cfg.Lockout.ResetWindow = d
	}
	if fc.Lockout.Progressive != nil {
		cfg.Lockout.Progressive = *fc.Lockout.Progressive
	}
	if len(fc.Lockout.Multipliers) > 0 {
		cfg.Lockout.Multipliers = fc.Lockout.Multipliers
	}

	if d, err := parseDuration(fc.Session.MaxDuration); err != nil {
		return cfg, fmt.Errorf("session.max_duration: %w", err)
	} else if d > 0 {
		cfg.Session.MaxDuration = d
	}
	if d, err := parseDuration(fc.Session.IdleTimeout); err != nil {
		return cfg, fmt.Errorf("session.idle_timeout: %w", err)
	} else if d > 0 {
		cfg.Session.IdleTimeout = d
	}

	return cfg, cfg.Validate()
}

// ApplyEnv overlays process environment variables onto a config. Recognized:
//
//	FINGUARD_REDIS_ADDR, FINGUARD_REDIS_USERNAME, FINGUARD_REDIS_PASSWORD,
//	FINGUARD_REDIS_DB, FINGUARD_TRUST_PROXY,
//	SESSION_MAX_DURATION, SESSION_IDLE_TIMEOUT
//
// Duration variables accept Go duration strings.
func ApplyEnv(cfg Config) (Config, error) {
	if v := os.Getenv("FINGUARD_REDIS_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := os.Getenv("FINGUARD_REDIS_USERNAME"); v != "" {
		cfg.Store.Username = v
	}
	if v := os.Getenv("FINGUARD_REDIS_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("FINGUARD_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("FINGUARD_REDIS_DB: %w", err)
		}
		cfg.Store.DB = db
	}
	if v := os.Getenv("FINGUARD_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("FINGUARD_TRUST_PROXY: %w", err)
		}
		cfg.TrustProxyHeaders = trust
	}
	if v := os.Getenv("SESSION_MAX_DURATION"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("SESSION_MAX_DURATION: %w", err)
		}
		cfg.Session.MaxDuration = d
	}
	if v := os.Getenv("SESSION_IDLE_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("SESSION_IDLE_TIMEOUT: %w", err)
		}
		cfg.Session.IdleTimeout = d
	}
	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
