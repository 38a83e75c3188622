package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/finguard/internal/kv"
)

func newTestLimiter(t *testing.T) (*Limiter, *redis.Client, *time.Time) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	limiter := New(kv.New(rdb), nil)

	now := time.Now().Truncate(time.Millisecond)
	limiter.SetClock(func() time.Time { return now })

	return limiter, rdb, &now
}

func TestCheckFreshIdentifierAllowed(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()

	res, err := limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Allowed || res.Locked {
		t.Fatalf("fresh identifier should be allowed: %+v", res)
	}
	if res.AttemptsRemaining != 4 {
		t.Fatalf("AttemptsRemaining = %d, want 4", res.AttemptsRemaining)
	}
}

func TestCheckDoesNotConsumeBudget(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		res, err := limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)
		if err != nil {
			t.Fatalf("Check #%d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("Check #%d denied without any recorded attempt", i)
		}
		if res.AttemptsRemaining != 4 {
			t.Fatalf("Check #%d AttemptsRemaining = %d, want stable 4", i, res.AttemptsRemaining)
		}
	}
}

func TestFailuresExhaustBudgetThenLock(t *testing.T) {
	limiter, rdb, now := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, false, nil); err != nil {
			t.Fatalf("RecordAttempt #%d: %v", i, err)
		}
	}

	res, err := limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Locked || res.Allowed {
		t.Fatalf("expected lockout after budget exhaustion: %+v", res)
	}
	if !res.LockoutWritten {
		t.Fatal("first denial should report LockoutWritten")
	}
	if want := now.Add(30 * time.Minute); !res.LockedUntil.Equal(want) {
		t.Fatalf("LockedUntil = %v, want %v", res.LockedUntil, want)
	}

	// Backoff memory: the counter hash carries lockoutCount=1 past the lockout.
	if got := rdb.HGet(ctx, "rate_limit:login:1.2.3.4", "lockoutCount").Val(); got != "1" {
		t.Fatalf("lockoutCount = %q, want \"1\"", got)
	}

	// Subsequent checks hit the existing record, no second write.
	res, err = limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if !res.Locked || res.LockoutWritten {
		t.Fatalf("second denial should reuse the lockout record: %+v", res)
	}
}

func TestProgressiveLockoutDoubles(t *testing.T) {
	limiter, rdb, now := newTestLimiter(t)
	ctx := context.Background()

	// One prior lockout on record: the next one doubles to 60 minutes.
	rdb.HSet(ctx, "rate_limit:login:1.2.3.4", map[string]any{
		"count":        5,
		"windowStart":  now.UnixMilli(),
		"lockoutCount": 1,
	})

	res, err := limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Locked {
		t.Fatalf("expected lockout: %+v", res)
	}
	if want := now.Add(60 * time.Minute); !res.LockedUntil.Equal(want) {
		t.Fatalf("LockedUntil = %v, want doubled %v", res.LockedUntil, want)
	}
}

func TestProgressiveLockoutClampsAt24h(t *testing.T) {
	limiter, rdb, now := newTestLimiter(t)
	ctx := context.Background()

	rdb.HSet(ctx, "rate_limit:login:1.2.3.4", map[string]any{
		"count":        5,
		"windowStart":  now.UnixMilli(),
		"lockoutCount": 10,
	})

	res, err := limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if want := now.Add(24 * time.Hour); !res.LockedUntil.Equal(want) {
		t.Fatalf("LockedUntil = %v, want clamped %v", res.LockedUntil, want)
	}
}

func TestNonProgressiveActionNeverDoubles(t *testing.T) {
	limiter, rdb, now := newTestLimiter(t)
	ctx := context.Background()

	rdb.HSet(ctx, "rate_limit:password_reset:alice", map[string]any{
		"count":        3,
		"windowStart":  now.UnixMilli(),
		"lockoutCount": 7,
	})

	res, err := limiter.Check(ctx, "alice", ActionPasswordReset, nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if want := now.Add(60 * time.Minute); !res.LockedUntil.Equal(want) {
		t.Fatalf("LockedUntil = %v, want fixed %v", res.LockedUntil, want)
	}
	// Non-progressive lockouts leave the counter untouched.
	if got := rdb.HGet(ctx, "rate_limit:password_reset:alice", "lockoutCount").Val(); got != "7" {
		t.Fatalf("lockoutCount = %q, want unchanged \"7\"", got)
	}
}

func TestSuccessResetsCounter(t *testing.T) {
	limiter, rdb, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, false, nil)
	}
	if err := limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, true, nil); err != nil {
		t.Fatalf("RecordAttempt success: %v", err)
	}

	if n := rdb.Exists(ctx, "rate_limit:login:1.2.3.4").Val(); n != 0 {
		t.Fatal("success should delete the window counter")
	}

	res, err := limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.AttemptsRemaining != 4 {
		t.Fatalf("AttemptsRemaining = %d after success, want full budget 4", res.AttemptsRemaining)
	}
}

func TestWindowExpiryResetsCount(t *testing.T) {
	limiter, rdb, now := newTestLimiter(t)
	ctx := context.Background()

	_ = limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, false, nil)
	_ = limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, false, nil)

	*now = now.Add(16 * time.Minute)

	res, err := limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Allowed || res.AttemptsRemaining != 4 {
		t.Fatalf("expired window should reset: %+v", res)
	}
	if n := rdb.Exists(ctx, "rate_limit:login:1.2.3.4").Val(); n != 0 {
		t.Fatal("expired counter should be deleted on check")
	}
}

func TestExpiredLockoutIsLazilyCleaned(t *testing.T) {
	limiter, rdb, now := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, false, nil)
	}
	if _, err := limiter.Check(ctx, "1.2.3.4", ActionLogin, nil); err != nil {
		t.Fatalf("locking Check: %v", err)
	}

	*now = now.Add(31 * time.Minute)

	res, err := limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)
	if err != nil {
		t.Fatalf("Check after expiry: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expired lockout should admit: %+v", res)
	}
	if n := rdb.Exists(ctx, "lockout:login:1.2.3.4", "rate_limit:login:1.2.3.4").Val(); n != 0 {
		t.Fatal("lazy cleanup should delete both lockout and counter keys")
	}
}

func TestRecordAttemptPreservesBackoffAcrossWindowReinit(t *testing.T) {
	limiter, rdb, now := newTestLimiter(t)
	ctx := context.Background()

	rdb.HSet(ctx, "rate_limit:login:1.2.3.4", map[string]any{
		"count":        3,
		"windowStart":  now.Add(-20 * time.Minute).UnixMilli(),
		"lockoutCount": 2,
	})

	if err := limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, false, nil); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	fields := rdb.HGetAll(ctx, "rate_limit:login:1.2.3.4").Val()
	if fields["count"] != "1" {
		t.Fatalf("count = %q after window reinit, want \"1\"", fields["count"])
	}
	if fields["lockoutCount"] != "2" {
		t.Fatalf("lockoutCount = %q, want preserved \"2\"", fields["lockoutCount"])
	}
}

func TestClearRemovesBothKeys(t *testing.T) {
	limiter, rdb, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, false, nil)
	}
	_, _ = limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)

	if err := limiter.Clear(ctx, "1.2.3.4", ActionLogin); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n := rdb.Exists(ctx, "lockout:login:1.2.3.4", "rate_limit:login:1.2.3.4").Val(); n != 0 {
		t.Fatal("Clear should delete counter and lockout")
	}
}

func TestIsLocked(t *testing.T) {
	limiter, _, now := newTestLimiter(t)
	ctx := context.Background()

	locked, err := limiter.IsLocked(ctx, "1.2.3.4", ActionLogin)
	if err != nil || locked {
		t.Fatalf("fresh pair: locked=%v err=%v", locked, err)
	}

	for i := 0; i < 5; i++ {
		_ = limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, false, nil)
	}
	_, _ = limiter.Check(ctx, "1.2.3.4", ActionLogin, nil)

	locked, err = limiter.IsLocked(ctx, "1.2.3.4", ActionLogin)
	if err != nil || !locked {
		t.Fatalf("after lockout: locked=%v err=%v", locked, err)
	}

	*now = now.Add(31 * time.Minute)
	locked, err = limiter.IsLocked(ctx, "1.2.3.4", ActionLogin)
	if err != nil || locked {
		t.Fatalf("after expiry: locked=%v err=%v", locked, err)
	}
}

func TestPolicyOverride(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()

	override := &Policy{MaxAttempts: 2, Window: time.Minute, Lockout: 5 * time.Minute}

	_ = limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, false, override)
	_ = limiter.RecordAttempt(ctx, "1.2.3.4", ActionLogin, false, override)

	res, err := limiter.Check(ctx, "1.2.3.4", ActionLogin, override)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Locked {
		t.Fatalf("override budget of 2 should lock after 2 failures: %+v", res)
	}
}

func TestUnknownActionFallsBackToStrictDefaults(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()

	res, err := limiter.Check(ctx, "1.2.3.4", "mystery_action", nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.AttemptsRemaining != 4 {
		t.Fatalf("unknown action AttemptsRemaining = %d, want login-shaped 4", res.AttemptsRemaining)
	}
}

func TestLockoutDurationTable(t *testing.T) {
	progressive := Policy{MaxAttempts: 5, Window: 15 * time.Minute, Lockout: 30 * time.Minute, Progressive: true}

	tests := []struct {
		lockoutCount int
		want         time.Duration
	}{
		{0, 30 * time.Minute},
		{1, 60 * time.Minute},
		{2, 120 * time.Minute},
		{3, 240 * time.Minute},
		{4, 480 * time.Minute},
		{5, 960 * time.Minute},
		{6, 24 * time.Hour},
		{10, 24 * time.Hour},
	}
	for _, tt := range tests {
		if got := lockoutDuration(progressive, tt.lockoutCount); got != tt.want {
			t.Errorf("lockoutDuration(progressive, %d) = %v, want %v", tt.lockoutCount, got, tt.want)
		}
	}

	fixed := Policy{MaxAttempts: 3, Window: time.Hour, Lockout: time.Hour}
	if got := lockoutDuration(fixed, 9); got != time.Hour {
		t.Errorf("lockoutDuration(fixed, 9) = %v, want 1h", got)
	}
}
