package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	finguard "github.com/ledgerline/finguard"
	"github.com/ledgerline/finguard/internal/session"
)

type stubVerifier struct {
	userID string
	err    error
}

func (v stubVerifier) Verify(context.Context, string) (string, error) {
	return v.userID, v.err
}

func newTestGuard(t *testing.T, mutate func(*finguard.Config)) (*finguard.Guard, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := finguard.DefaultConfig()
	cfg.Audit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	guard, err := finguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifier(stubVerifier{userID: "user-1"}).
		Build()
	if err != nil {
		t.Fatalf("guard build: %v", err)
	}
	t.Cleanup(func() { _ = guard.Close() })

	return guard, mr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		xff        string
		realIP     string
		want       string
	}{
		{"peer address", false, "10.0.0.1:4567", "", "", "10.0.0.1"},
		{"peer address no port", false, "10.0.0.1", "", "", "10.0.0.1"},
		{"headers ignored untrusted", false, "10.0.0.1:4567", "1.2.3.4", "5.6.7.8", "10.0.0.1"},
		{"xff first entry", true, "10.0.0.1:4567", "1.2.3.4, 9.9.9.9", "", "1.2.3.4"},
		{"xff whitespace", true, "10.0.0.1:4567", "  1.2.3.4  ,9.9.9.9", "", "1.2.3.4"},
		{"real ip fallback", true, "10.0.0.1:4567", "", "5.6.7.8", "5.6.7.8"},
		{"xff beats real ip", true, "10.0.0.1:4567", "1.2.3.4", "5.6.7.8", "1.2.3.4"},
		{"nothing known", false, "", "", "", "unknown"},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remoteAddr
		if tt.xff != "" {
			r.Header.Set("X-Forwarded-For", tt.xff)
		}
		if tt.realIP != "" {
			r.Header.Set("X-Real-IP", tt.realIP)
		}
		if got := ClientIP(r, tt.trustProxy); got != tt.want {
			t.Errorf("%s: ClientIP = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer ", "", false},
		{"", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"bearer abc", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSessionTimeoutPassesThroughWithoutCredential(t *testing.T) {
	guard, _ := newTestGuard(t, nil)
	handler := SessionTimeout(guard)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestSessionTimeoutAllowsLiveSession(t *testing.T) {
	guard, _ := newTestGuard(t, nil)
	handler := SessionTimeout(guard)(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer some-live-token")

	// First request creates the session, second refreshes it.
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("request #%d status = %d, want 200", i, w.Code)
		}
	}
}

func TestSessionTimeoutRejectsIdleSession(t *testing.T) {
	guard, mr := newTestGuard(t, nil)
	handler := SessionTimeout(guard)(okHandler())

	token := "some-stale-token"
	now := time.Now()
	encoded, err := session.Encode(session.Record{
		UserID:       "user-1",
		CreatedAt:    now.Add(-2 * time.Hour).UnixMilli(),
		LastActivity: now.Add(-time.Hour).UnixMilli(),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := mr.Set(session.Key("user-1", session.TokenDigest(token)), encoded); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "session expired due to inactivity" {
		t.Fatalf("error message = %q", body["error"])
	}
}

func TestSessionTimeoutRejectsExpiredAbsolute(t *testing.T) {
	guard, mr := newTestGuard(t, nil)
	handler := SessionTimeout(guard)(okHandler())

	token := "some-ancient-token"
	now := time.Now()
	encoded, _ := session.Encode(session.Record{
		UserID:       "user-1",
		CreatedAt:    now.Add(-9 * time.Hour).UnixMilli(),
		LastActivity: now.UnixMilli(),
	})
	_ = mr.Set(session.Key("user-1", session.TokenDigest(token)), encoded)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRateLimitUnmappedRoutePassesThrough(t *testing.T) {
	guard, _ := newTestGuard(t, nil)

	handler := RateLimit(guard, Options{
		Table: PolicyTable{"POST /login": {Action: "login"}},
	})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-RateLimit-Remaining") != "" {
		t.Fatal("unmapped route should not carry rate-limit headers")
	}
}

func TestRateLimitAllowedSetsRemainingHeader(t *testing.T) {
	guard, _ := newTestGuard(t, nil)

	handler := RateLimit(guard, Options{
		Table: PolicyTable{"POST /login": {Action: "login"}},
	})(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "5.6.7.8:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Fatalf("X-RateLimit-Remaining = %q, want \"4\"", got)
	}
}

func TestRateLimitDeniesExhaustedBudget(t *testing.T) {
	guard, mr := newTestGuard(t, nil)

	// Exhausted window for this client IP.
	mr.HSet("rate_limit:login:5.6.7.8", "count", "5")
	mr.HSet("rate_limit:login:5.6.7.8", "windowStart", formatNowMilli())

	handler := RateLimit(guard, Options{
		Table: PolicyTable{"POST /login": {Action: "login"}},
	})(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "5.6.7.8:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("429 must carry Retry-After")
	}
}

func TestRateLimitDefaultPolicyApplies(t *testing.T) {
	guard, _ := newTestGuard(t, nil)

	handler := RateLimit(guard, Options{
		Default: &RoutePolicy{Action: "login"},
	})(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/anything", nil)
	r.RemoteAddr = "5.6.7.8:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-RateLimit-Remaining") == "" {
		t.Fatal("default policy should charge the route")
	}
}

func TestRateLimitLocalBurstShavesHotLoop(t *testing.T) {
	guard, _ := newTestGuard(t, nil)

	handler := RateLimit(guard, Options{
		Table:      PolicyTable{"GET /data": {Action: "login"}},
		LocalBurst: NewLocalBurst(1, 2),
	})(okHandler())

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/data", nil)
		r.RemoteAddr = "5.6.7.8:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		statuses = append(statuses, w.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("burst allowance should admit first two: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third hot-loop request should be shaved locally: %v", statuses)
	}
}

func TestLocalBurstKeysAreIndependent(t *testing.T) {
	burst := NewLocalBurst(1, 1)

	if !burst.Allow("a") {
		t.Fatal("first request for key a should pass")
	}
	if burst.Allow("a") {
		t.Fatal("second immediate request for key a should be shaved")
	}
	if !burst.Allow("b") {
		t.Fatal("key b must not be affected by key a's bucket")
	}
}

func formatNowMilli() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
