// Package main demonstrates finguard in front of a small HTTP API.
//
// It starts a local server on :8080 backed by miniredis (no external Redis
// required) and an in-memory user directory stub. Tokens are HS256 JWTs
// signed with a demo secret; the /token endpoint mints one so the session
// guard has something to police.
//
// Endpoints:
//
//	POST /token      — JSON {"user_id":"..."}; mints a demo bearer token
//	POST /login      — rate-limited; JSON {"user_id":"...","ok":true|false}
//	                   simulates a credential check and feeds the lockout
//	                   tracker
//	GET  /profile    — session-guarded route (requires a live session)
//	GET  /admin/sessions/{user} — lists the user's sessions
//
// Run:
//
//	go run ./cmd/finguard-demo
//
// Then:
//
//	# mint a token and open a session
//	curl -s -X POST localhost:8080/token -d '{"user_id":"user-1"}'
//	curl -i localhost:8080/profile -H "Authorization: Bearer <TOKEN>"
//
//	# burn the login budget and watch 429s appear
//	for i in $(seq 1 7); do
//	  curl -s -o /dev/null -w '%{http_code}\n' -X POST localhost:8080/login \
//	    -d '{"user_id":"user-1","ok":false}'
//	done
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	finguard "github.com/ledgerline/finguard"
	fgjwt "github.com/ledgerline/finguard/jwt"
	"github.com/ledgerline/finguard/metrics/export/prometheus"
	"github.com/ledgerline/finguard/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var demoSecret = []byte("finguard-demo-secret")

func main() {
	// .env is optional; FINGUARD_* variables layer over the defaults.
	_ = godotenv.Load()

	// ---------- infrastructure ----------
	mr, err := miniredis.Run()
	if err != nil {
		log.Fatal(err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	// ---------- config ----------
	cfg := finguard.DefaultConfig()
	cfg, err = finguard.ApplyEnv(cfg)
	if err != nil {
		log.Fatal("config env:", err)
	}

	verifier, err := fgjwt.NewVerifier(fgjwt.Config{
		Method: fgjwt.MethodHS256,
		Secret: demoSecret,
	})
	if err != nil {
		log.Fatal("verifier init:", err)
	}

	directory := newStubDirectory()
	directory.Put("user-1", finguard.UserStatusActive)

	// ---------- build guard ----------
	guard, err := finguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifier(verifier).
		WithUserDirectory(directory).
		WithAuditSink(finguard.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		log.Fatal("guard build:", err)
	}
	defer guard.Close()

	// ---------- routes ----------
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler)
	mux.HandleFunc("POST /login", loginHandler(guard))
	mux.HandleFunc("GET /admin/sessions/{user}", sessionsHandler(guard))

	profile := middleware.SessionTimeout(guard)(http.HandlerFunc(profileHandler))
	mux.Handle("GET /profile", profile)

	exporter := prometheus.NewPrometheusExporter(guard)
	mux.Handle("GET /metrics", exporter.Handler())

	limited := middleware.RateLimit(guard, middleware.Options{
		Table: middleware.PolicyTable{
			"POST /login": {Action: "login"},
		},
		LocalBurst: middleware.NewLocalBurst(50, 100),
	})(mux)

	fmt.Println("listening on :8080")
	log.Fatal(http.ListenAndServe(":8080", limited))
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func tokenHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	claims := jwt.MapClaims{
		"sub": body.UserID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(8 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(demoSecret)
	if err != nil {
		http.Error(w, "token mint failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// loginHandler simulates a credential check. The rate-limit middleware has
// already charged this request; the handler's job is the lockout side:
// failed "logins" accumulate, successes clear.
func loginHandler(guard *finguard.Guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string `json:"user_id"`
			OK     bool   `json:"ok"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		ctx := requestContext(guard, r)
		ip := middleware.ClientIP(r, guard.Config().TrustProxyHeaders)

		info := guard.GetLockoutInfo(ctx, body.UserID)
		if info.Locked {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":        "account locked",
				"locked_until": info.LockedUntil,
			})
			return
		}

		if !body.OK {
			guard.RecordAttempt(ctx, ip, "login", false)
			info := guard.RecordFailedAttempt(ctx, body.UserID)
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":              "invalid credentials",
				"attempts_remaining": info.AttemptsRemaining,
				"locked":             info.Locked,
			})
			return
		}

		guard.RecordAttempt(ctx, ip, "login", true)
		if err := guard.ClearFailedAttempts(ctx, body.UserID); err != nil {
			log.Println("clear failed attempts:", err)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func profileHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "hello, your session is live",
	})
}

func sessionsHandler(guard *finguard.Guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.PathValue("user")
		sessions := guard.UserSessions(requestContext(guard, r), user)
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":  user,
			"sessions": sessions,
		})
	}
}

func requestContext(guard *finguard.Guard, r *http.Request) context.Context {
	ctx := finguard.WithClientIP(r.Context(), middleware.ClientIP(r, guard.Config().TrustProxyHeaders))
	return finguard.WithUserAgent(ctx, r.UserAgent())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ---------------------------------------------------------------------------
// In-memory user directory stub
// ---------------------------------------------------------------------------

type stubDirectory struct {
	mu    sync.RWMutex
	users map[string]finguard.UserStatus
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{users: make(map[string]finguard.UserStatus)}
}

func (d *stubDirectory) Put(identifier string, status finguard.UserStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[identifier] = status
}

func (d *stubDirectory) Status(_ context.Context, identifier string) (finguard.UserStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	status, ok := d.users[identifier]
	if !ok {
		return finguard.UserStatusActive, fmt.Errorf("unknown identifier %q", identifier)
	}
	return status, nil
}

func (d *stubDirectory) SetStatus(_ context.Context, identifier string, status finguard.UserStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[identifier] = status
	return nil
}
