package middleware

import (
	"net/http"
	"strconv"
	"time"

	finguard "github.com/ledgerline/finguard"
)

// RoutePolicy names the rate-limit action charged for a route, optionally
// overriding the configured policy for that action.
type RoutePolicy struct {
	Action   string
	Override *finguard.RateLimitPolicy
}

// PolicyTable maps routes to admission policies. Lookup tries
// "METHOD /path" first, then the bare path. A plain data structure passed at
// route-registration time; no reflection, no handler metadata.
type PolicyTable map[string]RoutePolicy

// Options configures the [RateLimit] middleware.
type Options struct {
	Table PolicyTable

	// Default applies to routes absent from Table. Nil means such routes
	// pass through unlimited.
	Default *RoutePolicy

	// LocalBurst, when set, smooths per-process bursts before any store
	// round-trip happens.
	LocalBurst *LocalBurst
}

// RateLimit returns middleware enforcing coarse per-IP admission in front of
// the handlers. Denials answer 429 with a Retry-After derived from the
// window reset; store outages inside the guard fail open, so this middleware
// never turns an infrastructure failure into a 4xx.
func RateLimit(guard *finguard.Guard, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := opts.lookup(r)
			if !ok || guard == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r, guard.Config().TrustProxyHeaders)

			if opts.LocalBurst != nil && !opts.LocalBurst.Allow(ip) {
				writeRateLimited(w, time.Second)
				return
			}

			res, err := guard.CheckRateLimit(r.Context(), ip, policy.Action, policy.Override)
			if err != nil {
				writeRateLimited(w, time.Until(res.ResetAt))
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.AttemptsRemaining))
			next.ServeHTTP(w, r)
		})
	}
}

func (o Options) lookup(r *http.Request) (RoutePolicy, bool) {
	if p, ok := o.Table[r.Method+" "+r.URL.Path]; ok {
		return p, true
	}
	if p, ok := o.Table[r.URL.Path]; ok {
		return p, true
	}
	if o.Default != nil {
		return *o.Default, true
	}
	return RoutePolicy{}, false
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	writeRejection(w, http.StatusTooManyRequests, "rate limit exceeded")
}
