package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	finguard "github.com/ledgerline/finguard"
)

// SessionTimeout returns middleware that enforces absolute and idle session
// timeouts on every request carrying a bearer credential. Requests without
// one pass through untouched; credential validity is the authentication
// layer's job, this guard only polices session age.
func SessionTimeout(guard *finguard.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if guard == nil {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			err := guard.CheckSession(r.Context(), finguard.SessionRequest{
				Token:     token,
				ClientIP:  ClientIP(r, guard.Config().TrustProxyHeaders),
				UserAgent: r.UserAgent(),
			})
			if err != nil {
				writeRejection(w, http.StatusUnauthorized, rejectionMessage(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, finguard.ErrSessionMaxDuration):
		return "session maximum duration reached"
	case errors.Is(err, finguard.ErrSessionIdle):
		return "session expired due to inactivity"
	case errors.Is(err, finguard.ErrRateLimited):
		return "rate limit exceeded"
	case errors.Is(err, finguard.ErrAccountLocked):
		return "account locked"
	default:
		return "request rejected"
	}
}

func writeRejection(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
