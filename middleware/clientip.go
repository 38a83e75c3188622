package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address: first entry of X-Forwarded-For,
// then X-Real-IP, then the transport peer address, then "unknown".
//
// The header lookups only run when trustProxy is set. Forwarding headers are
// client-controlled unless a trusted reverse proxy strips and re-sets them,
// so deployments without such a proxy must leave trustProxy false.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
			return real
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
