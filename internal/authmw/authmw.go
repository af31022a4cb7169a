// Package authmw provides HTTP middleware for bearer token authentication.
// The submission API supports per-agent tokens so one agent cannot submit
// findings under another agent's identity.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// BearerToken returns middleware that validates the Authorization header
// contains a Bearer token matching the expected value. Comparison uses
// constant-time equality to prevent timing side-channel attacks.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearerFromRequest(r)
			if !ok {
				http.Error(w, `{"error":"missing or malformed authorization header"}`, http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare(got, expected) != 1 {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AgentToken returns middleware that validates the Bearer token against the
// token registered for the agent named in the route's {agentID} parameter.
// An agent without a registered token is rejected outright.
//
// Must be attached inline on a route carrying {agentID} (chi's With), not
// with Use on a router: router-level middleware runs before routing, when
// URL params are not yet populated.
func AgentToken(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearerFromRequest(r)
			if !ok {
				http.Error(w, `{"error":"missing or malformed authorization header"}`, http.StatusUnauthorized)
				return
			}

			agentID := chi.URLParam(r, "agentID")
			expected, registered := tokens[agentID]
			if !registered {
				http.Error(w, `{"error":"unknown agent"}`, http.StatusForbidden)
				return
			}

			if subtle.ConstantTimeCompare(got, []byte(expected)) != 1 {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerFromRequest(r *http.Request) ([]byte, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, false
	}
	return []byte(auth[len("Bearer "):]), true
}
