// Static-credential authentication: one full-access admin token and a set
// of per-session tokens. Session credentials scope event reads and writes
// to their own events; destructive operations require the admin token.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/meshline/syncd/pkg/types"
)

// identity is the authenticated caller. An admin identity has an empty
// owner, which the storage layer treats as "no filtering".
type identity struct {
	owner string
	admin bool
}

type contextKey int

const identityKey contextKey = 0

// callerFrom returns the identity stored by authMiddleware.
func callerFrom(ctx context.Context) identity {
	id, _ := ctx.Value(identityKey).(identity)
	return id
}

// authMiddleware resolves the bearer token against the configured
// credentials and rejects unknown callers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, http.StatusUnauthorized, types.ErrAuth)
			return
		}

		var id identity
		switch {
		case token == s.config.AdminToken:
			id = identity{admin: true}
		case s.isSessionToken(token):
			id = identity{owner: token}
		default:
			s.writeError(w, http.StatusUnauthorized, types.ErrAuth)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func (s *Server) isSessionToken(token string) bool {
	for _, t := range s.config.SessionTokens {
		if t == token {
			return true
		}
	}
	return false
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}
