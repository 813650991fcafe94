package api

import (
	"errors"
	"net/http"
	"strings"

	"logistrans/internal/auth"
)

var errNoToken = errors.New("missing bearer token")

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter that browsers must use for WebSocket upgrades.
func bearerToken(r *http.Request, allowQuery bool) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}

// getPrincipal verifies the request's bearer token.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, error) {
	tok := bearerToken(r, false)
	if tok == "" {
		return auth.Principal{}, errNoToken
	}
	return s.Auth.Verify(tok)
}

// requirePrincipal writes a 401 and returns false when the request is not
// authenticated.
func (s *Server) requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := s.getPrincipal(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="logistrans"`)
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return auth.Principal{}, false
	}
	return p, true
}
