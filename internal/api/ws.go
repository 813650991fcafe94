package api

import (
	"net/http"

	"logistrans/internal/auth"
	"logistrans/internal/hub"
)

// WSHandler handles GET /ws. A token is optional unless hub.require_auth is
// set; a token that is present must be valid.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	var p auth.Principal
	if tok := bearerToken(r, true); tok != "" {
		var err error
		if p, err = s.Auth.Verify(tok); err != nil {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
			return
		}
	} else if s.Config.Hub.RequireAuth {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", errNoToken.Error(), r.URL.Path)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		s.Logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	identity := hub.Identity{Subject: p.Subject, Username: p.Username, Role: p.Role}
	s.Registry.Serve(s.sessionCtx, conn, identity, hub.OptionsFrom(s.Config.Hub))
}
