package api

import (
	"net/http"
	"time"

	"logistrans/internal/buildinfo"
)

// DebugJSON reports build info and live hub counters. Admin callers also get
// the non-secret parts of the running configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"hub":   s.Registry.Stats(),
	}
	if p, err := s.getPrincipal(r); err == nil && p.IsAdmin() {
		cfg := s.Config
		out["config"] = map[string]any{
			"addr":             cfg.Addr(),
			"auth_mode":        cfg.Auth.Mode,
			"allowed_origins":  cfg.Server.AllowedOrigins,
			"rate_rps":         cfg.Ingest.RateRPS,
			"rate_burst":       cfg.Ingest.RateBurst,
			"ws_queue_size":    cfg.Hub.QueueSize,
			"ws_require_auth":  cfg.Hub.RequireAuth,
			"has_database_url": cfg.Database.URL != "",
			"has_redis_url":    cfg.Redis.URL != "",
			"has_mqtt_url":     cfg.MQTT.BrokerURL != "",
		}
	}
	writeJSON(w, http.StatusOK, out)
}
