// Package api implements the HTTP and WebSocket surface of the tracking service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"logistrans/internal/auth"
	"logistrans/internal/cache"
	"logistrans/internal/config"
	"logistrans/internal/hub"
	"logistrans/internal/metrics"
	"logistrans/internal/store"
	"logistrans/internal/tracking"
)

// Deps are the collaborators built by the composition root.
type Deps struct {
	Store    store.Store
	Cache    cache.LocationCache
	Auth     *auth.Verifier
	Registry *hub.Registry
	Tracking *tracking.Service
	Logger   *slog.Logger
}

type Server struct {
	Config   *config.Config
	Store    store.Store
	Cache    cache.LocationCache
	Auth     *auth.Verifier
	Registry *hub.Registry
	Tracking *tracking.Service
	Logger   *slog.Logger

	// sessionCtx is cancelled on shutdown and bounds every WebSocket session.
	sessionCtx context.Context
	upgrader   websocket.Upgrader
	ingest     *rate.Limiter
}

// NewServer wires the handlers. ctx is the lifetime of live sessions.
func NewServer(ctx context.Context, cfg *config.Config, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Config:     cfg,
		Store:      d.Store,
		Cache:      d.Cache,
		Auth:       d.Auth,
		Registry:   d.Registry,
		Tracking:   d.Tracking,
		Logger:     logger,
		sessionCtx: ctx,
		ingest:     rate.NewLimiter(rate.Limit(cfg.Ingest.RateRPS), cfg.Ingest.RateBurst),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Routes returns the full handler tree, wrapped in access logging.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Tracking
	mux.Handle("POST /api/tracking/location", s.rateLimit(http.HandlerFunc(s.RecordLocationHandler)))
	mux.HandleFunc("GET /api/tracking/{route_id}", s.LatestLocationHandler)
	mux.HandleFunc("GET /api/tracking/{route_id}/history", s.LocationHistoryHandler)

	// Live updates
	mux.HandleFunc("GET /ws", s.WSHandler)

	// Health & ops
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.HandleFunc("GET /debug/info", s.DebugJSON)
	mux.Handle("GET /metrics", metrics.Handler())

	return s.logMiddleware(mux)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.Config.Server.AllowedOrigins
	origin := r.Header.Get("Origin")
	if len(allowed) == 0 || origin == "" {
		return true
	}
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}
