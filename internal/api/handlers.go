package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"logistrans/internal/model"
	"logistrans/internal/store"
	"logistrans/internal/tracking"
)

// RecordLocationHandler handles POST /api/tracking/location. Only a driver
// may report, and only for themselves.
func (s *Server) RecordLocationHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	var req model.UpdateLocationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), r.URL.Path)
		return
	}
	if !p.IsDriver() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "only drivers can update location", r.URL.Path)
		return
	}
	if !strings.EqualFold(p.Subject, req.DriverID.String()) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "can only update your own location", r.URL.Path)
		return
	}

	loc, err := s.Tracking.Record(r.Context(), "http", req)
	switch {
	case errors.Is(err, tracking.ErrInvalidLocation):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), r.URL.Path)
		return
	case err != nil:
		s.Logger.Error("record location", "driver_id", req.DriverID, "err", err)
		writeProblem(w, http.StatusInternalServerError, "Record location failed", "database error", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

// LatestLocationHandler handles GET /api/tracking/{route_id}.
func (s *Server) LatestLocationHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePrincipal(w, r); !ok {
		return
	}
	routeID, ok := routeParam(w, r)
	if !ok {
		return
	}
	loc, err := s.Tracking.Latest(r.Context(), routeID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "location not found for this route", r.URL.Path)
	case err != nil:
		s.Logger.Error("latest location", "route_id", routeID, "err", err)
		writeProblem(w, http.StatusInternalServerError, "Lookup failed", "database error", r.URL.Path)
	default:
		writeJSON(w, http.StatusOK, loc)
	}
}

// LocationHistoryHandler handles GET /api/tracking/{route_id}/history.
func (s *Server) LocationHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requirePrincipal(w, r); !ok {
		return
	}
	routeID, ok := routeParam(w, r)
	if !ok {
		return
	}
	locs, err := s.Tracking.History(r.Context(), routeID)
	if err != nil {
		s.Logger.Error("location history", "route_id", routeID, "err", err)
		writeProblem(w, http.StatusInternalServerError, "Lookup failed", "database error", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, locs)
}

func routeParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("route_id"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "route_id must be a UUID", r.URL.Path)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

// ReadyHandler checks the store and the cache.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", "store: "+err.Error(), r.URL.Path)
		return
	}
	if err := s.Cache.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", "cache: "+err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
