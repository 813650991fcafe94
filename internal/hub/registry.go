// Package hub keeps the set of live WebSocket sessions, indexes their
// route, vehicle and driver subscriptions, and fans location events out to
// the sessions that match.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"logistrans/internal/metrics"
	"logistrans/internal/model"
)

// Registry owns the live sessions and the subscription index. A single mutex
// guards both so that a lookup never sees one half of a subscription change.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*Session
	index     *Index
	queueSize int
	logger    *slog.Logger
}

// NewRegistry returns an empty registry whose sessions buffer up to
// queueSize outbound messages.
func NewRegistry(logger *slog.Logger, queueSize int) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Registry{
		sessions:  make(map[uuid.UUID]*Session),
		index:     NewIndex(),
		queueSize: queueSize,
		logger:    logger.With("component", "hub"),
	}
}

// Register adds a new Open session with an empty subscription.
func (r *Registry) Register(identity Identity) *Session {
	s := newSession(r, identity, r.queueSize)
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	metrics.HubSessions.Inc()
	r.logger.Debug("session registered", "session", s.id, "subject", identity.Subject)
	return s
}

// Unregister removes the session and all of its index entries. Unknown ids
// are ignored.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	for dim, v := range s.sub {
		if v.Valid {
			r.index.Remove(Dimension(dim), v.UUID, id)
		}
	}
	s.sub = Subscription{}
	delete(r.sessions, id)
	r.mu.Unlock()

	metrics.HubSessions.Dec()
	r.logger.Debug("session unregistered",
		"session", id,
		"subject", s.Identity().Subject,
		"reason", s.CloseReason().Text,
		"age", time.Since(s.CreatedAt()).Round(time.Millisecond))
}

// ErrUnknownSession classifies a subscription update for a session id that is
// not registered, typically one that has already been unregistered.
// SetSubscription logs it rather than returning it.
var ErrUnknownSession = errors.New("unknown session")

// SetSubscription replaces the session's key on dim, leaving the other
// dimensions alone. An invalid value clears the dimension. A late call for a
// session that is already gone is logged and dropped.
func (r *Registry) SetSubscription(id uuid.UUID, dim Dimension, value uuid.NullUUID) {
	if err := r.setSubscription(id, dim, value); err != nil {
		r.logger.Debug("subscription ignored", "session", id, "dimension", dim.String(), "err", err)
	}
}

func (r *Registry) setSubscription(id uuid.UUID, dim Dimension, value uuid.NullUUID) error {
	if !dim.valid() {
		return fmt.Errorf("dimension %d out of range", int(dim))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("set %s subscription for %s: %w", dim, id, ErrUnknownSession)
	}
	if prev := s.sub[dim]; prev.Valid {
		r.index.Remove(dim, prev.UUID, id)
	}
	s.sub[dim] = value
	if value.Valid {
		r.index.Add(dim, value.UUID, id)
	}
	return nil
}

// SnapshotMatches returns every session subscribed to one of the event's
// non-nil keys. A session matching on several dimensions appears once.
func (r *Registry) SnapshotMatches(ev model.LocationEvent) []*Session {
	keys := [numDimensions]uuid.UUID{
		DimRoute:   ev.RouteID,
		DimVehicle: ev.VehicleID,
		DimDriver:  ev.DriverID,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		out  []*Session
		seen = make(map[uuid.UUID]struct{})
	)
	for dim, key := range keys {
		if key == uuid.Nil {
			continue
		}
		r.index.each(Dimension(dim), key, func(id uuid.UUID) {
			if _, dup := seen[id]; dup {
				return
			}
			seen[id] = struct{}{}
			if s, ok := r.sessions[id]; ok {
				out = append(out, s)
			}
		})
	}
	return out
}

// Subscription returns a copy of the session's current filter.
func (r *Registry) Subscription(id uuid.UUID) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Subscription{}, false
	}
	return s.sub, true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats summarizes the registry for diagnostics.
type Stats struct {
	Sessions int `json:"sessions"`
	Routes   int `json:"routes"`
	Vehicles int `json:"vehicles"`
	Drivers  int `json:"drivers"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Sessions: len(r.sessions),
		Routes:   r.index.Keys(DimRoute),
		Vehicles: r.index.Keys(DimVehicle),
		Drivers:  r.index.Keys(DimDriver),
	}
}

// CloseAll moves every Open session to Closing. Sessions leave the registry
// as their connections finish.
func (r *Registry) CloseAll(reason CloseReason) {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	for _, s := range all {
		s.beginClose(reason)
	}
	r.logger.Info("closing sessions", "count", len(all), "reason", reason.Text)
}

// Drain waits until every session has left the registry or ctx is done.
func (r *Registry) Drain(ctx context.Context) error {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for r.Len() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d sessions still open: %w", r.Len(), ctx.Err())
		case <-t.C:
		}
	}
	return nil
}
