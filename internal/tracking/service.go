// Package tracking records location fixes and hands them to the live hub.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"logistrans/internal/cache"
	"logistrans/internal/metrics"
	"logistrans/internal/model"
	"logistrans/internal/store"
)

// Publisher receives every location after it has been stored.
type Publisher interface {
	Publish(ev model.LocationEvent)
}

// Service is the ingestion boundary shared by the HTTP and MQTT front ends.
type Service struct {
	store  store.Store
	cache  cache.LocationCache
	pub    Publisher
	logger *slog.Logger
}

func NewService(st store.Store, c cache.LocationCache, pub Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, cache: c, pub: pub, logger: logger.With("component", "tracking")}
}

// Record validates and stores a fix, refreshes the latest-location cache and
// publishes the stored value. A cache failure is logged, not returned.
func (s *Service) Record(ctx context.Context, source string, req model.UpdateLocationRequest) (model.Location, error) {
	if err := validateLocation(req); err != nil {
		metrics.LocationsRecorded.WithLabelValues(source, "invalid").Inc()
		return model.Location{}, err
	}
	loc, err := s.store.InsertLocation(ctx, req)
	if err != nil {
		metrics.LocationsRecorded.WithLabelValues(source, "error").Inc()
		return model.Location{}, fmt.Errorf("record location: %w", err)
	}
	if err := s.cache.Put(ctx, loc); err != nil {
		s.logger.Warn("cache update failed", "route_id", loc.RouteID, "err", err)
	}
	s.pub.Publish(loc.Event())
	metrics.LocationsRecorded.WithLabelValues(source, "ok").Inc()
	s.logger.Debug("location recorded", "source", source, "route_id", loc.RouteID, "driver_id", loc.DriverID)
	return loc, nil
}

// Latest returns the newest fix for a route, preferring the cache.
func (s *Service) Latest(ctx context.Context, routeID uuid.UUID) (model.Location, error) {
	loc, ok, err := s.cache.Latest(ctx, routeID)
	switch {
	case err != nil:
		s.logger.Warn("cache read failed", "route_id", routeID, "err", err)
	case ok:
		return loc, nil
	}
	loc, err = s.store.LatestLocation(ctx, routeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Location{}, err
		}
		return model.Location{}, fmt.Errorf("latest location: %w", err)
	}
	if err := s.cache.Put(ctx, loc); err != nil {
		s.logger.Warn("cache backfill failed", "route_id", routeID, "err", err)
	}
	return loc, nil
}

// History returns every fix for a route, oldest first.
func (s *Service) History(ctx context.Context, routeID uuid.UUID) ([]model.Location, error) {
	return s.store.LocationHistory(ctx, routeID)
}
