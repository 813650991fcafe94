package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"logistrans/internal/model"
)

// Store is the persistence interface used by the tracking service.
type Store interface {
	// InsertLocation persists a location fix. The store assigns the id and
	// the timestamp.
	InsertLocation(ctx context.Context, in model.UpdateLocationRequest) (model.Location, error)
	// LatestLocation returns the most recent fix for a route, or ErrNotFound.
	LatestLocation(ctx context.Context, routeID uuid.UUID) (model.Location, error)
	// LocationHistory returns every fix for a route, oldest first.
	LocationHistory(ctx context.Context, routeID uuid.UUID) ([]model.Location, error)

	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("not found")
