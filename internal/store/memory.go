package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"logistrans/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu      sync.Mutex
	byRoute map[uuid.UUID][]model.Location // route -> fixes in insert order
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byRoute: map[uuid.UUID][]model.Location{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) InsertLocation(_ context.Context, in model.UpdateLocationRequest) (model.Location, error) {
	loc := model.Location{
		ID:        uuid.New(),
		RouteID:   in.RouteID,
		VehicleID: in.VehicleID,
		DriverID:  in.DriverID,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Speed:     in.Speed,
		Heading:   in.Heading,
		Timestamp: m.now(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRoute[in.RouteID] = append(m.byRoute[in.RouteID], loc)
	return loc, nil
}

func (m *Memory) LatestLocation(_ context.Context, routeID uuid.UUID) (model.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	locs := m.byRoute[routeID]
	if len(locs) == 0 {
		return model.Location{}, ErrNotFound
	}
	latest := locs[0]
	for _, l := range locs[1:] {
		if !l.Timestamp.Before(latest.Timestamp) {
			latest = l
		}
	}
	return latest, nil
}

func (m *Memory) LocationHistory(_ context.Context, routeID uuid.UUID) ([]model.Location, error) {
	m.mu.Lock()
	out := append([]model.Location{}, m.byRoute[routeID]...)
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }
