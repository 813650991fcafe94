package tracking

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logistrans/internal/cache"
	"logistrans/internal/model"
	"logistrans/internal/store"
)

type recorder struct{ events []model.LocationEvent }

func (r *recorder) Publish(ev model.LocationEvent) { r.events = append(r.events, ev) }

type failingStore struct{ store.Store }

func (failingStore) InsertLocation(context.Context, model.UpdateLocationRequest) (model.Location, error) {
	return model.Location{}, errors.New("db down")
}

func newService(st store.Store) (*Service, *recorder, *cache.Memory) {
	rec := &recorder{}
	c := cache.NewMemory()
	return NewService(st, c, rec, slog.New(slog.DiscardHandler)), rec, c
}

func validRequest() model.UpdateLocationRequest {
	return model.UpdateLocationRequest{
		RouteID:   uuid.New(),
		VehicleID: uuid.New(),
		DriverID:  uuid.New(),
		Latitude:  40.7128,
		Longitude: -74.006,
		Speed:     30,
		Heading:   90,
	}
}

func TestRecordPersistsCachesAndPublishes(t *testing.T) {
	ctx := context.Background()
	svc, rec, c := newService(store.NewMemory())
	req := validRequest()

	loc, err := svc.Record(ctx, "http", req)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, loc.ID)
	assert.False(t, loc.Timestamp.IsZero())

	require.Len(t, rec.events, 1)
	assert.Equal(t, loc.Event(), rec.events[0])

	cached, ok, err := c.Latest(ctx, req.RouteID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, loc.ID, cached.ID)
}

func TestRecordRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.UpdateLocationRequest)
	}{
		{"LatitudeHigh", func(r *model.UpdateLocationRequest) { r.Latitude = 90.5 }},
		{"LatitudeLow", func(r *model.UpdateLocationRequest) { r.Latitude = -91 }},
		{"LongitudeHigh", func(r *model.UpdateLocationRequest) { r.Longitude = 180.01 }},
		{"NoRoute", func(r *model.UpdateLocationRequest) { r.RouteID = uuid.Nil }},
		{"NoVehicle", func(r *model.UpdateLocationRequest) { r.VehicleID = uuid.Nil }},
		{"NoDriver", func(r *model.UpdateLocationRequest) { r.DriverID = uuid.Nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, rec, _ := newService(store.NewMemory())
			req := validRequest()
			tt.mutate(&req)
			_, err := svc.Record(context.Background(), "http", req)
			require.ErrorIs(t, err, ErrInvalidLocation)
			assert.Empty(t, rec.events)
		})
	}
}

func TestRecordBoundaryCoordinatesAccepted(t *testing.T) {
	svc, _, _ := newService(store.NewMemory())
	req := validRequest()
	req.Latitude, req.Longitude = -90, 180
	_, err := svc.Record(context.Background(), "mqtt", req)
	require.NoError(t, err)
}

func TestRecordDoesNotPublishOnStoreFailure(t *testing.T) {
	svc, rec, _ := newService(failingStore{store.NewMemory()})
	_, err := svc.Record(context.Background(), "http", validRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidLocation)
	assert.Empty(t, rec.events)
}

func TestLatestFallsBackToStoreAndBackfills(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc, _, c := newService(st)

	_, err := svc.Latest(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)

	req := validRequest()
	stored, err := st.InsertLocation(ctx, req)
	require.NoError(t, err)

	got, err := svc.Latest(ctx, req.RouteID)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)

	_, ok, _ := c.Latest(ctx, req.RouteID)
	assert.True(t, ok, "store hit was not written back to the cache")
}

func TestHistoryOldestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(store.NewMemory())
	req := validRequest()
	for i := 0; i < 3; i++ {
		req.Latitude = float64(i)
		_, err := svc.Record(ctx, "http", req)
		require.NoError(t, err)
	}
	hist, err := svc.History(ctx, req.RouteID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	for i := 1; i < len(hist); i++ {
		assert.False(t, hist[i].Timestamp.Before(hist[i-1].Timestamp))
	}
}
