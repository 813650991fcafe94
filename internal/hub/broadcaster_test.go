package hub

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logistrans/internal/model"
)

func newTestHub(queueSize int) (*Registry, *Broadcaster) {
	r := newTestRegistry(queueSize)
	return r, NewBroadcaster(r, slog.New(slog.DiscardHandler))
}

func subscribe(r *Registry, dim Dimension, key uuid.UUID) *Session {
	s := r.Register(Identity{})
	r.SetSubscription(s.ID(), dim, some(key))
	return s
}

// received drains everything currently queued for s.
func received(t *testing.T, s *Session) []model.LocationEvent {
	t.Helper()
	var out []model.LocationEvent
	for {
		select {
		case msg := <-s.outbound:
			ev, err := DecodeLocationUpdate(msg)
			require.NoError(t, err)
			out = append(out, ev)
		default:
			return out
		}
	}
}

func event(route, vehicle, driver uuid.UUID) model.LocationEvent {
	return model.LocationEvent{
		RouteID:   route,
		VehicleID: vehicle,
		DriverID:  driver,
		Latitude:  40.7128,
		Longitude: -74.006,
		Speed:     12.5,
		Heading:   270,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishFansOutAcrossDimensions(t *testing.T) {
	r, b := newTestHub(8)
	r1, r2, v9 := uuid.New(), uuid.New(), uuid.New()

	a := subscribe(r, DimRoute, r1)
	bv := subscribe(r, DimVehicle, v9)
	c := subscribe(r, DimRoute, r2)

	ev := event(r1, v9, uuid.New())
	b.Publish(ev)

	gotA := received(t, a)
	require.Len(t, gotA, 1)
	assert.Equal(t, r1, gotA[0].RouteID)
	assert.Equal(t, v9, gotA[0].VehicleID)
	assert.True(t, ev.Timestamp.Equal(gotA[0].Timestamp))

	gotB := received(t, bv)
	require.Len(t, gotB, 1)
	assert.Equal(t, r1, gotB[0].RouteID)

	assert.Empty(t, received(t, c))
}

func TestPublishResubscribeMovesRoute(t *testing.T) {
	r, b := newTestHub(8)
	r1, r2 := uuid.New(), uuid.New()

	d := subscribe(r, DimRoute, r1)
	r.SetSubscription(d.ID(), DimRoute, some(r2))

	b.Publish(event(r1, uuid.Nil, uuid.Nil))
	assert.Empty(t, received(t, d))

	b.Publish(event(r2, uuid.Nil, uuid.Nil))
	assert.Len(t, received(t, d), 1)
}

func TestPublishOncePerSessionOnMultiMatch(t *testing.T) {
	r, b := newTestHub(8)
	route, vehicle, driver := uuid.New(), uuid.New(), uuid.New()

	s := subscribe(r, DimRoute, route)
	r.SetSubscription(s.ID(), DimVehicle, some(vehicle))
	r.SetSubscription(s.ID(), DimDriver, some(driver))

	b.Publish(event(route, vehicle, driver))
	assert.Len(t, received(t, s), 1)

	b.Publish(event(route, vehicle, uuid.Nil))
	assert.Len(t, received(t, s), 1)
}

func TestPublishSharesEncodedMessage(t *testing.T) {
	r, b := newTestHub(8)
	route := uuid.New()
	s1 := subscribe(r, DimRoute, route)
	s2 := subscribe(r, DimRoute, route)

	b.Publish(event(route, uuid.Nil, uuid.Nil))

	m1, m2 := <-s1.outbound, <-s2.outbound
	require.NotEmpty(t, m1)
	assert.Same(t, &m1[0], &m2[0])
}

func TestPublishSkipsUnregistered(t *testing.T) {
	r, b := newTestHub(8)
	route := uuid.New()
	s := subscribe(r, DimRoute, route)

	r.Unregister(s.ID())
	b.Publish(event(route, uuid.Nil, uuid.Nil))

	assert.Empty(t, received(t, s))
	assert.Empty(t, r.SnapshotMatches(event(route, uuid.Nil, uuid.Nil)))
}

func TestPublishEvictsSlowConsumer(t *testing.T) {
	r, b := newTestHub(2)
	route := uuid.New()
	slow := subscribe(r, DimRoute, route)
	fast := subscribe(r, DimRoute, route)

	b.Publish(event(route, uuid.Nil, uuid.Nil))
	b.Publish(event(route, uuid.Nil, uuid.Nil))
	assert.Len(t, received(t, fast), 2)
	assert.Equal(t, StateOpen, slow.State())

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Publish(event(route, uuid.Nil, uuid.Nil))
		b.Publish(event(route, uuid.Nil, uuid.Nil))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	assert.Equal(t, StateClosing, slow.State())
	assert.Equal(t, ReasonSlowConsumer, slow.CloseReason())
	// the two queued before the overflow are kept for the final drain
	assert.Equal(t, 2, slow.Queued())
	assert.Len(t, received(t, fast), 2)
	assert.Equal(t, StateOpen, fast.State())
}

func TestPublishSkipsClosingSession(t *testing.T) {
	r, b := newTestHub(8)
	route := uuid.New()
	s := subscribe(r, DimRoute, route)

	s.Close(ReasonShutdown)
	b.Publish(event(route, uuid.Nil, uuid.Nil))

	assert.Equal(t, 0, s.Queued())
}

func TestPublishWithoutSubscribers(t *testing.T) {
	r, b := newTestHub(8)
	s := r.Register(Identity{})

	b.Publish(event(uuid.New(), uuid.New(), uuid.New()))
	assert.Equal(t, 0, s.Queued())
}
