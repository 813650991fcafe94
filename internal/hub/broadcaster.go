package hub

import (
	"log/slog"

	"logistrans/internal/metrics"
	"logistrans/internal/model"
)

// Broadcaster delivers location events to the sessions whose subscription
// matches them.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

func NewBroadcaster(r *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{registry: r, logger: logger.With("component", "broadcaster")}
}

// Publish fans ev out without blocking. The event is encoded once and the
// same bytes are queued for every match. A session whose queue is full is
// moved to Closing and receives nothing further.
func (b *Broadcaster) Publish(ev model.LocationEvent) {
	sessions := b.registry.SnapshotMatches(ev)
	if len(sessions) == 0 {
		metrics.HubEventsPublished.WithLabelValues("false").Inc()
		return
	}
	metrics.HubEventsPublished.WithLabelValues("true").Inc()

	msg, err := EncodeLocationUpdate(ev)
	if err != nil {
		b.logger.Error("encode location update", "route_id", ev.RouteID, "err", err)
		return
	}

	for _, s := range sessions {
		switch s.enqueue(msg) {
		case enqueued:
			metrics.HubMessagesEnqueued.Inc()
		case queueFull:
			if s.beginClose(ReasonSlowConsumer) {
				metrics.HubEvictions.Inc()
				b.logger.Warn("evicting slow consumer", "session", s.id, "subject", s.identity.Subject, "queued", len(s.outbound))
			}
		}
	}
}
