package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// HubSessions is the number of live sessions in the registry
	HubSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "hub_sessions", Help: "Live WebSocket sessions."},
	)
	// HubEventsPublished counts Publish calls, labelled by whether any session matched
	HubEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hub_events_published_total", Help: "Location events published to the hub."},
		[]string{"matched"},
	)
	// HubMessagesEnqueued counts messages placed on session outbound queues
	HubMessagesEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "hub_messages_enqueued_total", Help: "Messages enqueued for delivery to sessions."},
	)
	// HubEvictions counts sessions closed because their outbound queue was full
	HubEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "hub_evictions_total", Help: "Sessions evicted as slow consumers."},
	)
	// HubControlMessages counts inbound control messages by type and outcome
	HubControlMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hub_control_messages_total", Help: "Inbound control messages by type and outcome."},
		[]string{"type", "outcome"},
	)

	// LocationsRecorded counts persisted location updates by ingestion source
	LocationsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tracking_locations_recorded_total", Help: "Location updates recorded by source and status."},
		[]string{"source", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(HubSessions)
		Registry.MustRegister(HubEventsPublished)
		Registry.MustRegister(HubMessagesEnqueued)
		Registry.MustRegister(HubEvictions)
		Registry.MustRegister(HubControlMessages)
		Registry.MustRegister(LocationsRecorded)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

var regOnce sync.Once
