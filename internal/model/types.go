package model

import (
	"time"

	"github.com/google/uuid"
)

// Location is a persisted GPS fix reported by a driver for a route.
type Location struct {
	ID        uuid.UUID `json:"id"`
	RouteID   uuid.UUID `json:"route_id"`
	VehicleID uuid.UUID `json:"vehicle_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

// UpdateLocationRequest is the body accepted by the tracking ingestion endpoints.
type UpdateLocationRequest struct {
	RouteID   uuid.UUID `json:"route_id"`
	VehicleID uuid.UUID `json:"vehicle_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
}

// LocationEvent is the immutable value fanned out to live subscribers.
// A uuid.Nil identifier means the event carries no value for that dimension.
type LocationEvent struct {
	RouteID   uuid.UUID `json:"route_id"`
	VehicleID uuid.UUID `json:"vehicle_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

// Event converts a stored location into the event published to subscribers.
func (l Location) Event() LocationEvent {
	return LocationEvent{
		RouteID:   l.RouteID,
		VehicleID: l.VehicleID,
		DriverID:  l.DriverID,
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Speed:     l.Speed,
		Heading:   l.Heading,
		Timestamp: l.Timestamp,
	}
}
