package tracking

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"logistrans/internal/model"
)

// ErrInvalidLocation wraps every validation failure of an incoming fix.
var ErrInvalidLocation = errors.New("invalid location")

func validateLocation(req model.UpdateLocationRequest) error {
	if req.RouteID == uuid.Nil {
		return fmt.Errorf("%w: route_id is required", ErrInvalidLocation)
	}
	if req.VehicleID == uuid.Nil {
		return fmt.Errorf("%w: vehicle_id is required", ErrInvalidLocation)
	}
	if req.DriverID == uuid.Nil {
		return fmt.Errorf("%w: driver_id is required", ErrInvalidLocation)
	}
	if req.Latitude < -90 || req.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v must be in [-90,90]", ErrInvalidLocation, req.Latitude)
	}
	if req.Longitude < -180 || req.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v must be in [-180,180]", ErrInvalidLocation, req.Longitude)
	}
	return nil
}
