package hub

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"logistrans/internal/model"
)

// Wire message types.
const (
	TypeSubscribeRoute   = "subscribe_route"
	TypeSubscribeVehicle = "subscribe_vehicle"
	TypeSubscribeDriver  = "subscribe_driver"
	TypeLocationUpdate   = "location_update"
)

// ErrMalformedControl wraps every decode failure of an inbound message.
var ErrMalformedControl = errors.New("malformed control message")

type ControlKind int

const (
	ControlUnrecognized ControlKind = iota
	ControlSubscribeRoute
	ControlSubscribeVehicle
	ControlSubscribeDriver
)

// ControlMessage is an inbound message after decoding. Type holds the raw
// message_type, also for unrecognized messages.
type ControlMessage struct {
	Kind ControlKind
	Type string
	ID   uuid.UUID
}

// Dimension returns the subscription dimension the message sets.
func (m ControlMessage) Dimension() (Dimension, bool) {
	switch m.Kind {
	case ControlSubscribeRoute:
		return DimRoute, true
	case ControlSubscribeVehicle:
		return DimVehicle, true
	case ControlSubscribeDriver:
		return DimDriver, true
	default:
		return 0, false
	}
}

type envelope struct {
	MessageType string          `json:"message_type"`
	Data        json.RawMessage `json:"data,omitempty"`
}

var controlTypes = map[string]struct {
	kind  ControlKind
	field string
}{
	TypeSubscribeRoute:   {ControlSubscribeRoute, "route_id"},
	TypeSubscribeVehicle: {ControlSubscribeVehicle, "vehicle_id"},
	TypeSubscribeDriver:  {ControlSubscribeDriver, "driver_id"},
}

// DecodeControl parses one inbound text frame. An unknown message_type is not
// an error; it decodes to ControlUnrecognized.
func DecodeControl(data []byte) (ControlMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ControlMessage{}, fmt.Errorf("%w: %v", ErrMalformedControl, err)
	}
	msg := ControlMessage{Kind: ControlUnrecognized, Type: env.MessageType}
	ct, ok := controlTypes[env.MessageType]
	if !ok {
		return msg, nil
	}

	var payload map[string]json.RawMessage
	if len(env.Data) == 0 {
		return msg, fmt.Errorf("%w: %s without data", ErrMalformedControl, env.MessageType)
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return msg, fmt.Errorf("%w: %s data: %v", ErrMalformedControl, env.MessageType, err)
	}
	raw, ok := payload[ct.field]
	if !ok {
		return msg, fmt.Errorf("%w: %s missing %s", ErrMalformedControl, env.MessageType, ct.field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return msg, fmt.Errorf("%w: %s must be a string", ErrMalformedControl, ct.field)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return msg, fmt.Errorf("%w: %s: %v", ErrMalformedControl, ct.field, err)
	}
	msg.Kind = ct.kind
	msg.ID = id
	return msg, nil
}

// EncodeSubscribe builds the inbound message that subscribes to id on dim.
func EncodeSubscribe(dim Dimension, id uuid.UUID) ([]byte, error) {
	var typ, field string
	switch dim {
	case DimRoute:
		typ, field = TypeSubscribeRoute, "route_id"
	case DimVehicle:
		typ, field = TypeSubscribeVehicle, "vehicle_id"
	case DimDriver:
		typ, field = TypeSubscribeDriver, "driver_id"
	default:
		return nil, fmt.Errorf("unknown dimension %d", int(dim))
	}
	return json.Marshal(map[string]any{
		"message_type": typ,
		"data":         map[string]string{field: id.String()},
	})
}

type locationUpdate struct {
	MessageType string              `json:"message_type"`
	Data        model.LocationEvent `json:"data"`
}

// EncodeLocationUpdate serializes ev as an outbound location_update message.
func EncodeLocationUpdate(ev model.LocationEvent) ([]byte, error) {
	return json.Marshal(locationUpdate{MessageType: TypeLocationUpdate, Data: ev})
}

// DecodeLocationUpdate is the client-side inverse of EncodeLocationUpdate.
func DecodeLocationUpdate(data []byte) (model.LocationEvent, error) {
	var msg locationUpdate
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.LocationEvent{}, err
	}
	if msg.MessageType != TypeLocationUpdate {
		return model.LocationEvent{}, fmt.Errorf("unexpected message_type %q", msg.MessageType)
	}
	return msg.Data, nil
}
