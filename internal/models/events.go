package models

import (
	"encoding/json"
	"fmt"
)

// Push event names carried in the websocket envelope. The subscriber
// dispatches strictly on the event field; names outside this set are
// ignored without error.
const (
	EventTripAssigned     = "trip:assigned"
	EventTripStatusUpdate = "trip:status:update"
	EventDriverLocation   = "trip:location:driver"
)

// PushMessage is the envelope for every inbound push frame.
type PushMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DriverLocationUpdate is the payload of trip:location:driver events.
type DriverLocationUpdate struct {
	TripID   string `json:"trip_id"`
	Location LatLng `json:"location"`
}

// DecodeTrip parses a trip payload from a push frame. Status
// validation happens inside Status.UnmarshalJSON; a trip without an id
// is rejected here since every downstream guard keys on it.
func (m *PushMessage) DecodeTrip() (*Trip, error) {
	var trip Trip
	if err := json.Unmarshal(m.Data, &trip); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", m.Event, err)
	}
	if trip.ID == "" {
		return nil, fmt.Errorf("decode %s payload: missing trip id", m.Event)
	}
	return &trip, nil
}

// DecodeDriverLocation parses a driver location payload.
func (m *PushMessage) DecodeDriverLocation() (*DriverLocationUpdate, error) {
	var update DriverLocationUpdate
	if err := json.Unmarshal(m.Data, &update); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", m.Event, err)
	}
	if update.TripID == "" {
		return nil, fmt.Errorf("decode %s payload: missing trip id", m.Event)
	}
	return &update, nil
}
