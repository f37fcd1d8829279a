package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type TripStatus string

const (
	TripStatusSearching      TripStatus = "searching"
	TripStatusDriverAssigned TripStatus = "driver_assigned"
	TripStatusAccepted       TripStatus = "accepted"
	TripStatusActive         TripStatus = "active"
	TripStatusCompleted      TripStatus = "completed"
	TripStatusCancelled      TripStatus = "cancelled"
	TripStatusDriverNotFound TripStatus = "driver not found"
)

// ErrUnknownStatus reports a status value outside the closed set. An
// unrecognized status is protocol drift between client and server, not
// something to silently default.
type ErrUnknownStatus struct {
	Value string
}

func (e *ErrUnknownStatus) Error() string {
	return fmt.Sprintf("unknown trip status %q", e.Value)
}

// ParseTripStatus validates a wire status value against the closed set.
// The backend emits "driver not found" with spaces; older payloads use
// an underscored form, both normalize to TripStatusDriverNotFound.
func ParseTripStatus(value string) (TripStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "driver_not_found" {
		normalized = string(TripStatusDriverNotFound)
	}

	switch TripStatus(normalized) {
	case TripStatusSearching, TripStatusDriverAssigned, TripStatusAccepted,
		TripStatusActive, TripStatusCompleted, TripStatusCancelled,
		TripStatusDriverNotFound:
		return TripStatus(normalized), nil
	}
	return "", &ErrUnknownStatus{Value: value}
}

// IsTerminal reports whether no further status transitions can occur.
func (s TripStatus) IsTerminal() bool {
	switch s {
	case TripStatusCompleted, TripStatusCancelled, TripStatusDriverNotFound:
		return true
	}
	return false
}

// Rank orders statuses along the trip lifecycle so stale updates can be
// discarded. driver_assigned and accepted are the same stage; terminal
// statuses share the highest rank.
func (s TripStatus) Rank() int {
	switch s {
	case TripStatusSearching:
		return 1
	case TripStatusDriverAssigned, TripStatusAccepted:
		return 2
	case TripStatusActive:
		return 3
	case TripStatusCompleted, TripStatusCancelled, TripStatusDriverNotFound:
		return 4
	}
	return 0
}

// Label returns the human-readable form shown to the passenger.
func (s TripStatus) Label() string {
	switch s {
	case TripStatusSearching:
		return "Finding your driver"
	case TripStatusDriverAssigned, TripStatusAccepted:
		return "Driver on the way"
	case TripStatusActive:
		return "Trip in progress"
	case TripStatusCompleted:
		return "Trip completed"
	case TripStatusCancelled:
		return "Trip cancelled"
	case TripStatusDriverNotFound:
		return "No driver found"
	}
	return string(s)
}

// Status is the wire form of a trip status. The backend sends either a
// bare string ("searching") or an object ({"value": "...", "label":
// "..."}) depending on the endpoint; both decode here and validation
// against the closed set happens at this boundary.
type Status struct {
	Value TripStatus `json:"value"`
	Label string     `json:"label,omitempty"`
}

func NewStatus(value TripStatus) Status {
	return Status{Value: value, Label: value.Label()}
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		value, err := ParseTripStatus(raw)
		if err != nil {
			return err
		}
		s.Value = value
		s.Label = value.Label()
		return nil
	}

	var obj struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("malformed status payload: %w", err)
	}

	value, err := ParseTripStatus(obj.Value)
	if err != nil {
		return err
	}
	s.Value = value
	s.Label = obj.Label
	if s.Label == "" {
		s.Label = value.Label()
	}
	return nil
}
