package models

import (
	"time"
)

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Fare struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type Vehicle struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	Color        string `json:"color"`
	PlateNumber  string `json:"plate_number"`
	Description  string `json:"description,omitempty"`
}

// Driver is the passenger-visible slice of the assigned driver. The
// live location updates independently of trip status.
type Driver struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone,omitempty"`
	Rating   float64  `json:"rating"`
	Vehicle  *Vehicle `json:"vehicle,omitempty"`
	Location *LatLng  `json:"location,omitempty"`
}

type Trip struct {
	ID                  string     `json:"id"`
	Status              Status     `json:"status"`
	PickupAddress       string     `json:"pickup_address"`
	DestinationAddress  string     `json:"destination_address"`
	PickupLocation      *LatLng    `json:"pickup_location,omitempty"`
	DestinationLocation *LatLng    `json:"destination_location,omitempty"`
	Fare                *Fare      `json:"fare,omitempty"`
	VerificationCode    string     `json:"verification_code,omitempty"`
	Driver              *Driver    `json:"driver,omitempty"`
	GuestSessionID      string     `json:"guest_session_id,omitempty"`
	RequestedAt         *time.Time `json:"requested_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason  string     `json:"cancellation_reason,omitempty"`
}

// Merge overlays non-empty fields of an incoming snapshot onto the
// held one. Push payloads are partial; a status update without a fare
// must not erase a fare learned earlier. The verification code is
// immutable once assigned.
func (t *Trip) Merge(incoming *Trip) {
	t.Status = incoming.Status

	if incoming.PickupAddress != "" {
		t.PickupAddress = incoming.PickupAddress
	}
	if incoming.DestinationAddress != "" {
		t.DestinationAddress = incoming.DestinationAddress
	}
	if incoming.PickupLocation != nil {
		t.PickupLocation = incoming.PickupLocation
	}
	if incoming.DestinationLocation != nil {
		t.DestinationLocation = incoming.DestinationLocation
	}
	if incoming.Fare != nil {
		t.Fare = incoming.Fare
	}
	if t.VerificationCode == "" && incoming.VerificationCode != "" {
		t.VerificationCode = incoming.VerificationCode
	}
	if incoming.Driver != nil {
		t.Driver = incoming.Driver
	}
	if incoming.CancellationReason != "" {
		t.CancellationReason = incoming.CancellationReason
	}
	if incoming.CompletedAt != nil {
		t.CompletedAt = incoming.CompletedAt
	}
	if incoming.CancelledAt != nil {
		t.CancelledAt = incoming.CancelledAt
	}
}

// Clone returns a deep-enough copy for handing snapshots to the UI
// layer without sharing mutable pointers with the engine.
func (t *Trip) Clone() *Trip {
	if t == nil {
		return nil
	}
	copied := *t
	if t.PickupLocation != nil {
		loc := *t.PickupLocation
		copied.PickupLocation = &loc
	}
	if t.DestinationLocation != nil {
		loc := *t.DestinationLocation
		copied.DestinationLocation = &loc
	}
	if t.Fare != nil {
		fare := *t.Fare
		copied.Fare = &fare
	}
	if t.Driver != nil {
		driver := *t.Driver
		if t.Driver.Vehicle != nil {
			vehicle := *t.Driver.Vehicle
			driver.Vehicle = &vehicle
		}
		if t.Driver.Location != nil {
			loc := *t.Driver.Location
			driver.Location = &loc
		}
		copied.Driver = &driver
	}
	return &copied
}
