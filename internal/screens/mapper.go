// Package screens maps trip statuses onto the app's top-level views.
// The mapping is total over the closed status set and has no side
// effects; the app shell reacts to the identifiers emitted here.
package screens

import (
	"ridesync/internal/models"
)

type ScreenID string

const (
	ScreenBooking        ScreenID = "booking"
	ScreenAssigning      ScreenID = "assigning"
	ScreenDriverAssigned ScreenID = "driver-assigned"
	ScreenTripProgress   ScreenID = "trip-progress"
	ScreenTripComplete   ScreenID = "trip-complete"
	ScreenDashboard      ScreenID = "dashboard"
)

// ScreenFor returns the screen for a trip status. cancelled and
// "driver not found" both land back on booking: the passenger did not
// get a ride and the booking flow restarts. An unrecognized status is
// a programming error surfaced as ErrUnknownStatus rather than a
// silent default, since defaulting would mask protocol drift.
func ScreenFor(status models.TripStatus) (ScreenID, error) {
	switch status {
	case models.TripStatusSearching:
		return ScreenAssigning, nil
	case models.TripStatusDriverAssigned, models.TripStatusAccepted:
		return ScreenDriverAssigned, nil
	case models.TripStatusActive:
		return ScreenTripProgress, nil
	case models.TripStatusCompleted:
		return ScreenTripComplete, nil
	case models.TripStatusCancelled, models.TripStatusDriverNotFound:
		return ScreenBooking, nil
	}
	return "", &models.ErrUnknownStatus{Value: string(status)}
}

// Default returns the screen shown when no trip is active.
func Default(authenticated bool) ScreenID {
	if authenticated {
		return ScreenDashboard
	}
	return ScreenBooking
}
