// Package simulator is a self-contained stand-in for the trip service:
// an in-memory trip store, a scripted trip lifecycle, a websocket push
// hub, and the HTTP surface the client packages speak to. It exists so
// the passenger shell can be exercised end to end on a laptop.
package simulator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridesync/internal/models"
)

var (
	ErrTripNotFound    = fmt.Errorf("trip not found")
	ErrTripNotGuest    = fmt.Errorf("trip does not belong to a guest session")
	ErrAlreadyFinished = fmt.Errorf("trip already finished")
)

// tripStore holds every simulated trip for the process lifetime.
type tripStore struct {
	mu      sync.Mutex
	trips   map[string]*models.Trip
	byGuest map[string]string
}

func newTripStore() *tripStore {
	return &tripStore{
		trips:   make(map[string]*models.Trip),
		byGuest: make(map[string]string),
	}
}

// CreateGuestTrip mints a trip and its guest session id.
func (s *tripStore) CreateGuestTrip(pickup, destination string, pickupLoc, destLoc *models.LatLng, fare *models.Fare) *models.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	trip := &models.Trip{
		ID:                  uuid.NewString(),
		Status:              models.Status{Value: models.TripStatusSearching},
		PickupAddress:       pickup,
		DestinationAddress:  destination,
		PickupLocation:      pickupLoc,
		DestinationLocation: destLoc,
		Fare:                fare,
		GuestSessionID:      uuid.NewString(),
		RequestedAt:         &now,
	}
	s.trips[trip.ID] = trip
	s.byGuest[trip.GuestSessionID] = trip.ID
	return trip.Clone()
}

func (s *tripStore) Get(tripID string) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[tripID]
	if !ok {
		return nil, ErrTripNotFound
	}
	return trip.Clone(), nil
}

// Resolve maps either a trip id or a guest session id to the trip.
func (s *tripStore) Resolve(idOrGuestID string) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tripID, ok := s.byGuest[idOrGuestID]; ok {
		idOrGuestID = tripID
	}
	trip, ok := s.trips[idOrGuestID]
	if !ok {
		return nil, ErrTripNotFound
	}
	return trip.Clone(), nil
}

// Update applies fn to the stored trip under the lock and returns the
// updated copy. fn returning an error leaves the trip untouched.
func (s *tripStore) Update(tripID string, fn func(*models.Trip) error) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[tripID]
	if !ok {
		return nil, ErrTripNotFound
	}
	if err := fn(trip); err != nil {
		return nil, err
	}
	return trip.Clone(), nil
}
