package simulator

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridesync/internal/models"
	"ridesync/pkg/clock"
	"ridesync/pkg/logger"
)

// ScriptConfig paces the simulated lifecycle. A zero FailSearchEvery
// never fails a search; N means every Nth booking ends driver-not-found.
type ScriptConfig struct {
	AssignAfter      time.Duration
	ActivateAfter    time.Duration
	CompleteAfter    time.Duration
	LocationInterval time.Duration
	FailSearchEvery  int
}

func DefaultScriptConfig() ScriptConfig {
	return ScriptConfig{
		AssignAfter:      3 * time.Second,
		ActivateAfter:    6 * time.Second,
		CompleteAfter:    15 * time.Second,
		LocationInterval: 2 * time.Second,
	}
}

// script drives one trip through its lifecycle on timers and feeds
// every transition to the store and the hub.
type script struct {
	cfg   ScriptConfig
	store *tripStore
	hub   *Hub
	clk   clock.Clock
	log   *logger.Logger

	mu       sync.Mutex
	bookings int
}

func newScript(cfg ScriptConfig, store *tripStore, hub *Hub, clk clock.Clock, log *logger.Logger) *script {
	return &script{cfg: cfg, store: store, hub: hub, clk: clk, log: log}
}

// Start schedules the lifecycle for a freshly booked trip. Bookings
// arrive on concurrent request goroutines; the counter decides the
// fail-search cadence and must count each exactly once.
func (s *script) Start(tripID string) {
	s.mu.Lock()
	s.bookings++
	fail := s.cfg.FailSearchEvery > 0 && s.bookings%s.cfg.FailSearchEvery == 0
	s.mu.Unlock()

	if fail {
		s.clk.AfterFunc(s.cfg.AssignAfter, func() { s.failSearch(tripID) })
		return
	}

	s.clk.AfterFunc(s.cfg.AssignAfter, func() { s.assignDriver(tripID) })
}

func (s *script) failSearch(tripID string) {
	trip, err := s.transition(tripID, models.TripStatusDriverNotFound)
	if err != nil {
		return
	}
	s.hub.Broadcast(trip, models.EventTripStatusUpdate, trip)
}

func (s *script) assignDriver(tripID string) {
	driver := &models.Driver{
		ID:     uuid.NewString(),
		Name:   "Alex P.",
		Phone:  "+15550123",
		Rating: 4.8,
		Vehicle: &models.Vehicle{
			Make:         "Toyota",
			Model:        "Prius",
			Color:        "silver",
			PlateNumber: "7KD" + fmt.Sprintf("%03d", rand.Intn(1000)),
		},
		Location: &models.LatLng{Latitude: 37.7793, Longitude: -122.4193},
	}
	code := fmt.Sprintf("%04d", rand.Intn(10000))

	trip, err := s.store.Update(tripID, func(t *models.Trip) error {
		if t.Status.Value.IsTerminal() {
			return ErrAlreadyFinished
		}
		t.Status = models.Status{Value: models.TripStatusDriverAssigned}
		t.Driver = driver
		t.VerificationCode = code
		return nil
	})
	if err != nil {
		return
	}
	s.log.WithTripID(tripID).WithField("driver", driver.Name).Info("Driver assigned")
	s.hub.Broadcast(trip, models.EventTripAssigned, trip)

	s.clk.AfterFunc(s.cfg.ActivateAfter, func() { s.activate(tripID) })
	s.clk.AfterFunc(s.cfg.LocationInterval, func() { s.moveDriver(tripID) })
}

func (s *script) activate(tripID string) {
	trip, err := s.transition(tripID, models.TripStatusActive)
	if err != nil {
		return
	}
	s.hub.Broadcast(trip, models.EventTripStatusUpdate, trip)
	s.clk.AfterFunc(s.cfg.CompleteAfter, func() { s.complete(tripID) })
}

func (s *script) complete(tripID string) {
	now := time.Now().UTC()
	trip, err := s.store.Update(tripID, func(t *models.Trip) error {
		if t.Status.Value.IsTerminal() {
			return ErrAlreadyFinished
		}
		t.Status = models.Status{Value: models.TripStatusCompleted}
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		return
	}
	s.log.WithTripID(tripID).Info("Trip completed")
	s.hub.Broadcast(trip, models.EventTripStatusUpdate, trip)
}

// moveDriver nudges the driver toward the pickup and re-arms itself
// while the trip is still live.
func (s *script) moveDriver(tripID string) {
	trip, err := s.store.Update(tripID, func(t *models.Trip) error {
		if t.Status.Value.IsTerminal() || t.Driver == nil || t.Driver.Location == nil {
			return ErrAlreadyFinished
		}
		t.Driver.Location.Latitude += 0.0004
		t.Driver.Location.Longitude -= 0.0003
		return nil
	})
	if err != nil {
		return
	}

	s.hub.Broadcast(trip, models.EventDriverLocation, models.DriverLocationUpdate{
		TripID:   trip.ID,
		Location: *trip.Driver.Location,
	})
	s.clk.AfterFunc(s.cfg.LocationInterval, func() { s.moveDriver(tripID) })
}

func (s *script) transition(tripID string, status models.TripStatus) (*models.Trip, error) {
	trip, err := s.store.Update(tripID, func(t *models.Trip) error {
		if t.Status.Value.IsTerminal() {
			return ErrAlreadyFinished
		}
		t.Status = models.Status{Value: status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.LogTripEvent(tripID, string(status), nil)
	return trip, nil
}
