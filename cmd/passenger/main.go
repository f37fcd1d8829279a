package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ridesync/internal/api"
	"ridesync/internal/auth"
	"ridesync/internal/config"
	"ridesync/internal/models"
	"ridesync/internal/push"
	"ridesync/internal/screens"
	"ridesync/internal/session"
	"ridesync/internal/sync"
	"ridesync/pkg/logger"
)

// tripAPI adapts the HTTP client to the engine's request type.
type tripAPI struct {
	*api.Client
}

func (a tripAPI) CancelTrip(ctx context.Context, tripID string, cred auth.Credential, req *sync.CancelRequest) (*models.Trip, error) {
	return a.Client.CancelTrip(ctx, tripID, cred, &api.CancelRequest{
		Reason:   req.Reason,
		Location: req.Location,
		Address:  req.Address,
	})
}

// pushDialer adapts the concrete subscription to the engine's interface.
type pushDialer struct {
	*push.Dialer
}

func (d pushDialer) Subscribe(target push.Target, handler push.Handler) sync.PushSubscription {
	return d.Dialer.Subscribe(target, handler)
}

func main() {
	tripID := flag.String("trip-id", "", "deep link: resume this trip")
	guestID := flag.String("guest-id", "", "deep link: guest session id owning the trip")
	token := flag.String("token", "", "bearer token for an authenticated session")
	pickup := flag.String("pickup", "12 Harbor St", "pickup address for a new guest booking")
	destination := flag.String("destination", "Airport Terminal 2", "destination address for a new guest booking")
	phone := flag.String("phone", "+15550100", "passenger phone for a new guest booking")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: cfg.App.LogFormat,
		Output: "stderr",
		Colors: config.IsDevelopment(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	store, cleanup, err := newStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Session store init failed")
	}
	defer cleanup()

	client := api.NewClient(cfg.API, log)

	screenChanges := make(chan screens.ScreenID, 16)
	listener := sync.Listener{
		OnScreen: func(screen screens.ScreenID, trip *models.Trip) {
			render(screen, trip)
			screenChanges <- screen
		},
		OnTrip: func(trip *models.Trip) {
			if trip.Driver != nil && trip.Driver.Location != nil {
				fmt.Printf("  driver at %.4f,%.4f\n", trip.Driver.Location.Latitude, trip.Driver.Location.Longitude)
			}
		},
	}

	engine := sync.New(sync.Deps{
		API:    tripAPI{client},
		Dialer: pushDialer{push.NewDialer(cfg.Push, log)},
		Store:  store,
		Config: cfg.Sync,
		Log:    log,
	}, listener)

	ctx := context.Background()
	screen, err := engine.Resume(ctx, sync.ResumeOptions{
		DeepLinkTripID:  *tripID,
		DeepLinkGuestID: *guestID,
		Token:           *token,
		Authenticated:   *token != "",
	})
	if err != nil {
		log.WithError(err).Warn("Resume degraded")
	}
	render(screen, engine.Trip())

	// Nothing in flight: book a fresh guest trip against the simulator.
	if engine.State() == sync.StateIdle && engine.Trip() == nil {
		trip, guestSessionID, err := client.CreateGuestBooking(ctx, &api.GuestBookingRequest{
			PickupAddress:      *pickup,
			DestinationAddress: *destination,
			PassengerName:      "Passenger",
			PassengerPhone:     *phone,
		})
		if err != nil {
			log.WithError(err).Fatal("Guest booking failed")
		}
		log.WithTripID(trip.ID).WithGuestID(guestSessionID).Info("Guest trip booked")
		if err := engine.StartForGuest(guestSessionID, trip.ID); err != nil {
			log.WithError(err).Fatal("Sync start failed")
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-screenChanges:
			if engine.State() == sync.StateTerminal {
				fmt.Println("trip finished")
				engine.Acknowledge()
				return
			}
		case <-sigs:
			log.Info("Shutting down")
			engine.Stop()
			return
		}
	}
}

func newStore(cfg *config.Config, log *logger.Logger) (session.Store, func(), error) {
	switch cfg.Session.Backend {
	case "redis":
		store, err := session.NewRedisStore(cfg.Redis, cfg.Session.StorageKey, log)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return session.NewFileStore(cfg.Session.FilePath, log), func() {}, nil
	}
}

func render(screen screens.ScreenID, trip *models.Trip) {
	switch {
	case trip == nil:
		fmt.Printf("[%s]\n", screen)
	case trip.Driver != nil:
		fmt.Printf("[%s] trip %s (%s) driver %s %s %s code %s\n",
			screen, trip.ID, trip.Status.Value, trip.Driver.Name,
			vehicle(trip.Driver), plate(trip.Driver), trip.VerificationCode)
	default:
		fmt.Printf("[%s] trip %s (%s)\n", screen, trip.ID, trip.Status.Value)
	}
}

func vehicle(d *models.Driver) string {
	if d.Vehicle == nil {
		return ""
	}
	return d.Vehicle.Color + " " + d.Vehicle.Make + " " + d.Vehicle.Model
}

func plate(d *models.Driver) string {
	if d.Vehicle == nil {
		return ""
	}
	return d.Vehicle.PlateNumber
}
