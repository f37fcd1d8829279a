package simulator

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ridesync/internal/api"
	"ridesync/internal/auth"
	"ridesync/internal/config"
	"ridesync/internal/models"
	"ridesync/internal/push"
	"ridesync/pkg/clock"
	"ridesync/pkg/logger"
)

type fixture struct {
	client *api.Client
	wsURL  string
	clk    *clock.Fake
	cfg    ScriptConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := DefaultScriptConfig()
	clk := clock.NewFake()
	srv := NewServer(cfg, clk, logger.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client := api.NewClient(&config.APIConfig{
		BaseURL:        ts.URL + "/api/v1",
		RequestTimeout: 5 * time.Second,
		UserAgent:      "ridesync-test",
	}, logger.Discard())

	return &fixture{
		client: client,
		wsURL:  "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		clk:    clk,
		cfg:    cfg,
	}
}

func (f *fixture) book(t *testing.T) (*models.Trip, auth.Credential) {
	t.Helper()
	trip, guestID, err := f.client.CreateGuestBooking(context.Background(), &api.GuestBookingRequest{
		PickupAddress:      "12 Harbor St",
		DestinationAddress: "Airport T2",
		PassengerName:      "Sam",
		PassengerPhone:     "+15550100",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return trip, auth.Guest(guestID)
}

func TestBookingThenFetchRoundTrip(t *testing.T) {
	f := newFixture(t)
	trip, cred := f.book(t)

	if trip.Status.Value != models.TripStatusSearching {
		t.Fatalf("new trip status = %q, want searching", trip.Status.Value)
	}
	if trip.RequestedAt == nil || trip.RequestedAt.IsZero() {
		t.Error("booking did not stamp a request time")
	}

	fetched, err := f.client.GetTrip(context.Background(), trip.ID, cred)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.ID != trip.ID || fetched.PickupAddress != "12 Harbor St" {
		t.Errorf("fetched = %+v", fetched)
	}

	if _, err := f.client.GetTrip(context.Background(), trip.ID, auth.Guest("wrong-guest")); err == nil {
		t.Error("fetch with a foreign guest session succeeded")
	}
}

func TestScriptedLifecycleOverPush(t *testing.T) {
	f := newFixture(t)
	trip, cred := f.book(t)

	opened := make(chan struct{}, 1)
	events := make(chan models.PushMessage, 16)
	dialer := push.NewDialer(&config.PushConfig{
		URL:               f.wsURL,
		HandshakeTimeout:  2 * time.Second,
		PingInterval:      50 * time.Millisecond,
		PongTimeout:       2 * time.Second,
		ReconnectBaseWait: 5 * time.Millisecond,
		ReconnectMaxWait:  20 * time.Millisecond,
		ReconnectAttempts: 3,
	}, logger.Discard())
	sub := dialer.Subscribe(push.Target{GuestID: cred.GuestSessionID}, push.Handler{
		OnOpen:  func() { opened <- struct{}{} },
		OnEvent: func(msg models.PushMessage) { events <- msg },
	})
	defer sub.Close()

	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("push socket never opened")
	}

	f.clk.Advance(f.cfg.AssignAfter)

	msg := awaitEvent(t, events, models.EventTripAssigned)
	assigned, err := msg.DecodeTrip()
	if err != nil {
		t.Fatalf("decode assigned payload: %v", err)
	}
	if assigned.ID != trip.ID || assigned.Driver == nil || assigned.VerificationCode == "" {
		t.Fatalf("assigned = %+v, want driver and verification code", assigned)
	}

	f.clk.Advance(f.cfg.ActivateAfter)
	msg = awaitEvent(t, events, models.EventTripStatusUpdate)
	active, err := msg.DecodeTrip()
	if err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	if active.Status.Value != models.TripStatusActive {
		t.Errorf("status = %q, want active", active.Status.Value)
	}
}

func TestCancelByGuestSessionID(t *testing.T) {
	f := newFixture(t)
	trip, cred := f.book(t)

	cancelled, err := f.client.CancelTrip(context.Background(), trip.ID, cred, &api.CancelRequest{
		Reason: "plans changed",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status.Value != models.TripStatusCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Status.Value)
	}

	// A second cancel hits a finished trip.
	if _, err := f.client.CancelTrip(context.Background(), trip.ID, cred, &api.CancelRequest{Reason: "again"}); err == nil {
		t.Error("cancel of a finished trip succeeded")
	}
}

func TestUnknownTripIs404(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.GetTrip(context.Background(), "nope", auth.Guest("nope"))
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || !apiErr.IsNotFound() {
		t.Fatalf("err = %v, want not-found api error", err)
	}
}

func awaitEvent(t *testing.T, ch <-chan models.PushMessage, event string) models.PushMessage {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Event == event {
				return msg
			}
			// Location updates interleave with status events.
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}
