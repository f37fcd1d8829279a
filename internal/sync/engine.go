// Package sync owns the trip lifecycle synchronization state: which
// transport (push or poll) is live, what the last-known trip snapshot
// is, and which screen the app shell should show. All update paths,
// push events, poll responses, and resume fetches converge on one
// serialized apply step.
package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"ridesync/internal/auth"
	"ridesync/internal/config"
	"ridesync/internal/models"
	"ridesync/internal/push"
	"ridesync/internal/screens"
	"ridesync/internal/session"
	"ridesync/pkg/clock"
	"ridesync/pkg/logger"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StatePushActive State = "push-active"
	StatePolling    State = "polling"
	StateTerminal   State = "terminal"
)

type Transport string

const (
	TransportNone Transport = "none"
	TransportPush Transport = "push"
	TransportPoll Transport = "poll"
)

// TripAPI is the slice of the HTTP client the engine consumes.
type TripAPI interface {
	GetTrip(ctx context.Context, tripID string, cred auth.Credential) (*models.Trip, error)
	CancelTrip(ctx context.Context, tripID string, cred auth.Credential, req *CancelRequest) (*models.Trip, error)
}

// CancelRequest mirrors the HTTP cancel payload without importing the
// api package (which would cycle through the test fakes).
type CancelRequest struct {
	Reason   string         `json:"reason"`
	Location *models.LatLng `json:"location,omitempty"`
	Address  string         `json:"address,omitempty"`
}

// PushSubscription is a live push channel owned by the engine.
type PushSubscription interface {
	Close()
}

// PushDialer opens push subscriptions. Subscribe must not block; the
// handler reports progress.
type PushDialer interface {
	Subscribe(target push.Target, handler push.Handler) PushSubscription
}

// Listener receives UI-facing notifications. OnScreen fires exactly
// once per screen change, in the order updates are applied. OnTrip
// fires on trip field changes that do not move the screen (driver
// location, fare confirmation). Callbacks run inside the engine's
// serialization and must not call back into the engine; hand the
// value to the render loop instead.
type Listener struct {
	OnScreen func(screen screens.ScreenID, trip *models.Trip)
	OnTrip   func(trip *models.Trip)
}

type Deps struct {
	API    TripAPI
	Dialer PushDialer
	Store  session.Store
	Config *config.SyncConfig
	Clock  clock.Clock
	Log    *logger.Logger
}

// Engine is constructed once per session. It exclusively owns mutation
// of the session sync state; the UI layer reads through the accessor
// methods and the listener.
type Engine struct {
	api      TripAPI
	dialer   PushDialer
	store    session.Store
	cfg      *config.SyncConfig
	clk      clock.Clock
	log      *logger.Logger
	listener Listener

	mu            gosync.Mutex
	generation    int
	state         State
	transport     Transport
	cred          auth.Credential
	tripID        string
	trip          *models.Trip
	screen        screens.ScreenID
	authenticated bool

	sub          PushSubscription
	connectTimer *clock.Timer
	pollTimer    *clock.Timer
	polling      bool
}

func New(deps Deps, listener Listener) *Engine {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Engine{
		api:      deps.API,
		dialer:   deps.Dialer,
		store:    deps.Store,
		cfg:      deps.Config,
		clk:      clk,
		log:      deps.Log,
		listener: listener,
		state:    StateIdle,
		transport: TransportNone,
		screen:   screens.ScreenBooking,
	}
}

// SetAuthenticated records whether the session has a logged-in user,
// which selects the idle default screen.
func (e *Engine) SetAuthenticated(authenticated bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authenticated = authenticated
	if e.state == StateIdle && e.tripID == "" {
		e.setScreenLocked(screens.Default(authenticated))
	}
}

// StartForGuest begins syncing a guest-owned trip.
func (e *Engine) StartForGuest(guestSessionID, tripID string) error {
	return e.start(auth.Guest(guestSessionID), tripID)
}

// StartForAuthenticatedUser begins syncing a trip owned by the
// logged-in session. Token issuance and refresh are external; the
// engine only carries the current token.
func (e *Engine) StartForAuthenticatedUser(tripID, token string) error {
	return e.start(auth.Authenticated(token), tripID)
}

func (e *Engine) start(cred auth.Credential, tripID string) error {
	if tripID == "" {
		return fmt.Errorf("start sync: trip id is required")
	}
	// Fail fast on credential mode problems instead of opening a
	// subscription that dispatches with the wrong credential.
	if err := cred.Validate(e.clk.Now()); err != nil {
		return fmt.Errorf("start sync: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Starting for a different trip tears down the old transport
	// first; no orphaned sockets or timers.
	e.teardownLocked()

	gen := e.nextGenerationLocked()
	e.cred = cred
	e.tripID = tripID
	e.state = StateConnecting
	e.transport = TransportNone

	e.log.WithTripID(tripID).WithField("mode", string(cred.Mode)).Info("Trip sync starting")

	e.connectTimer = e.clk.AfterFunc(e.cfg.PushOpenTimeout, func() {
		e.onConnectTimeout(gen)
	})
	e.sub = e.dialer.Subscribe(e.pushTarget(), push.Handler{
		OnOpen:  func() { e.onPushOpen(gen) },
		OnEvent: func(msg models.PushMessage) { e.onPushEvent(gen, msg) },
		OnDown:  func(err error, final bool) { e.onPushDown(gen, err, final) },
	})

	e.persistLocked()
	return nil
}

// Stop tears down whichever transport is active and resets the
// transport mode. Idempotent; safe when already stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.teardownLocked()
	e.nextGenerationLocked()
	if e.state == StateConnecting || e.state == StatePushActive || e.state == StatePolling {
		e.state = StateIdle
	}
}

// Acknowledge completes the terminal handshake: the user saw the
// completion or cancellation screen and is done with the trip.
func (e *Engine) Acknowledge() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateTerminal {
		return
	}

	e.teardownLocked()
	e.nextGenerationLocked()
	e.tripID = ""
	e.trip = nil
	e.cred = auth.Credential{}
	e.state = StateIdle
	e.setScreenLocked(screens.Default(e.authenticated))

	if err := e.store.Clear(context.Background()); err != nil {
		e.log.WithError(err).Warn("Session snapshot clear failed")
	}
}

// Cancel aborts the active trip through the HTTP API. The resulting
// cancelled status flows through the normal terminal path.
func (e *Engine) Cancel(ctx context.Context, req *CancelRequest) error {
	e.mu.Lock()
	gen := e.generation
	tripID := e.tripID
	cred := e.cred
	e.mu.Unlock()

	if tripID == "" {
		return fmt.Errorf("cancel: no active trip")
	}

	trip, err := e.api.CancelTrip(ctx, tripID, cred, req)
	if err != nil {
		return fmt.Errorf("cancel trip: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return nil
	}
	if trip != nil && trip.ID != "" {
		e.applyUpdateLocked(trip)
	}
	return nil
}

// State, Transport, Screen, and Trip expose the engine's view for the
// UI layer.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Transport() Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport
}

func (e *Engine) Screen() screens.ScreenID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.screen
}

func (e *Engine) Trip() *models.Trip {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trip.Clone()
}

// --- push callbacks ---

func (e *Engine) onPushOpen(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		return
	}

	// Push takes priority: the poll fallback is cancelled the instant
	// the subscription reports open.
	e.stopPollingLocked()
	e.stopConnectTimerLocked()
	if e.state == StateConnecting || e.state == StatePolling || e.state == StatePushActive {
		e.state = StatePushActive
		e.setTransportLocked(TransportPush)
	}
}

func (e *Engine) onPushDown(gen int, err error, final bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		return
	}
	if e.state == StateTerminal || e.state == StateIdle {
		return
	}

	e.log.WithError(err).WithTripID(e.tripID).Warn("Push channel down")
	if final {
		// The subscription gave up reconnecting; polling carries the
		// trip to its terminal status alone.
		e.closeSubscriptionLocked()
	}
	e.startPollingLocked(gen)
}

func (e *Engine) onConnectTimeout(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		return
	}
	if e.state != StateConnecting {
		return
	}

	// Still no open subscription: poll as a safety net. The dial keeps
	// retrying in the background and reclaims the transport on open.
	e.log.WithTripID(e.tripID).Warn("Push open timed out, falling back to polling")
	e.startPollingLocked(gen)
}

func (e *Engine) onPushEvent(gen int, msg models.PushMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		return
	}

	switch msg.Event {
	case models.EventTripAssigned, models.EventTripStatusUpdate:
		trip, err := msg.DecodeTrip()
		if err != nil {
			e.log.WithError(err).Warn("Push trip payload dropped")
			return
		}
		e.applyUpdateLocked(trip)

	case models.EventDriverLocation:
		update, err := msg.DecodeDriverLocation()
		if err != nil {
			e.log.WithError(err).Warn("Push location payload dropped")
			return
		}
		e.applyDriverLocationLocked(update)

	default:
		// Unknown event names are ignored without error; the channel
		// may carry message kinds this client predates.
		e.log.WithField("event", msg.Event).Debug("Unrecognized push event ignored")
	}
}

// --- polling ---

func (e *Engine) startPollingLocked(gen int) {
	if e.polling {
		return
	}
	e.polling = true
	if e.state != StateTerminal {
		e.state = StatePolling
		e.setTransportLocked(TransportPoll)
	}
	e.pollTimer = e.clk.AfterFunc(e.cfg.PollInterval, func() {
		e.pollTick(gen)
	})
}

func (e *Engine) stopPollingLocked() {
	if e.pollTimer != nil {
		e.pollTimer.Stop()
		e.pollTimer = nil
	}
	e.polling = false
}

func (e *Engine) pollTick(gen int) {
	e.mu.Lock()
	if gen != e.generation || !e.polling {
		e.mu.Unlock()
		return
	}
	tripID := e.tripID
	cred := e.cred
	e.mu.Unlock()

	trip, err := e.api.GetTrip(context.Background(), tripID, cred)

	e.mu.Lock()
	defer e.mu.Unlock()

	// The response may have raced a stop() or a new start; a stale
	// generation means this result belongs to a dead sync session.
	if gen != e.generation || !e.polling {
		return
	}

	if err != nil {
		// Transient failures do not halt the loop; only a terminal
		// status or an explicit stop does.
		e.log.WithError(err).WithTripID(tripID).Warn("Trip poll failed")
	} else {
		e.applyUpdateLocked(trip)
	}

	if e.polling {
		e.pollTimer = e.clk.AfterFunc(e.cfg.PollInterval, func() {
			e.pollTick(gen)
		})
	}
}

// --- update application ---

// applyUpdateLocked is the single entry point every inbound trip
// snapshot funnels through, regardless of transport. Idempotent and
// commutative with respect to redundant or out-of-order deliveries.
func (e *Engine) applyUpdateLocked(trip *models.Trip) {
	if trip == nil || trip.ID == "" {
		return
	}
	if trip.ID != e.tripID {
		// Stale message from a just-closed subscription or a crossed
		// poll response for a previous trip.
		e.log.WithTripID(trip.ID).Debug("Update for inactive trip ignored")
		return
	}

	incoming := trip.Status.Value
	if e.trip != nil {
		current := e.trip.Status.Value
		if incoming.Rank() < current.Rank() {
			// Older status than the one we hold: network reordering
			// between push and poll. Applying it would regress the
			// screen, so drop it.
			e.log.WithTripID(trip.ID).WithFields(map[string]interface{}{
				"held":     string(current),
				"incoming": string(incoming),
			}).Debug("Out-of-order status ignored")
			return
		}
		if current.IsTerminal() && incoming != current {
			return
		}
	}

	changed := false
	if e.trip == nil {
		e.trip = trip.Clone()
		changed = true
	} else {
		before := *e.trip
		e.trip.Merge(trip)
		changed = before.Status.Value != e.trip.Status.Value ||
			(before.Driver == nil) != (e.trip.Driver == nil) ||
			before.VerificationCode != e.trip.VerificationCode ||
			(before.Fare == nil) != (e.trip.Fare == nil)
	}

	screen, err := screens.ScreenFor(e.trip.Status.Value)
	if err != nil {
		// Status objects are validated at the decode boundary, so this
		// indicates a bug rather than bad input. Drop the update.
		e.log.WithError(err).Error("Unmappable trip status dropped")
		return
	}

	if screen != e.screen {
		e.setScreenLocked(screen)
	} else if changed && e.listener.OnTrip != nil {
		e.listener.OnTrip(e.trip.Clone())
	}

	e.persistLocked()

	if e.trip.Status.Value.IsTerminal() {
		// Terminal finality: no transport survives the update that
		// delivered a terminal status.
		e.teardownLocked()
		e.state = StateTerminal
	}
}

func (e *Engine) applyDriverLocationLocked(update *models.DriverLocationUpdate) {
	if update.TripID != e.tripID || e.trip == nil {
		return
	}
	if e.trip.Driver == nil {
		// Location for a driver we have not been introduced to yet;
		// the assignment event will carry the full driver.
		return
	}
	loc := update.Location
	e.trip.Driver.Location = &loc
	if e.listener.OnTrip != nil {
		e.listener.OnTrip(e.trip.Clone())
	}
}

// --- internals ---

func (e *Engine) pushTarget() push.Target {
	if e.cred.Mode == auth.ModeGuest {
		return push.Target{GuestID: e.cred.GuestSessionID}
	}
	return push.Target{TripID: e.tripID}
}

func (e *Engine) setScreenLocked(screen screens.ScreenID) {
	if screen == e.screen {
		return
	}
	e.log.LogScreenChange(e.tripID, string(e.screen), string(screen))
	e.screen = screen
	if e.listener.OnScreen != nil {
		e.listener.OnScreen(screen, e.trip.Clone())
	}
}

func (e *Engine) setTransportLocked(transport Transport) {
	if transport == e.transport {
		return
	}
	e.transport = transport
	e.log.LogTransportChange(e.tripID, string(transport))
}

func (e *Engine) nextGenerationLocked() int {
	e.generation++
	return e.generation
}

func (e *Engine) stopConnectTimerLocked() {
	if e.connectTimer != nil {
		e.connectTimer.Stop()
		e.connectTimer = nil
	}
}

func (e *Engine) closeSubscriptionLocked() {
	if e.sub != nil {
		e.sub.Close()
		e.sub = nil
	}
}

func (e *Engine) teardownLocked() {
	e.stopConnectTimerLocked()
	e.stopPollingLocked()
	e.closeSubscriptionLocked()
	e.setTransportLocked(TransportNone)
}

func (e *Engine) persistLocked() {
	if e.store == nil {
		return
	}
	snapshot := &session.Snapshot{
		TripID:         e.tripID,
		AuthMode:       e.cred.Mode,
		GuestSessionID: e.cred.GuestSessionID,
		Screen:         string(e.screen),
		Trip:           e.trip.Clone(),
		SavedAt:        e.clk.Now(),
	}
	if err := e.store.Save(context.Background(), snapshot); err != nil {
		// Persistence is best-effort; the server remains the source of
		// truth for resume.
		e.log.WithError(err).Warn("Session snapshot save failed")
	}
}
