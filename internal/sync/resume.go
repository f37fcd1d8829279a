package sync

import (
	"context"
	"errors"
	"fmt"

	"ridesync/internal/auth"
	"ridesync/internal/screens"
)

// ResumeOptions carries the startup context: deep-link URL parameters
// (trip_id, guest_id) and the authenticated session token when one
// exists.
type ResumeOptions struct {
	DeepLinkTripID  string
	DeepLinkGuestID string
	Token           string
	Authenticated   bool
}

// NotFoundError lets the engine recognize "the server no longer knows
// this trip" without depending on the HTTP client's error type.
type NotFoundError interface {
	IsNotFound() bool
}

// Resume implements the resume-on-load protocol. Server truth always
// wins over the persisted snapshot: when a trip context and credential
// are available the current status is fetched over HTTP before any
// transport starts, so a completed or cancelled trip can never resume
// into an active push or poll. The returned screen is what the app
// shell should render now.
func (e *Engine) Resume(ctx context.Context, opts ResumeOptions) (screens.ScreenID, error) {
	e.SetAuthenticated(opts.Authenticated)

	tripID, cred := e.resumeContext(ctx, opts)
	if tripID == "" {
		return e.fallbackScreen(ctx, nil)
	}

	trip, err := e.api.GetTrip(ctx, tripID, cred)
	if err != nil {
		var notFound NotFoundError
		if errors.As(err, &notFound) && notFound.IsNotFound() {
			// The trip is gone server-side; the snapshot is garbage.
			if clearErr := e.store.Clear(ctx); clearErr != nil {
				e.log.WithError(clearErr).Warn("Session snapshot clear failed")
			}
			return e.idleScreen(), nil
		}
		// Network failure: show the last known state, but honor the
		// rule that no transport starts without server confirmation.
		e.log.WithError(err).WithTripID(tripID).Warn("Resume fetch failed")
		return e.fallbackScreen(ctx, err)
	}

	e.mu.Lock()
	e.tripID = trip.ID
	e.cred = cred
	e.trip = trip.Clone()

	screen, mapErr := screens.ScreenFor(trip.Status.Value)
	if mapErr != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("resume: %w", mapErr)
	}
	e.setScreenLocked(screen)

	if trip.Status.Value.IsTerminal() {
		e.teardownLocked()
		e.state = StateTerminal
		e.persistLocked()
		e.mu.Unlock()
		return screen, nil
	}
	e.persistLocked()
	e.mu.Unlock()

	// Non-terminal, confirmed by the server: open the transport that
	// matches the credential mode.
	if err := e.start(cred, trip.ID); err != nil {
		return screen, fmt.Errorf("resume: %w", err)
	}
	return screen, nil
}

// resumeContext decides which trip to resume and with which
// credential: deep-link parameters first, then the persisted snapshot.
func (e *Engine) resumeContext(ctx context.Context, opts ResumeOptions) (string, auth.Credential) {
	if opts.DeepLinkTripID != "" {
		if opts.DeepLinkGuestID != "" {
			return opts.DeepLinkTripID, auth.Guest(opts.DeepLinkGuestID)
		}
		if opts.Authenticated && opts.Token != "" {
			return opts.DeepLinkTripID, auth.Authenticated(opts.Token)
		}
		// Deep link without any usable authorization: nothing to
		// fetch with, fall through to the snapshot.
		e.log.WithTripID(opts.DeepLinkTripID).Warn("Deep link without credential ignored")
	}

	snapshot, err := e.store.Load(ctx)
	if err != nil || !snapshot.Resumable() {
		return "", auth.Credential{}
	}

	switch snapshot.AuthMode {
	case auth.ModeGuest:
		if snapshot.GuestSessionID != "" {
			return snapshot.TripID, auth.Guest(snapshot.GuestSessionID)
		}
	case auth.ModeAuthenticated:
		if opts.Authenticated && opts.Token != "" {
			return snapshot.TripID, auth.Authenticated(opts.Token)
		}
	}
	return "", auth.Credential{}
}

// fallbackScreen renders from the snapshot when the server cannot be
// asked, or the idle default when there is nothing to show. No
// transport is started on this path.
func (e *Engine) fallbackScreen(ctx context.Context, fetchErr error) (screens.ScreenID, error) {
	snapshot, err := e.store.Load(ctx)
	if err == nil && snapshot.Resumable() {
		e.mu.Lock()
		e.tripID = snapshot.TripID
		e.trip = snapshot.Trip
		switch snapshot.AuthMode {
		case auth.ModeGuest:
			e.cred = auth.Guest(snapshot.GuestSessionID)
		}
		e.setScreenLocked(screens.ScreenID(snapshot.Screen))
		screen := e.screen
		e.mu.Unlock()
		return screen, fetchErr
	}
	return e.idleScreen(), fetchErr
}

func (e *Engine) idleScreen() screens.ScreenID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateIdle
	e.setScreenLocked(screens.Default(e.authenticated))
	return e.screen
}
