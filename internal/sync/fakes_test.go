package sync

import (
	"context"
	gosync "sync"

	"ridesync/internal/auth"
	"ridesync/internal/models"
	"ridesync/internal/push"
	"ridesync/internal/screens"
	"ridesync/internal/session"
)

// fakeAPI serves scripted trip snapshots and records every fetch.
type fakeAPI struct {
	mu       gosync.Mutex
	getFunc  func(tripID string, cred auth.Credential) (*models.Trip, error)
	getCalls int
	lastCred auth.Credential

	cancelFunc func(tripID string, cred auth.Credential, req *CancelRequest) (*models.Trip, error)
}

func (f *fakeAPI) GetTrip(_ context.Context, tripID string, cred auth.Credential) (*models.Trip, error) {
	f.mu.Lock()
	f.getCalls++
	f.lastCred = cred
	fn := f.getFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, contextlessErr("no trip scripted")
	}
	return fn(tripID, cred)
}

func (f *fakeAPI) CancelTrip(_ context.Context, tripID string, cred auth.Credential, req *CancelRequest) (*models.Trip, error) {
	f.mu.Lock()
	fn := f.cancelFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, contextlessErr("cancel not scripted")
	}
	return fn(tripID, cred, req)
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

type contextlessErr string

func (e contextlessErr) Error() string { return string(e) }

// fakeDialer hands out fakeSubscriptions the tests drive by hand.
type fakeDialer struct {
	mu   gosync.Mutex
	subs []*fakeSubscription
}

func (d *fakeDialer) Subscribe(target push.Target, handler push.Handler) PushSubscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	sub := &fakeSubscription{target: target, handler: handler}
	d.subs = append(d.subs, sub)
	return sub
}

func (d *fakeDialer) last() *fakeSubscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.subs) == 0 {
		return nil
	}
	return d.subs[len(d.subs)-1]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

type fakeSubscription struct {
	mu      gosync.Mutex
	target  push.Target
	handler push.Handler
	closed  bool
}

func (s *fakeSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSubscription) open()                      { s.handler.OnOpen() }
func (s *fakeSubscription) down(err error, final bool) { s.handler.OnDown(err, final) }
func (s *fakeSubscription) event(msg models.PushMessage) {
	s.handler.OnEvent(msg)
}

// memoryStore is an in-process session.Store.
type memoryStore struct {
	mu       gosync.Mutex
	snapshot *session.Snapshot
	saveErr  error
	saves    int
	clears   int
}

func (m *memoryStore) Save(_ context.Context, snapshot *session.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snapshot = snapshot
	return nil
}

func (m *memoryStore) Load(_ context.Context) (*session.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, nil
}

func (m *memoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.snapshot = nil
	return nil
}

// recorder captures listener notifications.
type recorder struct {
	mu          gosync.Mutex
	screenOrder []screens.ScreenID
	tripUpdates int
	lastTrip    *models.Trip
}

func (r *recorder) listener() Listener {
	return Listener{
		OnScreen: func(screen screens.ScreenID, trip *models.Trip) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.screenOrder = append(r.screenOrder, screen)
			r.lastTrip = trip
		},
		OnTrip: func(trip *models.Trip) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.tripUpdates++
			r.lastTrip = trip
		},
	}
}

func (r *recorder) screens() []screens.ScreenID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]screens.ScreenID, len(r.screenOrder))
	copy(out, r.screenOrder)
	return out
}

func (r *recorder) updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tripUpdates
}

func (r *recorder) trip() *models.Trip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTrip
}
