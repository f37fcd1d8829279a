// Package clock abstracts time operations so the sync engine's timers
// (push open timeout, poll cadence) can be driven deterministically in
// tests. Production code injects Real(); tests inject NewFake().
package clock

import "time"

type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after d.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for d, then calls f in its own goroutine. The
	// returned Timer can cancel the pending call with Stop.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks at interval d.
	NewTicker(d time.Duration) *Ticker
}

// Timer represents a scheduled call. C is nil for AfterFunc timers.
type Timer struct {
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the timer from firing. Returns false if it already
// fired or was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Ticker wraps a periodic timer. Stop releases it; C is not closed.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }
