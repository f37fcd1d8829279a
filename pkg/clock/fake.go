package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Time only moves when Advance is
// called; timers and tickers scheduled before the new time fire in
// deadline order. AfterFunc callbacks run synchronously inside Advance,
// so tests observe their effects as soon as Advance returns.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	seq     int
}

type waiter struct {
	deadline time.Time
	seq      int
	period   time.Duration // 0 for one-shot
	ch       chan time.Time
	fn       func()
	stopped  bool
}

func NewFake() *Fake {
	return &Fake{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.add(d, 0, nil)
	return w.ch
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) *Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.add(d, 0, fn)
	return &Timer{stopFunc: func() bool { return f.stop(w) }}
}

func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.add(d, d, nil)
	return &Ticker{C: w.ch, stopFunc: func() { f.stop(w) }}
}

// Advance moves the fake time forward by d, firing every timer and
// ticker whose deadline falls within the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		w := f.next(target)
		if w == nil {
			break
		}

		f.now = w.deadline
		if w.period > 0 {
			w.deadline = w.deadline.Add(w.period)
		} else {
			w.stopped = true
		}

		if w.fn != nil {
			// Run callbacks without the lock so they may schedule
			// new timers or read the clock.
			f.mu.Unlock()
			w.fn()
			f.mu.Lock()
		} else {
			select {
			case w.ch <- f.now:
			default:
			}
		}
	}

	f.now = target
	f.compact()
	f.mu.Unlock()
}

func (f *Fake) add(d, period time.Duration, fn func()) *waiter {
	f.seq++
	w := &waiter{
		deadline: f.now.Add(d),
		seq:      f.seq,
		period:   period,
		fn:       fn,
	}
	if fn == nil {
		w.ch = make(chan time.Time, 1)
	}
	f.waiters = append(f.waiters, w)
	return w
}

func (f *Fake) stop(w *waiter) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := !w.stopped
	w.stopped = true
	return was
}

// next returns the earliest live waiter due at or before target.
func (f *Fake) next(target time.Time) *waiter {
	var best *waiter
	for _, w := range f.waiters {
		if w.stopped || w.deadline.After(target) {
			continue
		}
		if best == nil || w.deadline.Before(best.deadline) ||
			(w.deadline.Equal(best.deadline) && w.seq < best.seq) {
			best = w
		}
	}
	return best
}

func (f *Fake) compact() {
	live := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.stopped {
			live = append(live, w)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].deadline.Before(live[j].deadline)
	})
	f.waiters = live
}
