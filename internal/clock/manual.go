package clock

import (
	"sync"
	"time"
)

// Manual is a Clock whose time only moves through Set and Advance.
//
// Timers created from it fire (non-blocking send on a one-slot channel)
// when the clock reaches their deadline. Safe for concurrent use.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

// NewManual returns a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// NewTimer creates a timer that fires once the clock reaches Now()+d.
// A non-positive d fires immediately.
func (m *Manual) NewTimer(d time.Duration) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{clock: m, c: make(chan time.Time, 1)}
	t.deadline = m.now.Add(d)
	t.active = true
	m.timers = append(m.timers, t)
	m.fireLocked()
	return t
}

// Advance moves the clock forward by d and fires every due timer.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	m.fireLocked()
}

// Set moves the clock to t (never backwards) and fires every due timer.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.After(m.now) {
		m.now = t
	}
	m.fireLocked()
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if t.active {
			n++
		}
	}
	return n
}

func (m *Manual) fireLocked() {
	kept := m.timers[:0]
	for _, t := range m.timers {
		if t.active && !t.deadline.After(m.now) {
			t.active = false
			select {
			case t.c <- m.now:
			default:
			}
		}
		if t.active {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(m.timers); i++ {
		m.timers[i] = nil
	}
	m.timers = kept
}

type manualTimer struct {
	clock    *Manual
	c        chan time.Time
	deadline time.Time
	active   bool
}

func (t *manualTimer) C() <-chan time.Time { return t.c }

func (t *manualTimer) Stop() bool {
	m := t.clock
	m.mu.Lock()
	defer m.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

func (t *manualTimer) Reset(d time.Duration) bool {
	m := t.clock
	m.mu.Lock()
	defer m.mu.Unlock()
	was := t.active
	t.deadline = m.now.Add(d)
	if !t.active {
		t.active = true
		m.timers = append(m.timers, t)
	}
	m.fireLocked()
	return was
}
