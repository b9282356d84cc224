package ding

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/ringbridge/internal/clock"
)

// Kind identifies an event stream on a camera.
type Kind string

// Event kinds reported by cameras.
const (
	KindMotion Kind = "motion"
	KindDing   Kind = "ding"
)

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	return k == KindMotion || k == KindDing
}

// TransitionFunc receives every ON (active=true) and OFF (active=false)
// transition of a kind. Calls are made one at a time, in transition order,
// from a goroutine that holds no tracker lock.
type TransitionFunc func(kind Kind, active bool)

type transition struct {
	kind   Kind
	active bool
}

// State is a point-in-time copy of a kind's tracking state.
type State struct {
	Active      bool
	LastEventAt time.Time
	Duration    time.Duration
	ExpiresAt   time.Time
}

// Logger is the logging interface used by the tracker.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// kindState is owned by the tracker and guarded by Tracker.mu.
type kindState struct {
	State
	watching bool
}

// Tracker holds the ding state of one camera.
type Tracker struct {
	ctx   context.Context
	clock clock.Clock
	emit  TransitionFunc

	mu          sync.Mutex
	states      map[Kind]*kindState
	pending     []transition
	dispatching bool
	logger      Logger
	wg          sync.WaitGroup
}

// NewTracker creates a tracker whose watchers stop when ctx ends.
//
// Parameters:
//   - ctx: lifetime of the tracker's watchers; cancelling it abandons pending
//     deactivations without emitting OFF
//   - clk: time source; nil means clock.Real
//   - emit: transition callback; nil discards transitions
func NewTracker(ctx context.Context, clk clock.Clock, emit TransitionFunc) *Tracker {
	if clk == nil {
		clk = clock.Real{}
	}
	if emit == nil {
		emit = func(Kind, bool) {}
	}
	return &Tracker{
		ctx:    ctx,
		clock:  clk,
		emit:   emit,
		states: make(map[Kind]*kindState),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for debug output.
func (t *Tracker) SetLogger(logger Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	t.logger = logger
}

// RecordEvent registers an event of kind observed at observedAt that stays
// active for expiresIn.
//
// ON is emitted on every call. The deadline only ever moves forward while
// the kind is active, and at most one watcher runs per kind.
func (t *Tracker) RecordEvent(kind Kind, observedAt time.Time, expiresIn time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[kind]
	if !ok {
		st = &kindState{}
		t.states[kind] = st
	}

	expiresAt := observedAt.Add(expiresIn)
	st.LastEventAt = observedAt
	st.Duration = expiresIn
	if !st.Active || expiresAt.After(st.ExpiresAt) {
		st.ExpiresAt = expiresAt
	}
	st.Active = true

	t.logger.Debug("ding recorded",
		"kind", string(kind),
		"expires_at", st.ExpiresAt,
		"watching", st.watching,
	)
	t.enqueueLocked(kind, true)

	if st.watching || t.ctx.Err() != nil {
		return
	}
	st.watching = true
	timer := t.clock.NewTimer(st.ExpiresAt.Sub(t.clock.Now()))
	t.wg.Add(1)
	go t.watch(kind, st, timer)
}

// watch waits until the kind's latest deadline has passed, then emits OFF.
func (t *Tracker) watch(kind Kind, st *kindState, timer clock.Timer) {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			timer.Stop()
			t.mu.Lock()
			st.watching = false
			t.mu.Unlock()
			return
		case <-timer.C():
		}

		t.mu.Lock()
		now := t.clock.Now()
		if now.Before(st.ExpiresAt) {
			timer.Reset(st.ExpiresAt.Sub(now))
			t.mu.Unlock()
			continue
		}
		st.Active = false
		st.watching = false
		t.logger.Debug("ding expired", "kind", string(kind))
		t.enqueueLocked(kind, false)
		t.mu.Unlock()
		return
	}
}

// enqueueLocked queues a transition and starts the dispatcher if it is
// idle. t.mu must be held.
func (t *Tracker) enqueueLocked(kind Kind, active bool) {
	t.pending = append(t.pending, transition{kind, active})
	if t.dispatching {
		return
	}
	t.dispatching = true
	t.wg.Add(1)
	go t.dispatch()
}

// dispatch delivers queued transitions until the queue is empty.
func (t *Tracker) dispatch() {
	defer t.wg.Done()
	for {
		t.mu.Lock()
		if len(t.pending) == 0 {
			t.dispatching = false
			t.mu.Unlock()
			return
		}
		next := t.pending[0]
		t.pending = t.pending[1:]
		t.mu.Unlock()

		t.emit(next.kind, next.active)
	}
}

// QueryState reports whether kind is currently active. It has no side
// effects.
func (t *Tracker) QueryState(kind Kind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[kind]
	return ok && st.Active
}

// Snapshot returns a copy of kind's state. The zero State is returned for a
// kind that has never been recorded.
func (t *Tracker) Snapshot(kind Kind) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.states[kind]; ok {
		return st.State
	}
	return State{}
}

// Wait blocks until every watcher has exited and every queued transition
// has been delivered. Watchers exit on expiry or when the tracker's context
// ends.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
