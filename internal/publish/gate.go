package publish

import (
	"fmt"
	"sync"
)

// Emitter forwards one publication to the bus.
type Emitter func(topic string, payload []byte) error

// Observer is notified after every emission and every suppression.
// Implementations must be safe for concurrent use.
type Observer interface {
	Emitted(deviceID, attribute, value string)
	Suppressed(deviceID, attribute string)
}

type noopObserver struct{}

func (noopObserver) Emitted(string, string, string) {}
func (noopObserver) Suppressed(string, string)      {}

type key struct {
	deviceID  string
	attribute string
}

// entry is the last emitted value for one key. Its lock is held across
// check, emit and commit so emissions for a key reach the bus in the order
// they were decided.
type entry struct {
	mu    sync.Mutex
	value string
	seen  bool
}

// Gate is the change-gated publisher. Safe for concurrent use.
type Gate struct {
	emit     Emitter
	observer Observer

	mu      sync.Mutex
	entries map[key]*entry
}

// NewGate creates a gate forwarding through emit.
func NewGate(emit Emitter) (*Gate, error) {
	if emit == nil {
		return nil, ErrNilEmitter
	}
	return &Gate{
		emit:     emit,
		observer: noopObserver{},
		entries:  make(map[key]*entry),
	}, nil
}

// SetObserver installs an observer for emissions and suppressions.
func (g *Gate) SetObserver(o Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o == nil {
		o = noopObserver{}
	}
	g.observer = o
}

func (g *Gate) entry(k key) (*entry, Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[k]
	if !ok {
		e = &entry{}
		g.entries[k] = e
	}
	return e, g.observer
}

// PublishIfChanged emits value on topic unless it equals the value last
// emitted for (deviceID, attribute).
//
// Calls for the same key are serialised through the emit, so racing
// callers with the same value produce one emission and callers with
// different values leave the bus and the cache agreeing on the last one.
// The emitter must not call back into the gate for the same key. When the
// emitter fails the cache keeps its previous value and the next call emits
// again.
//
// Returns:
//   - bool: true when the value was emitted
//   - error: the emitter's error, wrapped
func (g *Gate) PublishIfChanged(deviceID, attribute, topic, value string) (bool, error) {
	e, obs := g.entry(key{deviceID, attribute})

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.seen && e.value == value {
		obs.Suppressed(deviceID, attribute)
		return false, nil
	}
	if err := g.emit(topic, []byte(value)); err != nil {
		return false, fmt.Errorf("publishing %s/%s: %w", deviceID, attribute, err)
	}
	e.value, e.seen = value, true

	obs.Emitted(deviceID, attribute, value)
	return true, nil
}

// ForceRepublish forgets the value cached for (deviceID, attribute) so the
// next PublishIfChanged emits unconditionally. It waits for an emission in
// flight on that key.
func (g *Gate) ForceRepublish(deviceID, attribute string) {
	g.mu.Lock()
	e, ok := g.entries[key{deviceID, attribute}]
	g.mu.Unlock()
	if ok {
		e.forget()
	}
}

// ForceRepublishDevice forgets every value cached for deviceID.
func (g *Gate) ForceRepublishDevice(deviceID string) {
	g.mu.Lock()
	var matched []*entry
	for k, e := range g.entries {
		if k.deviceID == deviceID {
			matched = append(matched, e)
		}
	}
	g.mu.Unlock()
	for _, e := range matched {
		e.forget()
	}
}

func (e *entry) forget() {
	e.mu.Lock()
	e.seen = false
	e.mu.Unlock()
}

// Last returns the value last emitted for (deviceID, attribute).
func (g *Gate) Last(deviceID, attribute string) (string, bool) {
	g.mu.Lock()
	e, ok := g.entries[key{deviceID, attribute}]
	g.mu.Unlock()
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.seen {
		return "", false
	}
	return e.value, true
}
