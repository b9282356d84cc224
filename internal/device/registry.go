package device

import (
	"fmt"
	"sort"
	"sync"
)

// Identity is the immutable key of a represented device.
type Identity struct {
	LocationID string
	DeviceID   string
}

// String returns "location/device".
func (id Identity) String() string {
	return id.LocationID + "/" + id.DeviceID
}

// Valid reports whether both fields are set.
func (id Identity) Valid() bool {
	return id.LocationID != "" && id.DeviceID != ""
}

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Registry is the append-only directory of device handles.
//
// All public methods are thread-safe.
type Registry[H any] struct {
	mu      sync.RWMutex
	handles map[Identity]H
	order   []Identity
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry[H any]() *Registry[H] {
	return &Registry[H]{
		handles: make(map[Identity]H),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry[H]) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// LookupOrCreate returns the handle registered for id, creating it with
// factory when absent.
//
// The factory runs under the registry's write lock, so it must not call
// back into the registry. A factory error registers nothing.
//
// Returns:
//   - H: the registered handle
//   - bool: true only for the call that created the handle
//   - error: ErrInvalidIdentity, ErrNilFactory or the factory's error
func (r *Registry[H]) LookupOrCreate(id Identity, factory func() (H, error)) (H, bool, error) {
	var zero H
	if !id.Valid() {
		return zero, false, fmt.Errorf("%w: %q", ErrInvalidIdentity, id.String())
	}

	r.mu.RLock()
	h, ok := r.handles[id]
	r.mu.RUnlock()
	if ok {
		return h, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check: another caller may have created it between the locks.
	if h, ok := r.handles[id]; ok {
		return h, false, nil
	}
	if factory == nil {
		return zero, false, ErrNilFactory
	}

	h, err := factory()
	if err != nil {
		return zero, false, fmt.Errorf("creating %s: %w", id, err)
	}
	r.handles[id] = h
	r.order = append(r.order, id)
	r.logger.Debug("device registered",
		"location_id", id.LocationID,
		"device_id", id.DeviceID,
	)
	return h, true, nil
}

// Find returns the handle for id without creating one.
func (r *Registry[H]) Find(id Identity) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// All returns every handle in registration order.
func (r *Registry[H]) All() []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]H, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.handles[id])
	}
	return out
}

// ByLocation returns the handles registered at locationID in registration
// order.
func (r *Registry[H]) ByLocation(locationID string) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []H
	for _, id := range r.order {
		if id.LocationID == locationID {
			out = append(out, r.handles[id])
		}
	}
	return out
}

// Locations returns the distinct location IDs with registered devices,
// sorted.
func (r *Registry[H]) Locations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, id := range r.order {
		if _, ok := seen[id.LocationID]; !ok {
			seen[id.LocationID] = struct{}{}
			out = append(out, id.LocationID)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered handles.
func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
