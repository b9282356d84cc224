package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/ringbridge/internal/clock"
	"github.com/nerrad567/ringbridge/internal/device"
)

// attribute is the change-gate key used for availability values.
const attribute = "availability"

// Publisher is the change-gated publisher the supervisor writes through.
// Devices are keyed by their identity string.
type Publisher interface {
	PublishIfChanged(key, attribute, topic, value string) (bool, error)
	ForceRepublish(key, attribute string)
}

// Logger is the logging interface used by the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Supervisor.
type Options struct {
	// Clock defaults to clock.Real.
	Clock clock.Clock
	// SettleDelay postpones Online after a location connects.
	SettleDelay time.Duration
}

// Connectivity is the per-location connectivity record.
type Connectivity struct {
	Connected  bool
	Subscribed bool
}

type member struct {
	topic string
	state State
}

type location struct {
	Connectivity
	// generation increments on every connectivity change so a pending
	// settle can tell it has been superseded.
	generation uint64
}

// Supervisor owns device availability. Safe for concurrent use.
type Supervisor struct {
	ctx   context.Context
	pub   Publisher
	clock clock.Clock
	delay time.Duration

	mu        sync.Mutex
	devices   map[device.Identity]*member
	locations map[string]*location
	logger    Logger
	wg        sync.WaitGroup
}

// NewSupervisor creates a supervisor. Pending settle delays are abandoned
// when ctx ends.
func NewSupervisor(ctx context.Context, pub Publisher, opts Options) *Supervisor {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Supervisor{
		ctx:       ctx,
		pub:       pub,
		clock:     opts.Clock,
		delay:     opts.SettleDelay,
		devices:   make(map[device.Identity]*member),
		locations: make(map[string]*location),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (s *Supervisor) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Track registers a device and its availability topic. A device joining a
// location that is already connected goes Online after the settle delay.
// Tracking a known device only updates its topic.
func (s *Supervisor) Track(id device.Identity, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.devices[id]; ok {
		m.topic = topic
		return
	}
	s.devices[id] = &member{topic: topic, state: Offline}

	loc := s.locationLocked(id.LocationID)
	if loc.Connected {
		s.scheduleOnlineLocked(id.LocationID, loc.generation)
	}
}

// MarkSubscribed records that the engine listens to the location's
// connectivity stream. It returns true only for the first call per
// location.
func (s *Supervisor) MarkSubscribed(locationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := s.locationLocked(locationID)
	if loc.Subscribed {
		return false
	}
	loc.Subscribed = true
	return true
}

// LocationConnected marks the location connected and schedules Online for
// every device at it after the settle delay.
func (s *Supervisor) LocationConnected(locationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.locationLocked(locationID)
	loc.Connected = true
	loc.generation++
	s.logger.Info("location connected", "location_id", locationID)
	s.scheduleOnlineLocked(locationID, loc.generation)
}

// LocationDisconnected marks the location and all its devices Offline
// immediately, cancelling any pending Online.
func (s *Supervisor) LocationDisconnected(locationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.locationLocked(locationID)
	loc.Connected = false
	loc.generation++
	s.logger.Warn("location disconnected", "location_id", locationID)

	for _, id := range s.membersLocked(locationID) {
		s.applyLocked(id, EventDisconnected)
	}
}

// Shutdown publishes Offline for every Online device before returning.
// Devices already Offline are skipped.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, loc := range s.locations {
		loc.generation++
	}
	for _, id := range s.sortedDevicesLocked() {
		s.applyLocked(id, EventShutdown)
	}
}

// Republish re-emits the current availability of id even when unchanged.
// Unknown devices are ignored.
func (s *Supervisor) Republish(id device.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.devices[id]
	if !ok {
		return
	}
	s.pub.ForceRepublish(id.String(), attribute)
	s.publishLocked(id, m)
}

// State returns the availability of id; unknown devices are Offline.
func (s *Supervisor) State(id device.Identity) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.devices[id]; ok {
		return m.state
	}
	return Offline
}

// Connected reports whether the location is connected.
func (s *Supervisor) Connected(locationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[locationID]
	return ok && loc.Connected
}

// Location returns a copy of the location's connectivity record.
func (s *Supervisor) Location(locationID string) Connectivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loc, ok := s.locations[locationID]; ok {
		return loc.Connectivity
	}
	return Connectivity{}
}

// Wait blocks until pending settle goroutines have finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) locationLocked(locationID string) *location {
	loc, ok := s.locations[locationID]
	if !ok {
		loc = &location{}
		s.locations[locationID] = loc
	}
	return loc
}

// scheduleOnlineLocked brings the location's devices Online after the
// settle delay unless the location's generation moves on first.
func (s *Supervisor) scheduleOnlineLocked(locationID string, generation uint64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := clock.Sleep(s.ctx, s.clock, s.delay); err != nil {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		loc := s.locationLocked(locationID)
		if !loc.Connected || loc.generation != generation {
			s.logger.Debug("online superseded", "location_id", locationID)
			return
		}
		for _, id := range s.membersLocked(locationID) {
			s.applyLocked(id, EventConnected)
		}
	}()
}

func (s *Supervisor) applyLocked(id device.Identity, ev Event) {
	m := s.devices[id]
	next := Next(m.state, ev)
	if next == m.state {
		return
	}
	m.state = next
	s.logger.Debug("availability changed",
		"location_id", id.LocationID,
		"device_id", id.DeviceID,
		"event", ev.String(),
		"state", next.String(),
	)
	s.publishLocked(id, m)
}

func (s *Supervisor) publishLocked(id device.Identity, m *member) {
	if _, err := s.pub.PublishIfChanged(id.String(), attribute, m.topic, m.state.String()); err != nil {
		s.logger.Warn("availability publish failed",
			"location_id", id.LocationID,
			"device_id", id.DeviceID,
			"state", m.state.String(),
			"error", err,
		)
	}
}

func (s *Supervisor) membersLocked(locationID string) []device.Identity {
	var ids []device.Identity
	for id := range s.devices {
		if id.LocationID == locationID {
			ids = append(ids, id)
		}
	}
	sortIdentities(ids)
	return ids
}

func (s *Supervisor) sortedDevicesLocked() []device.Identity {
	ids := make([]device.Identity, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sortIdentities(ids)
	return ids
}

func sortIdentities(ids []device.Identity) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].LocationID != ids[j].LocationID {
			return ids[i].LocationID < ids[j].LocationID
		}
		return ids[i].DeviceID < ids[j].DeviceID
	})
}
