package bridge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/ringbridge/internal/audit"
	"github.com/nerrad567/ringbridge/internal/availability"
	"github.com/nerrad567/ringbridge/internal/clock"
	"github.com/nerrad567/ringbridge/internal/confirm"
	"github.com/nerrad567/ringbridge/internal/device"
	"github.com/nerrad567/ringbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/ringbridge/internal/metrics"
	"github.com/nerrad567/ringbridge/internal/publish"
	"github.com/nerrad567/ringbridge/internal/remote"
	"github.com/nerrad567/ringbridge/internal/republish"
)

// Bridge operation defaults.
const (
	// DefaultStatusTopic is the consumer liveness topic.
	DefaultStatusTopic = "homeassistant/status"

	// DefaultCameraPollInterval is the camera light/siren refresh period.
	DefaultCameraPollInterval = 20 * time.Second

	// DefaultDingWatchdogInterval is the ding subscription check period.
	DefaultDingWatchdogInterval = 60 * time.Second

	// journalTimeout bounds a journal write.
	journalTimeout = 5 * time.Second

	// minTopicParts is the segment count of the shortest command topic.
	minTopicParts = 6
)

// Bus is the message bus the bridge publishes to and receives commands
// from. Satisfied by *mqtt.Client.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// HistoryWriter receives every state publication, ding transition and
// command outcome. Satisfied by *influxdb.Client.
type HistoryWriter interface {
	WriteState(locationID, deviceID, attribute, value string, at time.Time)
	WriteDing(locationID, deviceID, kind string, active bool, at time.Time)
	WriteCommand(locationID, deviceID, command, outcome string, attempts int, duration time.Duration, at time.Time)
	WriteLocationStatus(locationID string, connected bool, at time.Time)
}

// Journal persists dispatched commands. Satisfied by *audit.SQLiteRepository.
type Journal interface {
	Create(ctx context.Context, rec *audit.CommandRecord) error
}

// EventSink fans engine events out to live subscribers. Satisfied by
// *api.Hub.
type EventSink interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopHistory struct{}

func (noopHistory) WriteState(string, string, string, string, time.Time)                       {}
func (noopHistory) WriteDing(string, string, string, bool, time.Time)                          {}
func (noopHistory) WriteCommand(string, string, string, string, int, time.Duration, time.Time) {}
func (noopHistory) WriteLocationStatus(string, bool, time.Time)                                {}

type noopEvents struct{}

func (noopEvents) Broadcast(string, any) {}

// Options configures a Bridge. Zero durations take the defaults noted.
type Options struct {
	// Remote is the account to mirror. Required.
	Remote remote.Client

	// Bus is the message bus. Required.
	Bus Bus

	// Topics builds topic names. Zero value means the default prefixes.
	Topics mqtt.Topics

	// QoS is used for every publication and subscription.
	QoS byte

	// StatusTopic carries the consumer's liveness ("online"/"offline").
	// Empty means DefaultStatusTopic.
	StatusTopic string

	// LocationIDs restricts the bridge to these locations. Empty means all.
	LocationIDs []string

	// EnableCameras includes cameras in every pass.
	EnableCameras bool

	// Clock defaults to clock.Real.
	Clock clock.Clock

	// ConnectDelay postpones the first republish episode after the bus
	// connects. Zero starts it immediately.
	ConnectDelay time.Duration

	// DiscoverySettle separates a new device's discovery from its first
	// state publication.
	DiscoverySettle time.Duration

	// AvailabilitySettle postpones "online" after a location connects.
	AvailabilitySettle time.Duration

	// CameraPollInterval defaults to DefaultCameraPollInterval.
	CameraPollInterval time.Duration

	// DingWatchdogInterval defaults to DefaultDingWatchdogInterval.
	DingWatchdogInterval time.Duration

	// Republish configures episodes. Clock, Connected and OnCycle are
	// supplied by the bridge.
	Republish republish.Options

	// Confirm configures the confirmation loop. Clock is supplied by the
	// bridge when unset.
	Confirm confirm.Options

	// Journal, History, Events and Metrics are optional.
	Journal Journal
	History HistoryWriter
	Events  EventSink
	Metrics *metrics.Metrics

	// Logger is optional.
	Logger Logger
}

// DeviceInfo describes a registered device.
type DeviceInfo struct {
	LocationID   string `json:"location_id"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Availability string `json:"availability"`
}

// Bridge mirrors a remote account onto the bus.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	remote   remote.Client
	bus      Bus
	topics   mqtt.Topics
	qos      byte
	status   string
	allowed  map[string]struct{}
	cameras  bool
	clock    clock.Clock
	settle   time.Duration
	connect  time.Duration
	poll     time.Duration
	watchdog time.Duration

	journal Journal
	history HistoryWriter
	events  EventSink
	metrics *metrics.Metrics

	registry  *device.Registry[*handle]
	state     *publish.Gate
	retained  *publish.Gate
	sup       *availability.Supervisor
	confirm   *confirm.Loop
	scheduler *republish.Scheduler

	busUp      atomic.Bool
	connectGen atomic.Uint64

	locMu     sync.RWMutex
	locations map[string]remote.Location

	statusMu   sync.Mutex
	lastStatus string

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	cmdMu    sync.Mutex
	cmdWG    sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a bridge. Call Start to begin operation.
//
// Parameters:
//   - ctx: parent lifetime; every loop, watcher and pending command ends
//     when it is cancelled or when Shutdown is called
//   - opts: collaborators and timings
//
// Returns:
//   - *Bridge: ready to Start
//   - error: ErrNilRemote or ErrNilBus
func New(ctx context.Context, opts Options) (*Bridge, error) {
	if opts.Remote == nil {
		return nil, ErrNilRemote
	}
	if opts.Bus == nil {
		return nil, ErrNilBus
	}
	if opts.Topics == (mqtt.Topics{}) {
		opts.Topics = mqtt.NewTopics("", "")
	}
	if opts.StatusTopic == "" {
		opts.StatusTopic = DefaultStatusTopic
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.CameraPollInterval <= 0 {
		opts.CameraPollInterval = DefaultCameraPollInterval
	}
	if opts.DingWatchdogInterval <= 0 {
		opts.DingWatchdogInterval = DefaultDingWatchdogInterval
	}
	if opts.History == nil {
		opts.History = noopHistory{}
	}
	if opts.Events == nil {
		opts.Events = noopEvents{}
	}

	ctx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		remote:    opts.Remote,
		bus:       opts.Bus,
		topics:    opts.Topics,
		qos:       opts.QoS,
		status:    opts.StatusTopic,
		cameras:   opts.EnableCameras,
		clock:     opts.Clock,
		settle:    opts.DiscoverySettle,
		connect:   opts.ConnectDelay,
		poll:      opts.CameraPollInterval,
		watchdog:  opts.DingWatchdogInterval,
		journal:   opts.Journal,
		history:   opts.History,
		events:    opts.Events,
		metrics:   opts.Metrics,
		registry:  device.NewRegistry[*handle](),
		locations: make(map[string]remote.Location),
		ctx:       ctx,
		cancel:    cancel,
		logger:    noopLogger{},
	}
	if len(opts.LocationIDs) > 0 {
		b.allowed = make(map[string]struct{}, len(opts.LocationIDs))
		for _, id := range opts.LocationIDs {
			b.allowed[id] = struct{}{}
		}
	}

	var err error
	if b.state, err = publish.NewGate(b.emitState); err != nil {
		cancel()
		return nil, fmt.Errorf("state gate: %w", err)
	}
	if b.retained, err = publish.NewGate(b.emitRetained); err != nil {
		cancel()
		return nil, fmt.Errorf("retained gate: %w", err)
	}
	b.state.SetObserver(gateObserver{b: b, channel: "state"})
	b.retained.SetObserver(gateObserver{b: b, channel: "availability"})

	b.sup = availability.NewSupervisor(ctx, b.retained, availability.Options{
		Clock:       opts.Clock,
		SettleDelay: opts.AvailabilitySettle,
	})

	if opts.Confirm.Clock == nil {
		opts.Confirm.Clock = opts.Clock
	}
	b.confirm = confirm.New(opts.Confirm)

	ropts := opts.Republish
	ropts.Clock = opts.Clock
	ropts.Connected = b.busUp.Load
	ropts.OnCycle = b.metrics.IncRepublishCycle
	b.scheduler = republish.New(b.PublishAll, ropts)

	if opts.Logger != nil {
		b.SetLogger(opts.Logger)
	}
	return b, nil
}

// Start launches the camera poller and ding watchdog, and the first
// republish episode when the bus is already connected.
func (b *Bridge) Start() {
	if b.cameras {
		b.wg.Add(2)
		go b.pollCameras()
		go b.watchDings()
	}
	if b.bus.IsConnected() {
		b.OnBusConnected()
	}
	b.logInfo("bridge started",
		"cameras", b.cameras,
		"status_topic", b.status,
	)
}

// Shutdown stops every loop, publishes Offline for every online device and
// location, and waits for in-flight work. Safe to call more than once.
// Must be called before the bus is closed.
func (b *Bridge) Shutdown() {
	b.stopOnce.Do(func() {
		b.cmdMu.Lock()
		b.cancel()
		b.cmdMu.Unlock()

		b.scheduler.Stop()
		b.sup.Shutdown()

		b.locMu.RLock()
		ids := make([]string, 0, len(b.locations))
		for id := range b.locations {
			ids = append(ids, id)
		}
		b.locMu.RUnlock()
		sort.Strings(ids)
		for _, id := range ids {
			b.publishLocationStatus(id, false)
		}

		b.wg.Wait()
		b.cmdWG.Wait()
		b.sup.Wait()
		for _, h := range b.registry.All() {
			if h.tracker != nil {
				h.tracker.Wait()
			}
		}
		b.logInfo("bridge stopped", "devices", b.registry.Len())
	})
}

// OnBusConnected marks the bus up and, after the connect delay, subscribes
// the liveness topic and starts a republish episode. Wire it to the bus
// client's connect callback.
func (b *Bridge) OnBusConnected() {
	if b.ctx.Err() != nil {
		return
	}
	b.busUp.Store(true)
	b.metrics.SetBusConnected(true)
	gen := b.connectGen.Add(1)
	b.logInfo("bus connected", "connect_delay", b.connect.String())

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := clock.Sleep(b.ctx, b.clock, b.connect); err != nil {
			return
		}
		if gen != b.connectGen.Load() || !b.busUp.Load() {
			return
		}
		if err := b.bus.Subscribe(b.status, b.qos, b.HandleMessage); err != nil {
			b.logWarn("liveness subscription failed", "topic", b.status, "error", err)
		}
		b.scheduler.Start(b.ctx)
	}()
}

// OnBusDisconnected marks the bus down. Publications are skipped until the
// next OnBusConnected.
func (b *Bridge) OnBusDisconnected() {
	b.busUp.Store(false)
	b.connectGen.Add(1)
	b.metrics.SetBusConnected(false)
	b.logWarn("bus disconnected, publications paused")
}

// BusConnected reports whether publications currently reach the bus.
func (b *Bridge) BusConnected() bool {
	return b.busUp.Load()
}

// Devices returns every registered device ordered by location and ID.
func (b *Bridge) Devices() []DeviceInfo {
	handles := b.registry.All()
	out := make([]DeviceInfo, 0, len(handles))
	for _, h := range handles {
		out = append(out, DeviceInfo{
			LocationID:   h.id.LocationID,
			ID:           h.id.DeviceID,
			Name:         h.name,
			Kind:         string(h.kind),
			Availability: b.sup.State(h.id).String(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocationID != out[j].LocationID {
			return out[i].LocationID < out[j].LocationID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Scheduler returns the republish scheduler.
func (b *Bridge) Scheduler() *republish.Scheduler {
	return b.scheduler
}

// emitState writes a non-retained change-gated publication.
func (b *Bridge) emitState(topic string, payload []byte) error {
	return b.publishDirect(topic, payload, false)
}

// emitRetained writes a retained change-gated publication.
func (b *Bridge) emitRetained(topic string, payload []byte) error {
	return b.publishDirect(topic, payload, true)
}

// publishDirect writes to the bus without gating. It fails with
// mqtt.ErrNotConnected while the bus is down.
func (b *Bridge) publishDirect(topic string, payload []byte, retained bool) error {
	if !b.busUp.Load() {
		return mqtt.ErrNotConnected
	}
	return b.bus.Publish(topic, payload, b.qos, retained)
}

// publishGated publishes value through gate and logs a failure. Devices are
// keyed by identity string.
func (b *Bridge) publishGated(gate *publish.Gate, key, attribute, topic, value string) {
	if _, err := gate.PublishIfChanged(key, attribute, topic, value); err != nil {
		b.logPublishError(topic, err)
	}
}

func (b *Bridge) logPublishError(topic string, err error) {
	if b.busUp.Load() {
		b.logWarn("publish failed", "topic", topic, "error", err)
		return
	}
	b.logDebug("publish skipped, bus down", "topic", topic)
}

// gateObserver forwards gate emissions to metrics, history and the live
// event feed.
type gateObserver struct {
	b       *Bridge
	channel string
}

// stateEvent is the live feed payload of a gated publication.
type stateEvent struct {
	LocationID string `json:"location_id"`
	DeviceID   string `json:"device_id"`
	Attribute  string `json:"attribute"`
	Value      string `json:"value"`
}

// splitGateKey recovers the identity from a gate key. Device keys are
// identity strings; location keys are the bare location ID.
func splitGateKey(key string) (locationID, deviceID string) {
	if loc, dev, ok := strings.Cut(key, "/"); ok {
		return loc, dev
	}
	return key, key
}

func (o gateObserver) Emitted(key, attribute, value string) {
	o.b.metrics.Emitted(key, attribute, value)
	if isDiscoveryAttribute(attribute) {
		return
	}
	locationID, deviceID := splitGateKey(key)
	if attribute != attrLocationStatus {
		o.b.history.WriteState(locationID, deviceID, attribute, value, o.b.clock.Now())
	}
	o.b.events.Broadcast(o.channel, stateEvent{
		LocationID: locationID,
		DeviceID:   deviceID,
		Attribute:  attribute,
		Value:      value,
	})
}

func (o gateObserver) Suppressed(key, attribute string) {
	o.b.metrics.Suppressed(key, attribute)
}

// SetLogger sets the logger for the bridge and its components.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.sup.SetLogger(logger)
	b.confirm.SetLogger(logger)
	b.scheduler.SetLogger(logger)
	b.registry.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, args ...any) { b.getLogger().Debug(msg, args...) }
func (b *Bridge) logInfo(msg string, args ...any)  { b.getLogger().Info(msg, args...) }
func (b *Bridge) logWarn(msg string, args ...any)  { b.getLogger().Warn(msg, args...) }
func (b *Bridge) logError(msg string, args ...any) { b.getLogger().Error(msg, args...) }
