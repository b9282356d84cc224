// Package sim is an in-process remote account implementing the remote
// interfaces. It backs the engine's tests and the development mode of the
// binary.
//
// Every mutation is recorded as a Call. Locations can be told to ignore a
// number of arm/disarm requests to model a panel that is slow to converge.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/ringbridge/internal/remote"
)

// streamBuffer is the capacity of every simulated stream.
const streamBuffer = 16

// ErrNotSubscribed is returned when a camera's ding stream is down.
var ErrNotSubscribed = errors.New("sim: ding subscription lost")

// Call stores one mutating invocation.
type Call struct {
	Target string
	Method string
	Arg    string
}

// recorder is embedded by every simulated object.
type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recorder) record(target, method, arg string) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Target: target, Method: method, Arg: arg})
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Account is a simulated remote account.
type Account struct {
	mu        sync.Mutex
	locations []*Location
	// LocationsErr, when set, is returned by Locations.
	LocationsErr error
}

// NewAccount creates an account holding locs.
func NewAccount(locs ...*Location) *Account {
	return &Account{locations: locs}
}

// Locations implements remote.Client.
func (a *Account) Locations(_ context.Context) ([]remote.Location, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.LocationsErr != nil {
		return nil, a.LocationsErr
	}
	out := make([]remote.Location, 0, len(a.locations))
	for _, l := range a.locations {
		out = append(out, l)
	}
	return out, nil
}

// Location is a simulated location.
type Location struct {
	recorder
	id       string
	name     string
	hasAlarm bool
	conn     chan bool

	state   sync.Mutex
	mode    string
	ignore  int
	devices []*Device
	cameras []*Camera
	panel   *Device
}

// NewLocation creates a location. A location with an alarm starts
// disarmed.
func NewLocation(id, name string, hasAlarm bool) *Location {
	return &Location{
		id:       id,
		name:     name,
		hasAlarm: hasAlarm,
		conn:     make(chan bool, streamBuffer),
		mode:     "none",
	}
}

func (l *Location) ID() string                { return l.id }
func (l *Location) Name() string              { return l.name }
func (l *Location) HasAlarm() bool            { return l.hasAlarm }
func (l *Location) Connectivity() <-chan bool { return l.conn }

// AddDevice attaches d to the location. The first security panel added
// mirrors the location's alarm mode.
func (l *Location) AddDevice(d *Device) *Device {
	l.state.Lock()
	defer l.state.Unlock()
	d.setLocation(l.id)
	if l.panel == nil && d.Data().DeviceType == "security-panel" {
		l.panel = d
		d.update(func(data *remote.DeviceData) { data.Mode = l.mode })
	}
	l.devices = append(l.devices, d)
	return d
}

// AddCamera attaches c to the location.
func (l *Location) AddCamera(c *Camera) *Camera {
	l.state.Lock()
	defer l.state.Unlock()
	c.setLocation(l.id)
	l.cameras = append(l.cameras, c)
	return c
}

// SetConnected pushes a connectivity change.
func (l *Location) SetConnected(connected bool) {
	l.conn <- connected
}

// IgnoreArmRequests makes the next n arm/disarm calls succeed without
// changing the mode.
func (l *Location) IgnoreArmRequests(n int) {
	l.state.Lock()
	defer l.state.Unlock()
	l.ignore = n
}

// Devices implements remote.Location.
func (l *Location) Devices(_ context.Context) ([]remote.AlarmDevice, error) {
	l.state.Lock()
	defer l.state.Unlock()
	out := make([]remote.AlarmDevice, 0, len(l.devices))
	for _, d := range l.devices {
		out = append(out, d)
	}
	return out, nil
}

// Cameras implements remote.Location.
func (l *Location) Cameras(_ context.Context) ([]remote.Camera, error) {
	l.state.Lock()
	defer l.state.Unlock()
	out := make([]remote.Camera, 0, len(l.cameras))
	for _, c := range l.cameras {
		out = append(out, c)
	}
	return out, nil
}

func (l *Location) Disarm(ctx context.Context) error  { return l.setMode(ctx, "disarm", "none") }
func (l *Location) ArmHome(ctx context.Context) error { return l.setMode(ctx, "armHome", "some") }
func (l *Location) ArmAway(ctx context.Context) error { return l.setMode(ctx, "armAway", "all") }

// AlarmMode implements remote.Location.
func (l *Location) AlarmMode(_ context.Context) (string, error) {
	if !l.hasAlarm {
		return "", fmt.Errorf("sim: location %s has no alarm", l.id)
	}
	l.state.Lock()
	defer l.state.Unlock()
	return l.mode, nil
}

func (l *Location) setMode(_ context.Context, method, mode string) error {
	l.record(l.id, method, mode)
	if !l.hasAlarm {
		return fmt.Errorf("sim: location %s has no alarm", l.id)
	}

	l.state.Lock()
	if l.ignore > 0 {
		l.ignore--
		l.state.Unlock()
		return nil
	}
	l.mode = mode
	panel := l.panel
	l.state.Unlock()

	if panel != nil {
		panel.update(func(d *remote.DeviceData) { d.Mode = mode })
	}
	return nil
}

// Device is a simulated alarm device.
type Device struct {
	recorder
	state   sync.Mutex
	data    remote.DeviceData
	updates chan remote.DeviceData
	// SetInfoErr, when set, is returned by SetInfo and SendCommand.
	SetInfoErr error
}

// NewDevice creates a device from its initial snapshot.
func NewDevice(data remote.DeviceData) *Device {
	return &Device{data: data, updates: make(chan remote.DeviceData, streamBuffer)}
}

func (d *Device) setLocation(id string) {
	d.state.Lock()
	d.data.LocationID = id
	d.state.Unlock()
}

// Data implements remote.AlarmDevice.
func (d *Device) Data() remote.DeviceData {
	d.state.Lock()
	defer d.state.Unlock()
	return d.data
}

// Updates implements remote.AlarmDevice.
func (d *Device) Updates() <-chan remote.DeviceData { return d.updates }

// Update mutates the snapshot and pushes it on the update stream.
func (d *Device) Update(fn func(*remote.DeviceData)) {
	d.update(fn)
}

func (d *Device) update(fn func(*remote.DeviceData)) {
	d.state.Lock()
	fn(&d.data)
	snap := d.data
	d.state.Unlock()

	select {
	case d.updates <- snap:
	default:
		// Consumer is behind; it only needs the latest snapshot.
		select {
		case <-d.updates:
		default:
		}
		select {
		case d.updates <- snap:
		default:
		}
	}
}

// SetInfo implements remote.AlarmDevice. It applies "on" and "level".
func (d *Device) SetInfo(_ context.Context, body map[string]any) error {
	d.record(d.Data().ID, "setInfo", fmt.Sprint(body))
	if d.SetInfoErr != nil {
		return d.SetInfoErr
	}
	d.update(func(data *remote.DeviceData) {
		if v, ok := body["on"].(bool); ok {
			data.On = &v
		}
		if v, ok := body["level"].(float64); ok {
			data.Level = &v
		}
	})
	return nil
}

// SendCommand implements remote.AlarmDevice for lock commands.
func (d *Device) SendCommand(_ context.Context, command string) error {
	d.record(d.Data().ID, "sendCommand", command)
	if d.SetInfoErr != nil {
		return d.SetInfoErr
	}
	switch command {
	case "lock.lock":
		d.update(func(data *remote.DeviceData) { data.LockStatus = "locked" })
	case "lock.unlock":
		d.update(func(data *remote.DeviceData) { data.LockStatus = "unlocked" })
	default:
		return fmt.Errorf("sim: unknown command %q", command)
	}
	return nil
}

// Camera is a simulated camera.
type Camera struct {
	recorder
	state      sync.Mutex
	data       remote.CameraData
	dings      chan remote.Ding
	subscribed bool
	// RefreshErr, when set, is returned by Refresh.
	RefreshErr error
}

// NewCamera creates a camera with a live ding subscription.
func NewCamera(data remote.CameraData) *Camera {
	return &Camera{
		data:       data,
		dings:      make(chan remote.Ding, streamBuffer),
		subscribed: true,
	}
}

func (c *Camera) setLocation(id string) {
	c.state.Lock()
	c.data.LocationID = id
	c.state.Unlock()
}

// Data implements remote.Camera.
func (c *Camera) Data() remote.CameraData {
	c.state.Lock()
	defer c.state.Unlock()
	return c.data
}

// Refresh implements remote.Camera.
func (c *Camera) Refresh(_ context.Context) (remote.CameraData, error) {
	if c.RefreshErr != nil {
		return remote.CameraData{}, c.RefreshErr
	}
	return c.Data(), nil
}

// Dings implements remote.Camera.
func (c *Camera) Dings() <-chan remote.Ding { return c.dings }

// Ding pushes an event on the ding stream. Events pushed while the
// subscription is down are lost.
func (c *Camera) Ding(kind string, at time.Time, expiresIn time.Duration) error {
	c.state.Lock()
	live := c.subscribed
	c.state.Unlock()
	if !live {
		return ErrNotSubscribed
	}
	c.dings <- remote.Ding{
		ID:         fmt.Sprintf("%s-%d", kind, at.UnixNano()),
		Kind:       kind,
		ObservedAt: at,
		ExpiresIn:  expiresIn,
	}
	return nil
}

// DropSubscription simulates a lost ding subscription.
func (c *Camera) DropSubscription() {
	c.state.Lock()
	c.subscribed = false
	c.state.Unlock()
}

// DingSubscribed implements remote.Camera.
func (c *Camera) DingSubscribed() bool {
	c.state.Lock()
	defer c.state.Unlock()
	return c.subscribed
}

// Resubscribe implements remote.Camera.
func (c *Camera) Resubscribe(_ context.Context) error {
	c.record(c.Data().ID, "resubscribe", "")
	c.state.Lock()
	c.subscribed = true
	c.state.Unlock()
	return nil
}

// SetLight implements remote.Camera.
func (c *Camera) SetLight(_ context.Context, on bool) error {
	c.record(c.Data().ID, "setLight", fmt.Sprint(on))
	c.state.Lock()
	defer c.state.Unlock()
	if on {
		c.data.LEDStatus = "on"
	} else {
		c.data.LEDStatus = "off"
	}
	return nil
}

// SetSiren implements remote.Camera.
func (c *Camera) SetSiren(_ context.Context, on bool) error {
	c.record(c.Data().ID, "setSiren", fmt.Sprint(on))
	c.state.Lock()
	defer c.state.Unlock()
	if on {
		c.data.SirenSecondsRemaining = 30
	} else {
		c.data.SirenSecondsRemaining = 0
	}
	return nil
}
