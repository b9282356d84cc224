package remote

import (
	"context"
	"time"
)

// Client is the entry point to a remote account.
type Client interface {
	Locations(ctx context.Context) ([]Location, error)
}

// Location is a site with an optional alarm and any number of cameras.
type Location interface {
	ID() string
	Name() string
	// HasAlarm reports whether the location has an alarm base station.
	HasAlarm() bool
	// Devices returns a freshly refreshed alarm device listing.
	Devices(ctx context.Context) ([]AlarmDevice, error)
	Cameras(ctx context.Context) ([]Camera, error)
	// Connectivity streams alarm connection changes.
	Connectivity() <-chan bool

	Disarm(ctx context.Context) error
	ArmHome(ctx context.Context) error
	ArmAway(ctx context.Context) error
	// AlarmMode fetches the current mode: "none", "some" or "all".
	AlarmMode(ctx context.Context) (string, error)
}

// AlarmDevice is a device attached to a location's alarm.
type AlarmDevice interface {
	Data() DeviceData
	Updates() <-chan DeviceData
	// SetInfo sends a v1 device body, e.g. {"on": true} or {"level": 0.4}.
	SetInfo(ctx context.Context, body map[string]any) error
	// SendCommand issues a named command such as "lock.lock".
	SendCommand(ctx context.Context, command string) error
}

// Camera is a doorbell, floodlight or stick-up camera.
type Camera interface {
	Data() CameraData
	// Refresh polls the camera's health, returning light and siren state.
	Refresh(ctx context.Context) (CameraData, error)
	Dings() <-chan Ding
	SetLight(ctx context.Context, on bool) error
	SetSiren(ctx context.Context, on bool) error
	// DingSubscribed reports whether the ding stream is live.
	DingSubscribed() bool
	Resubscribe(ctx context.Context) error
}

// DeviceData is a snapshot of an alarm device.
type DeviceData struct {
	ID         string
	LocationID string
	Name       string
	DeviceType string
	CategoryID int

	BatteryLevel  *int
	BatteryStatus string
	TamperStatus  string

	// Faulted is the contact/motion/flood state.
	Faulted bool
	// Freeze is the freeze half of a flood/freeze sensor.
	Freeze bool
	// AlarmStatus is "active" while a smoke or CO alarm sounds.
	AlarmStatus string
	// SmokeStatus and COStatus are the two halves of a smoke/CO listener.
	SmokeStatus string
	COStatus    string

	// Mode is the security panel mode: "none", "some" or "all".
	Mode string
	// LockStatus is "locked", "unlocked" or "jammed".
	LockStatus string

	On    *bool
	Level *float64 // 0..1
}

// HasBattery reports whether the device reports any battery information.
func (d DeviceData) HasBattery() bool {
	return d.BatteryLevel != nil || d.BatteryStatus != ""
}

// CameraData is a snapshot of a camera.
type CameraData struct {
	ID         string
	LocationID string
	Name       string
	Kind       string
	IsDoorbot  bool
	HasLight   bool
	HasSiren   bool

	// LEDStatus is "on" or "off".
	LEDStatus string
	// SirenSecondsRemaining is positive while the siren sounds.
	SirenSecondsRemaining int
}

// LightOn reports whether the camera's light is on.
func (c CameraData) LightOn() bool {
	return c.LEDStatus == "on"
}

// SirenOn reports whether the camera's siren is sounding.
func (c CameraData) SirenOn() bool {
	return c.SirenSecondsRemaining > 0
}

// Ding is one motion or doorbell event.
type Ding struct {
	ID   string
	Kind string // "motion" or "ding"
	// ObservedAt is the server timestamp of the event.
	ObservedAt time.Time
	ExpiresIn  time.Duration
}
