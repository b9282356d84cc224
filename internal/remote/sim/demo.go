package sim

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/nerrad567/ringbridge/internal/remote"
)

// dingWindow is the expiry the remote service attaches to dings.
const dingWindow = 180 * time.Second

// Demo builds an account with one location carrying an alarm, a spread of
// sensors and a doorbell camera.
func Demo(locationID string) *Account {
	loc := NewLocation(locationID, "Home", true)
	level := 87
	loc.AddDevice(NewDevice(remote.DeviceData{
		ID: "panel-1", Name: "Alarm", DeviceType: "security-panel", BatteryStatus: "full",
	}))
	loc.AddDevice(NewDevice(remote.DeviceData{
		ID: "contact-1", Name: "Front Door", DeviceType: "sensor.contact",
		BatteryLevel: &level, TamperStatus: "ok",
	}))
	loc.AddDevice(NewDevice(remote.DeviceData{
		ID: "motion-1", Name: "Hallway Motion", DeviceType: "sensor.motion", BatteryStatus: "ok",
	}))
	loc.AddDevice(NewDevice(remote.DeviceData{
		ID: "smoke-co-1", Name: "Kitchen Listener", DeviceType: "listener.smoke-co", BatteryStatus: "none",
	}))
	loc.AddDevice(NewDevice(remote.DeviceData{
		ID: "lock-1", Name: "Back Door Lock", DeviceType: "lock.kwikset", LockStatus: "locked", BatteryStatus: "ok",
	}))
	loc.AddCamera(NewCamera(remote.CameraData{
		ID: "cam-1", Name: "Front Doorbell", Kind: "doorbell_v3", IsDoorbot: true,
		HasLight: false, HasSiren: false, LEDStatus: "off",
	}))
	loc.AddCamera(NewCamera(remote.CameraData{
		ID: "cam-2", Name: "Driveway", Kind: "floodlight_v2",
		HasLight: true, HasSiren: true, LEDStatus: "off",
	}))
	return NewAccount(loc)
}

// Run reports every location connected, then generates random sensor
// activity and dings every interval until ctx ends.
func (a *Account) Run(ctx context.Context, interval time.Duration) {
	a.mu.Lock()
	locs := append([]*Location(nil), a.locations...)
	a.mu.Unlock()

	for _, l := range locs {
		if l.hasAlarm {
			l.SetConnected(true)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, l := range locs {
			l.tick()
		}
	}
}

func (l *Location) tick() {
	l.state.Lock()
	devices := append([]*Device(nil), l.devices...)
	cameras := append([]*Camera(nil), l.cameras...)
	l.state.Unlock()

	if len(devices) > 0 {
		d := devices[rand.IntN(len(devices))]
		switch d.Data().DeviceType {
		case "sensor.contact", "sensor.motion", "sensor.zone":
			d.Update(func(data *remote.DeviceData) { data.Faulted = !data.Faulted })
		}
	}
	if len(cameras) > 0 && rand.IntN(4) == 0 {
		c := cameras[rand.IntN(len(cameras))]
		kind := "motion"
		if c.Data().IsDoorbot && rand.IntN(3) == 0 {
			kind = "ding"
		}
		//nolint:errcheck // events are lost while the subscription is down
		c.Ding(kind, time.Now(), dingWindow)
	}
}
