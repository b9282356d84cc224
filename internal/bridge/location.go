package bridge

import (
	"context"

	"github.com/nerrad567/ringbridge/internal/remote"
)

// PublishAll runs one discovery and state pass over every location. It is
// the republish scheduler's pass function and is idempotent: known devices
// are republished, never re-subscribed.
func (b *Bridge) PublishAll(ctx context.Context) {
	locs, err := b.remote.Locations(ctx)
	if err != nil {
		b.logWarn("location listing failed", "error", err)
		return
	}
	for _, loc := range locs {
		if ctx.Err() != nil {
			return
		}
		if !b.allowedLocation(loc.ID()) {
			continue
		}
		b.processLocation(ctx, loc)
	}
}

func (b *Bridge) allowedLocation(id string) bool {
	if len(b.allowed) == 0 {
		return true
	}
	_, ok := b.allowed[id]
	return ok
}

// location returns a location seen by an earlier pass.
func (b *Bridge) location(id string) (remote.Location, bool) {
	b.locMu.RLock()
	defer b.locMu.RUnlock()
	loc, ok := b.locations[id]
	return loc, ok
}

// processLocation publishes discovery and state for every device at loc.
func (b *Bridge) processLocation(ctx context.Context, loc remote.Location) {
	id := loc.ID()
	b.locMu.Lock()
	b.locations[id] = loc
	b.locMu.Unlock()

	b.watchLocation(loc)

	// known devices get their availability republished once their state is
	// out; new ones go online through the supervisor's settle.
	var known []*handle
	note := func(h *handle, created bool) {
		if h != nil && !created {
			known = append(known, h)
		}
	}

	if loc.HasAlarm() && b.sup.Connected(id) {
		devices, err := loc.Devices(ctx)
		if err != nil {
			b.logWarn("device listing failed", "location_id", id, "error", err)
		}
		for _, dev := range devices {
			note(b.processAlarmDevice(id, dev))
		}
	} else if loc.HasAlarm() {
		b.logDebug("alarm devices skipped, location disconnected", "location_id", id)
	}

	if b.cameras {
		cams, err := loc.Cameras(ctx)
		if err != nil {
			b.logWarn("camera listing failed", "location_id", id, "error", err)
		}
		for _, cam := range cams {
			note(b.processCamera(id, cam))
		}
	}
	b.metrics.SetDevices(b.registry.Len())

	for _, h := range b.registry.ByLocation(id) {
		if !b.waitSettled(ctx, h) {
			return
		}
		b.publishState(ctx, h)
	}
	for _, h := range known {
		b.sup.Republish(h.id)
	}
}

// watchLocation registers loc's connectivity listener exactly once.
// Locations without an alarm have no connectivity stream and count as
// connected.
func (b *Bridge) watchLocation(loc remote.Location) {
	id := loc.ID()
	if !b.sup.MarkSubscribed(id) {
		return
	}
	if !loc.HasAlarm() {
		b.locationUp(id)
		return
	}

	b.logInfo("watching location connectivity", "location_id", id, "name", loc.Name())
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		stream := loc.Connectivity()
		for {
			select {
			case <-b.ctx.Done():
				return
			case connected, ok := <-stream:
				if !ok {
					return
				}
				if connected {
					b.locationUp(id)
					b.processLocation(b.ctx, loc)
				} else {
					b.locationDown(id)
				}
			}
		}
	}()
}

func (b *Bridge) locationUp(id string) {
	if b.sup.Connected(id) {
		return
	}
	b.logInfo("location connected", "location_id", id)
	b.sup.LocationConnected(id)
	b.publishLocationStatus(id, true)
}

func (b *Bridge) locationDown(id string) {
	if !b.sup.Connected(id) {
		return
	}
	b.logWarn("location disconnected", "location_id", id)
	b.sup.LocationDisconnected(id)
	b.publishLocationStatus(id, false)
}

// publishLocationStatus publishes the retained location status and records
// the change.
func (b *Bridge) publishLocationStatus(id string, connected bool) {
	value := payloadOffline
	if connected {
		value = payloadOnline
	}
	b.publishGated(b.retained, id, attrLocationStatus, b.topics.LocationStatus(id), value)
	b.history.WriteLocationStatus(id, connected, b.clock.Now())
	b.metrics.SetLocationsConnected(b.connectedLocations())
}

func (b *Bridge) connectedLocations() int {
	b.locMu.RLock()
	defer b.locMu.RUnlock()
	n := 0
	for id := range b.locations {
		if b.sup.Connected(id) {
			n++
		}
	}
	return n
}
