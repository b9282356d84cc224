package bridge

import (
	"context"

	"github.com/nerrad567/ringbridge/internal/clock"
	"github.com/nerrad567/ringbridge/internal/device"
	"github.com/nerrad567/ringbridge/internal/ding"
	"github.com/nerrad567/ringbridge/internal/remote"
)

// dingEvent is the live feed payload of a ding transition.
type dingEvent struct {
	LocationID string `json:"location_id"`
	DeviceID   string `json:"device_id"`
	Kind       string `json:"kind"`
	Active     bool   `json:"active"`
}

// processCamera registers cam or refreshes its handle. created is true when
// the camera was announced for the first time; h is nil when registration
// failed.
func (b *Bridge) processCamera(locationID string, cam remote.Camera) (h *handle, created bool) {
	data := cam.Data()
	id := device.Identity{LocationID: locationID, DeviceID: data.ID}
	var err error
	h, created, err = b.registry.LookupOrCreate(id, func() (*handle, error) {
		nh := &handle{
			id:       id,
			kind:     device.KindCamera,
			class:    classCamera,
			name:     data.Name,
			entities: cameraEntities(data),
			camera:   cam,
			settled:  make(chan struct{}),
		}
		bindTopics(b.topics, nh)
		nh.tracker = ding.NewTracker(b.ctx, b.clock, func(kind ding.Kind, active bool) {
			b.onDing(nh, kind, active)
		})
		nh.tracker.SetLogger(b.getLogger())
		return nh, nil
	})
	if err != nil {
		b.logWarn("camera registration failed", "device_id", data.ID, "error", err)
		return nil, false
	}

	if created {
		b.logInfo("camera registered",
			"location_id", locationID,
			"device_id", data.ID,
			"camera_kind", data.Kind,
			"name", data.Name,
		)
		b.announce(h)
		b.subscribeCommands(h)
		b.sup.Track(id, h.statusTopic)
		b.wg.Add(1)
		go b.consumeDings(h, cam)
		return h, true
	}

	h.setCameraDevice(cam)
	b.reannounce(h)
	return h, false
}

// consumeDings feeds cam's ding stream into the handle's tracker. It is the
// stream's only consumer and starts reading once the discovery settle has
// passed.
func (b *Bridge) consumeDings(h *handle, cam remote.Camera) {
	defer b.wg.Done()
	if !b.awaitSettle(h) {
		return
	}
	dings := cam.Dings()
	for {
		select {
		case <-b.ctx.Done():
			return
		case d, ok := <-dings:
			if !ok {
				return
			}
			kind := ding.Kind(d.Kind)
			if _, known := h.dingEntity(kind); !known {
				b.logDebug("ding ignored", "device_id", h.id.DeviceID, "kind", d.Kind)
				continue
			}
			b.logInfo("ding received",
				"device_id", h.id.DeviceID,
				"kind", d.Kind,
				"ding_id", d.ID,
				"expires_in", d.ExpiresIn.String(),
			)
			h.tracker.RecordEvent(kind, d.ObservedAt, d.ExpiresIn)
		}
	}
}

// onDing writes a ding transition to the bus. It bypasses the change gate
// so a re-trigger while active is published again.
func (b *Bridge) onDing(h *handle, kind ding.Kind, active bool) {
	e, ok := h.dingEntity(kind)
	if !ok {
		return
	}
	if err := b.publishDirect(e.stateTopic, []byte(device.OnOff(active)), false); err != nil {
		b.logPublishError(e.stateTopic, err)
	}
	if active {
		b.metrics.IncDing(string(kind))
	}
	b.history.WriteDing(h.id.LocationID, h.id.DeviceID, string(kind), active, b.clock.Now())
	b.events.Broadcast("ding", dingEvent{
		LocationID: h.id.LocationID,
		DeviceID:   h.id.DeviceID,
		Kind:       string(kind),
		Active:     active,
	})
}

// publishCameraState publishes the ding states from the tracker and the
// light and siren states from a fresh health poll.
func (b *Bridge) publishCameraState(ctx context.Context, h *handle) {
	for _, e := range h.entities {
		if e.dingKind == "" {
			continue
		}
		value := device.OnOff(h.tracker.QueryState(e.dingKind))
		if err := b.publishDirect(e.stateTopic, []byte(value), false); err != nil {
			b.logPublishError(e.stateTopic, err)
		}
	}
	b.refreshCamera(ctx, h)
}

// refreshCamera polls the camera and publishes its light and siren state
// through the change gate.
func (b *Bridge) refreshCamera(ctx context.Context, h *handle) {
	if !hasPolledEntities(h) {
		return
	}
	cam := h.cameraDevice()
	if cam == nil {
		return
	}
	data, err := cam.Refresh(ctx)
	if err != nil {
		b.logDebug("camera refresh failed", "device_id", h.id.DeviceID, "error", err)
		return
	}
	b.publishCameraValues(h, data)
}

func (b *Bridge) publishCameraValues(h *handle, data remote.CameraData) {
	for _, e := range h.entities {
		if e.cameraValue == nil {
			continue
		}
		if v, ok := e.cameraValue(data); ok {
			b.publishGated(b.state, h.id.String(), e.key, e.stateTopic, v)
		}
	}
}

func hasPolledEntities(h *handle) bool {
	for _, e := range h.entities {
		if e.cameraValue != nil {
			return true
		}
	}
	return false
}

// cameraHandles returns every registered camera.
func (b *Bridge) cameraHandles() []*handle {
	var out []*handle
	for _, h := range b.registry.All() {
		if h.class == classCamera {
			out = append(out, h)
		}
	}
	return out
}

// pollCameras refreshes light and siren state every poll interval.
func (b *Bridge) pollCameras() {
	defer b.wg.Done()
	for {
		if err := clock.Sleep(b.ctx, b.clock, b.poll); err != nil {
			return
		}
		if !b.busUp.Load() {
			continue
		}
		for _, h := range b.cameraHandles() {
			if h.isSettled() {
				b.refreshCamera(b.ctx, h)
			}
		}
	}
}

// watchDings resubscribes cameras whose ding subscription was lost.
func (b *Bridge) watchDings() {
	defer b.wg.Done()
	for {
		if err := clock.Sleep(b.ctx, b.clock, b.watchdog); err != nil {
			return
		}
		for _, h := range b.cameraHandles() {
			cam := h.cameraDevice()
			if cam == nil || cam.DingSubscribed() {
				continue
			}
			b.logWarn("ding subscription lost, resubscribing", "device_id", h.id.DeviceID)
			if err := cam.Resubscribe(b.ctx); err != nil {
				b.logWarn("ding resubscription failed", "device_id", h.id.DeviceID, "error", err)
			}
		}
	}
}
