package bridge

import (
	"context"
	"errors"

	"github.com/nerrad567/ringbridge/internal/clock"
	"github.com/nerrad567/ringbridge/internal/device"
	"github.com/nerrad567/ringbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/ringbridge/internal/remote"
)

// Device classes in the topic tree.
const (
	classAlarm  = mqtt.ClassAlarm
	classCamera = mqtt.ClassCamera
)

// processAlarmDevice registers dev or refreshes its handle. created is true
// when the device was announced for the first time; h is nil for a skipped
// device.
func (b *Bridge) processAlarmDevice(locationID string, dev remote.AlarmDevice) (h *handle, created bool) {
	data := dev.Data()
	kind, err := device.KindFromRemote(data.DeviceType, data.CategoryID)
	if err != nil {
		b.logDebug("alarm device skipped",
			"location_id", locationID,
			"device_id", data.ID,
			"device_type", data.DeviceType,
		)
		return nil, false
	}

	id := device.Identity{LocationID: locationID, DeviceID: data.ID}
	h, created, err = b.registry.LookupOrCreate(id, func() (*handle, error) {
		_, attrs := attributesPayload(data)
		nh := &handle{
			id:         id,
			kind:       kind,
			class:      classAlarm,
			name:       data.Name,
			attributes: attrs,
			entities:   alarmEntities(kind),
			alarm:      dev,
			settled:    make(chan struct{}),
		}
		bindTopics(b.topics, nh)
		return nh, nil
	})
	if err != nil {
		b.logWarn("alarm device registration failed", "device_id", data.ID, "error", err)
		return nil, false
	}

	if created {
		b.logInfo("alarm device registered",
			"location_id", locationID,
			"device_id", data.ID,
			"kind", string(kind),
			"name", data.Name,
		)
		b.announce(h)
		b.subscribeCommands(h)
		b.sup.Track(id, h.statusTopic)
		b.wg.Add(1)
		go b.consumeUpdates(h, dev)
		return h, true
	}

	h.setAlarmDevice(dev)
	b.reannounce(h)
	return h, false
}

// consumeUpdates publishes every snapshot from dev's update stream. It is
// the stream's only consumer. Nothing is read before the discovery settle
// has passed, so state never precedes the config announced for it.
func (b *Bridge) consumeUpdates(h *handle, dev remote.AlarmDevice) {
	defer b.wg.Done()
	if !b.awaitSettle(h) {
		return
	}
	updates := dev.Updates()
	for {
		select {
		case <-b.ctx.Done():
			return
		case data, ok := <-updates:
			if !ok {
				return
			}
			b.logDebug("alarm device update", "device_id", h.id.DeviceID)
			b.publishAlarmState(h, data)
		}
	}
}

// publishAlarmState publishes every entity state and the attributes of an
// alarm device through the change gate.
func (b *Bridge) publishAlarmState(h *handle, data remote.DeviceData) {
	key := h.id.String()
	for _, e := range h.entities {
		if e.alarmValue != nil {
			if v, ok := e.alarmValue(data); ok {
				b.publishGated(b.state, key, e.key, e.stateTopic, v)
			}
		}
		if e.levelValue != nil {
			if v, ok := e.levelValue(data); ok {
				b.publishGated(b.state, key, e.levelAttribute(), e.levelStateTopic, v)
			}
		}
	}
	if v, ok := attributesPayload(data); ok {
		b.publishGated(b.state, key, attrAttributes, h.attributesTopic, v)
	}
}

// announce publishes the retained discovery config of every entity of h.
func (b *Bridge) announce(h *handle) {
	for _, e := range h.entities {
		payload, err := discoveryPayload(h, e)
		if err != nil {
			b.logError("discovery encoding failed", "device_id", h.id.DeviceID, "entity", e.key, "error", err)
			continue
		}
		b.publishGated(b.retained, h.id.String(), attrDiscovery+e.key, e.discoveryTopic, string(payload))
	}
}

// reannounce republishes the discovery config of a known device and forces
// its state to be published again on the next write. Availability is
// republished by the pass once that state is out.
func (b *Bridge) reannounce(h *handle) {
	key := h.id.String()
	for _, e := range h.entities {
		b.retained.ForceRepublish(key, attrDiscovery+e.key)
	}
	b.announce(h)
	b.subscribeCommands(h)
	b.state.ForceRepublishDevice(key)
}

// awaitSettle holds a new device's stream consumer until the discovery
// settle has passed, then releases every waiter on the handle. It returns
// false when the bridge stops first.
func (b *Bridge) awaitSettle(h *handle) bool {
	if err := clock.Sleep(b.ctx, b.clock, b.settle); err != nil {
		return false
	}
	close(h.settled)
	return true
}

// waitSettled blocks until h has settled. It returns false when ctx or the
// bridge ends first.
func (b *Bridge) waitSettled(ctx context.Context, h *handle) bool {
	select {
	case <-h.settled:
		return true
	case <-ctx.Done():
		return false
	case <-b.ctx.Done():
		return false
	}
}

// subscribeCommands subscribes every command topic of h. A failed
// subscription is retried on the next pass.
func (b *Bridge) subscribeCommands(h *handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribed {
		return
	}
	for _, e := range h.entities {
		for _, topic := range []string{e.commandTopic, e.levelCommandTopic} {
			if topic == "" {
				continue
			}
			if err := b.bus.Subscribe(topic, b.qos, b.HandleMessage); err != nil {
				if !errors.Is(err, mqtt.ErrNotConnected) {
					b.logWarn("command subscription failed", "topic", topic, "error", err)
				}
				return
			}
		}
	}
	h.subscribed = true
}

// publishState publishes the current state of h.
func (b *Bridge) publishState(ctx context.Context, h *handle) {
	switch h.class {
	case classAlarm:
		if dev := h.alarmDevice(); dev != nil {
			b.publishAlarmState(h, dev.Data())
		}
	case classCamera:
		b.publishCameraState(ctx, h)
	}
}
