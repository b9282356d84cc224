package bridge

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/ringbridge/internal/device"
	"github.com/nerrad567/ringbridge/internal/ding"
	"github.com/nerrad567/ringbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/ringbridge/internal/remote"
)

// Gate attribute keys outside the per-entity ones.
const (
	attrAttributes     = "attributes"
	attrLocationStatus = "location_status"
	attrDiscovery      = "discovery_"
)

// Discovery components.
const (
	componentBinarySensor = "binary_sensor"
	componentAlarmPanel   = "alarm_control_panel"
	componentLock         = "lock"
	componentSwitch       = "switch"
	componentLight        = "light"
	componentFan          = "fan"
)

// Level scales.
const (
	scaleBrightness = "brightness"
	scalePercentage = "percentage"
)

// Availability payloads.
const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

func isDiscoveryAttribute(attribute string) bool {
	return strings.HasPrefix(attribute, attrDiscovery)
}

// entity is one consumer-visible facet of a device.
type entity struct {
	key         string
	component   string
	leaf        string
	deviceClass string
	command     bool
	// scale names the secondary level state/command pair, if any.
	scale string

	alarmValue  func(remote.DeviceData) (string, bool)
	levelValue  func(remote.DeviceData) (string, bool)
	cameraValue func(remote.CameraData) (string, bool)
	dingKind    ding.Kind

	stateTopic        string
	commandTopic      string
	levelStateTopic   string
	levelCommandTopic string
	discoveryTopic    string
}

// levelAttribute is the gate key of the entity's level value.
func (e *entity) levelAttribute() string {
	return e.key + "_" + e.scale
}

// handle is the registry's per-device record.
type handle struct {
	id              device.Identity
	kind            device.Kind
	class           string
	name            string
	attributes      bool
	entities        []*entity
	statusTopic     string
	attributesTopic string

	// tracker is set for cameras only.
	tracker *ding.Tracker

	// settled is closed once the discovery settle after the first announce
	// has passed. No state is published before.
	settled chan struct{}

	mu         sync.Mutex
	alarm      remote.AlarmDevice
	camera     remote.Camera
	subscribed bool
}

func (h *handle) isSettled() bool {
	select {
	case <-h.settled:
		return true
	default:
		return false
	}
}

func (h *handle) alarmDevice() remote.AlarmDevice {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alarm
}

func (h *handle) setAlarmDevice(d remote.AlarmDevice) {
	h.mu.Lock()
	h.alarm = d
	h.mu.Unlock()
}

func (h *handle) cameraDevice() remote.Camera {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.camera
}

func (h *handle) setCameraDevice(c remote.Camera) {
	h.mu.Lock()
	h.camera = c
	h.mu.Unlock()
}

// entityFor returns the entity with the given component and command leaf.
func (h *handle) entityFor(component, leaf string) (*entity, bool) {
	for _, e := range h.entities {
		if e.component != component {
			continue
		}
		if e.command && leafOf(e.commandTopic) == leaf {
			return e, true
		}
		if e.scale != "" && leafOf(e.levelCommandTopic) == leaf {
			return e, true
		}
	}
	return nil, false
}

// dingEntity returns the entity publishing kind.
func (h *handle) dingEntity(kind ding.Kind) (*entity, bool) {
	for _, e := range h.entities {
		if e.dingKind == kind {
			return e, true
		}
	}
	return nil, false
}

func leafOf(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// bindTopics fills every topic of h's entities. The first entity's base
// carries the device's availability and attributes topics.
func bindTopics(t mqtt.Topics, h *handle) {
	for i, e := range h.entities {
		base := t.DeviceBase(h.id.LocationID, h.class, e.component, h.id.DeviceID)
		if i == 0 {
			h.statusTopic = t.DeviceStatus(base)
			h.attributesTopic = t.Attributes(base)
		}
		e.stateTopic = t.EntityState(base, e.leaf)
		if e.command {
			e.commandTopic = t.EntityCommand(base, e.leaf)
		}
		if e.scale != "" {
			e.levelStateTopic = t.EntityState(base, e.scale)
			e.levelCommandTopic = t.EntityCommand(base, e.scale)
		}
		e.discoveryTopic = t.Discovery(e.component, h.id.LocationID, h.id.DeviceID, e.key)
	}
}

// =============================================================================
// Entity Tables
// =============================================================================

func faulted(d remote.DeviceData) (string, bool) { return device.OnOff(d.Faulted), true }

func active(status string) (string, bool) { return device.OnOff(status == "active"), true }

func switchOn(d remote.DeviceData) (string, bool) {
	if d.On == nil {
		return "", false
	}
	return device.OnOff(*d.On), true
}

func levelPercent(d remote.DeviceData) (string, bool) {
	if d.Level == nil {
		return "", false
	}
	return strconv.Itoa(int(math.Round(*d.Level * 100))), true
}

// alarmEntities returns the entities of an alarm device kind.
func alarmEntities(kind device.Kind) []*entity {
	switch kind {
	case device.KindContact:
		return []*entity{{key: "contact", component: componentBinarySensor, deviceClass: "door", alarmValue: faulted}}
	case device.KindMotion:
		return []*entity{{key: "motion", component: componentBinarySensor, deviceClass: "motion", alarmValue: faulted}}
	case device.KindFloodFreeze:
		return []*entity{
			{key: "flood", component: componentBinarySensor, leaf: "flood", deviceClass: "moisture", alarmValue: faulted},
			{key: "freeze", component: componentBinarySensor, leaf: "freeze", deviceClass: "cold",
				alarmValue: func(d remote.DeviceData) (string, bool) { return device.OnOff(d.Freeze), true }},
		}
	case device.KindSmoke:
		return []*entity{{key: "smoke", component: componentBinarySensor, deviceClass: "smoke",
			alarmValue: func(d remote.DeviceData) (string, bool) { return active(d.AlarmStatus) }}}
	case device.KindCO:
		return []*entity{{key: "co", component: componentBinarySensor, deviceClass: "gas",
			alarmValue: func(d remote.DeviceData) (string, bool) { return active(d.AlarmStatus) }}}
	case device.KindSmokeCO:
		return []*entity{
			{key: "smoke", component: componentBinarySensor, leaf: "smoke", deviceClass: "smoke",
				alarmValue: func(d remote.DeviceData) (string, bool) { return active(d.SmokeStatus) }},
			{key: "co", component: componentBinarySensor, leaf: "co", deviceClass: "gas",
				alarmValue: func(d remote.DeviceData) (string, bool) { return active(d.COStatus) }},
		}
	case device.KindSecurityPanel:
		return []*entity{{key: "alarm", component: componentAlarmPanel, command: true,
			alarmValue: func(d remote.DeviceData) (string, bool) {
				mode := device.AlarmModeFromRemote(d.Mode)
				return mode.String(), mode != device.AlarmModeUnknown
			}}}
	case device.KindLock:
		return []*entity{{key: "lock", component: componentLock, command: true,
			alarmValue: func(d remote.DeviceData) (string, bool) {
				return device.LockStateFromRemote(d.LockStatus).String(), true
			}}}
	case device.KindSwitch:
		return []*entity{{key: "switch", component: componentSwitch, command: true, alarmValue: switchOn}}
	case device.KindMultiLevelSwitch:
		return []*entity{{key: "light", component: componentLight, command: true, scale: scaleBrightness,
			alarmValue: switchOn, levelValue: levelPercent}}
	case device.KindFan:
		return []*entity{{key: "fan", component: componentFan, command: true, scale: scalePercentage,
			alarmValue: switchOn, levelValue: levelPercent}}
	}
	return nil
}

// cameraEntities returns the entities a camera exposes given its
// capabilities.
func cameraEntities(data remote.CameraData) []*entity {
	out := []*entity{{key: "motion", component: componentBinarySensor, leaf: "motion", deviceClass: "motion", dingKind: ding.KindMotion}}
	if data.IsDoorbot {
		out = append(out, &entity{key: "ding", component: componentBinarySensor, leaf: "ding", deviceClass: "occupancy", dingKind: ding.KindDing})
	}
	if data.HasLight {
		out = append(out, &entity{key: "light", component: componentLight, command: true,
			cameraValue: func(c remote.CameraData) (string, bool) { return device.OnOff(c.LightOn()), true }})
	}
	if data.HasSiren {
		out = append(out, &entity{key: "siren", component: componentSwitch, command: true,
			cameraValue: func(c remote.CameraData) (string, bool) { return device.OnOff(c.SirenOn()), true }})
	}
	return out
}

// =============================================================================
// Discovery
// =============================================================================

// discoveryConfig is the retained discovery payload of one entity.
type discoveryConfig struct {
	Name                   string `json:"name"`
	UniqueID               string `json:"unique_id"`
	AvailabilityTopic      string `json:"availability_topic"`
	PayloadAvailable       string `json:"payload_available"`
	PayloadNotAvailable    string `json:"payload_not_available"`
	StateTopic             string `json:"state_topic,omitempty"`
	DeviceClass            string `json:"device_class,omitempty"`
	CommandTopic           string `json:"command_topic,omitempty"`
	JSONAttributesTopic    string `json:"json_attributes_topic,omitempty"`
	BrightnessStateTopic   string `json:"brightness_state_topic,omitempty"`
	BrightnessCommandTopic string `json:"brightness_command_topic,omitempty"`
	BrightnessScale        int    `json:"brightness_scale,omitempty"`
	PercentageStateTopic   string `json:"percentage_state_topic,omitempty"`
	PercentageCommandTopic string `json:"percentage_command_topic,omitempty"`
}

// discoveryPayload renders e's discovery config.
func discoveryPayload(h *handle, e *entity) ([]byte, error) {
	name := h.name
	if len(h.entities) > 1 {
		name = h.name + " " + strings.ToUpper(e.key[:1]) + e.key[1:]
	}
	cfg := discoveryConfig{
		Name:                name,
		UniqueID:            h.id.DeviceID + "_" + e.key,
		AvailabilityTopic:   h.statusTopic,
		PayloadAvailable:    payloadOnline,
		PayloadNotAvailable: payloadOffline,
		StateTopic:          e.stateTopic,
		DeviceClass:         e.deviceClass,
		CommandTopic:        e.commandTopic,
	}
	if h.attributes {
		cfg.JSONAttributesTopic = h.attributesTopic
	}
	switch e.scale {
	case scaleBrightness:
		cfg.BrightnessStateTopic = e.levelStateTopic
		cfg.BrightnessCommandTopic = e.levelCommandTopic
		cfg.BrightnessScale = 100
	case scalePercentage:
		cfg.PercentageStateTopic = e.levelStateTopic
		cfg.PercentageCommandTopic = e.levelCommandTopic
	}
	return json.Marshal(cfg)
}

// deviceAttributes is the JSON attributes payload of an alarm device.
type deviceAttributes struct {
	BatteryLevel *int   `json:"battery_level,omitempty"`
	TamperStatus string `json:"tamper_status,omitempty"`
}

// attributesPayload renders the attributes of d. ok is false when the
// device reports neither battery nor tamper information.
func attributesPayload(d remote.DeviceData) (payload string, ok bool) {
	var attrs deviceAttributes
	if d.HasBattery() {
		if level, known := device.Battery(d.BatteryLevel, d.BatteryStatus); known {
			attrs.BatteryLevel = &level
		}
	}
	if d.TamperStatus != "" {
		attrs.TamperStatus = device.TamperStatus(d.TamperStatus)
	}
	if attrs.BatteryLevel == nil && attrs.TamperStatus == "" {
		return "", false
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", false
	}
	return string(data), true
}
