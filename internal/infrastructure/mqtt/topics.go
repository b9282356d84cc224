package mqtt

import (
	"fmt"
	"strings"
)

// Default topic roots.
const (
	// DefaultTopicPrefix is the root of every device and location topic.
	DefaultTopicPrefix = "ring"

	// DefaultDiscoveryPrefix is the root the consumer scans for entity configs.
	DefaultDiscoveryPrefix = "homeassistant"
)

// Device classes used as the third topic segment.
const (
	ClassAlarm  = "alarm"
	ClassCamera = "camera"
)

// Topics provides builders for bridge MQTT topics.
//
//	topics := mqtt.NewTopics("ring", "homeassistant")
//	base := topics.DeviceBase("loc-1", mqtt.ClassAlarm, "lock", "dev-9")
//	// Returns: "ring/loc-1/alarm/lock/dev-9"
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
}

// NewTopics returns a builder, substituting defaults for empty roots.
func NewTopics(prefix, discoveryPrefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	discoveryPrefix = strings.Trim(discoveryPrefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if discoveryPrefix == "" {
		discoveryPrefix = DefaultDiscoveryPrefix
	}
	return Topics{Prefix: prefix, DiscoveryPrefix: discoveryPrefix}
}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceBase returns the root topic of one entity of a device.
//
// Example: ring/loc-1/camera/light/cam-3
func (t Topics) DeviceBase(locationID, class, component, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", t.Prefix, locationID, class, component, deviceID)
}

// DeviceStatus returns the availability topic of a device.
//
// Example: ring/loc-1/alarm/lock/dev-9/status
func (t Topics) DeviceStatus(base string) string {
	return base + "/status"
}

// Attributes returns the JSON attributes topic of a device.
//
// Example: ring/loc-1/alarm/binary_sensor/dev-2/attributes
func (t Topics) Attributes(base string) string {
	return base + "/attributes"
}

// EntityState returns the state topic of a named entity under base.
// An empty entity yields the plain "state" leaf.
//
// Example: ring/loc-1/alarm/binary_sensor/dev-4/flood_state
func (t Topics) EntityState(base, entity string) string {
	if entity == "" {
		return base + "/state"
	}
	return base + "/" + entity + "_state"
}

// EntityCommand returns the command topic of a named entity under base.
// An empty entity yields the plain "command" leaf.
//
// Example: ring/loc-1/alarm/light/dev-5/brightness_command
func (t Topics) EntityCommand(base, entity string) string {
	if entity == "" {
		return base + "/command"
	}
	return base + "/" + entity + "_command"
}

// =============================================================================
// Location and Bridge Topics
// =============================================================================

// LocationStatus returns the availability topic of a location.
//
// Example: ring/loc-1/status
func (t Topics) LocationStatus(locationID string) string {
	return fmt.Sprintf("%s/%s/status", t.Prefix, locationID)
}

// BridgeStatus returns the bridge process status topic carrying the LWT.
//
// Example: ring/bridge/status
func (t Topics) BridgeStatus() string {
	return t.Prefix + "/bridge/status"
}

// =============================================================================
// Discovery Topics
// =============================================================================

// Discovery returns the retained discovery config topic for one entity.
//
// Example: homeassistant/binary_sensor/loc-1/dev-4_flood/config
func (t Topics) Discovery(component, locationID, deviceID, entity string) string {
	return fmt.Sprintf("%s/%s/%s/%s_%s/config", t.DiscoveryPrefix, component, locationID, deviceID, entity)
}
