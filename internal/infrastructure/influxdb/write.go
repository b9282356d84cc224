package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementState    = "device_state"
	MeasurementDing     = "ding"
	MeasurementCommand  = "command"
	MeasurementLocation = "location_status"
)

// WriteState records one change-gated publication. attribute names the
// published topic leaf ("state", "battery", "availability", ...).
func (c *Client) WriteState(locationID, deviceID, attribute, value string, at time.Time) {
	c.writePoint(MeasurementState,
		map[string]string{
			"location_id": locationID,
			"device_id":   deviceID,
			"attribute":   attribute,
		},
		map[string]any{"value": value},
		at,
	)
}

// WriteDing records a motion or ding transition of a camera.
func (c *Client) WriteDing(locationID, deviceID, kind string, active bool, at time.Time) {
	c.writePoint(MeasurementDing,
		map[string]string{
			"location_id": locationID,
			"device_id":   deviceID,
			"kind":        kind,
		},
		map[string]any{"active": active},
		at,
	)
}

// WriteCommand records the outcome of an inbound command.
func (c *Client) WriteCommand(locationID, deviceID, command, outcome string, attempts int, duration time.Duration, at time.Time) {
	c.writePoint(MeasurementCommand,
		map[string]string{
			"location_id": locationID,
			"device_id":   deviceID,
			"command":     command,
			"outcome":     outcome,
		},
		map[string]any{
			"attempts":    attempts,
			"duration_ms": duration.Milliseconds(),
		},
		at,
	)
}

// WriteLocationStatus records a location connectivity change.
func (c *Client) WriteLocationStatus(locationID string, connected bool, at time.Time) {
	c.writePoint(MeasurementLocation,
		map[string]string{"location_id": locationID},
		map[string]any{"connected": connected},
		at,
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() || c.points == nil {
		return
	}
	c.points.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
