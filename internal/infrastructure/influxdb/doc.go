// Package influxdb records bridge history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. The engine sends it
// every change-gated state publication, every motion and ding transition,
// location connectivity changes and the outcome of each inbound command.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	client.WriteDing("loc-1", "cam-2", "motion", true, time.Now())
//
// # Measurements
//
//   - device_state: tags location_id, device_id, attribute; field value
//   - ding: tags location_id, device_id, kind; field active
//   - command: tags location_id, device_id, command, outcome; fields attempts, duration_ms
//   - location_status: tag location_id; field connected
package influxdb
