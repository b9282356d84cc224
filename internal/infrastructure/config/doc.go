// Package config loads ringbridge settings from YAML, layers RINGBRIDGE_*
// environment variables on top, and validates the result.
//
// Durations in the file are whole seconds; use Seconds to convert them.
// Load starts from built-in defaults, so a sparse file only needs the values
// that differ.
//
// Keep the Ring refresh token and broker password out of the file where
// possible (RINGBRIDGE_RING_TOKEN, RINGBRIDGE_MQTT_PASSWORD), and restrict
// the file to mode 0600 when it does hold them.
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.MQTT.DiscoveryPrefix)
package config
