// Package mqtt provides the message-bus connection of the bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions restored after every reconnect
//   - Last Will and Testament on the bridge status topic
//   - Topic builders for device, location and discovery topics
//
// # Topic Layout
//
//	<prefix>/<location>/<alarm|camera>/<component>/<device>/<leaf>
//	<prefix>/<location>/status
//	<prefix>/bridge/status
//	<discovery_prefix>/<component>/<location>/<device>_<entity>/config
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnConnect(func() { scheduler.Start(ctx) })
//	base := client.Topics().DeviceBase(locID, mqtt.ClassAlarm, "lock", devID)
//	client.Publish(client.Topics().EntityState(base, ""), []byte("LOCKED"), 1, false)
package mqtt
