// Package bridge is the synchronization engine between a remote security
// account and the MQTT bus.
//
// The bridge walks every location of the account, registers each alarm
// device and camera exactly once in a device.Registry, announces it with
// retained discovery configs and then keeps its state topics current from
// the device's update and ding streams. Inbound command topics are routed
// back to the remote API, through a confirmation loop for commands that
// have no synchronous acknowledgement (alarm mode and locks).
//
// # Topic Layout
//
//	ring/<location>/<class>/<component>/<device>/state            (entity state)
//	ring/<location>/<class>/<component>/<device>/<entity>_state   (named entity state)
//	ring/<location>/<class>/<component>/<device>/command          (entity command)
//	ring/<location>/<class>/<component>/<device>/attributes       (battery, tamper)
//	ring/<location>/<class>/<component>/<device>/status           (availability)
//	ring/<location>/status                                         (location connectivity)
//	homeassistant/<component>/<location>/<device>_<entity>/config (discovery, retained)
//
// where class is "alarm" or "camera".
//
// # Publication Rules
//
// State and attribute publications go through a change gate, so a value is
// written only when it differs from the last one published. Discovery and
// availability go through a second, retained gate. Ding transitions are
// written directly: a new ding while already active is a user-visible
// re-trigger and must reach the bus even though the value is unchanged.
//
// While the bus is disconnected every publication is skipped and the gates
// keep their previous values, so the first pass after reconnection
// re-emits whatever changed in between.
//
// # Lifecycle
//
//	b, err := bridge.New(ctx, bridge.Options{Remote: account, Bus: client})
//	client.SetOnConnect(b.OnBusConnected)
//	client.SetOnDisconnect(func(error) { b.OnBusDisconnected() })
//	b.Start()
//	defer b.Shutdown()
//
// Shutdown stops every loop, publishes "offline" for every online device
// and location, and waits for in-flight commands to finish.
package bridge
