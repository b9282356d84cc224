// Package availability tracks whether each device is reachable and owns
// the lifecycle of its availability topic.
//
// Every device is bistable: Offline (initial, and terminal on shutdown) or
// Online. Location connectivity events drive all devices at that location;
// the transition table in state.go is the single source of truth for which
// event moves a device where.
//
// Going Online is delayed by a settle period so discovery and state reach
// the consumer before the device is marked available. A disconnect during
// the settle period cancels the pending Online.
//
// Publications go through the change gate; failures are logged and not
// retried.
package availability
