package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrNilBus is returned by New when no bus is supplied.
	ErrNilBus = errors.New("bridge: bus is required")

	// ErrNilRemote is returned by New when no remote client is supplied.
	ErrNilRemote = errors.New("bridge: remote client is required")

	// ErrInvalidTopic is returned for an inbound topic that does not have
	// the command topic shape.
	ErrInvalidTopic = errors.New("bridge: invalid command topic")

	// ErrUnknownDevice is returned for a command addressed to a device that
	// is not registered.
	ErrUnknownDevice = errors.New("bridge: unknown device")

	// ErrUnknownCommand is returned when a device kind has no handler for
	// the command.
	ErrUnknownCommand = errors.New("bridge: unknown command")

	// ErrUnknownLocation is returned when a command resolves a location the
	// bridge has not seen.
	ErrUnknownLocation = errors.New("bridge: unknown location")
)
