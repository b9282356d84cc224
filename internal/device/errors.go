package device

import "errors"

// Domain errors for the device package.
var (
	// ErrNilFactory is returned when LookupOrCreate must create a handle
	// but no factory was supplied.
	ErrNilFactory = errors.New("device: factory is required")

	// ErrInvalidIdentity is returned for an identity with an empty field.
	ErrInvalidIdentity = errors.New("device: invalid identity")

	// ErrUnsupportedKind is returned when a remote device type has no
	// representation.
	ErrUnsupportedKind = errors.New("device: unsupported kind")
)
