package mqtt

import "errors"

// Sentinel errors; compare with errors.Is.
var (
	// ErrNotConnected means the broker is unreachable right now. Callers
	// that publish state treat it as "skip, the reconnect will republish".
	ErrNotConnected = errors.New("mqtt: client not connected")

	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrReconnectGaveUp   = errors.New("mqtt: reconnect attempts exhausted")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects an empty topic or filter.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
