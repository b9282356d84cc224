package publish

import "errors"

// ErrNilEmitter is returned when a Gate is constructed without an emitter.
var ErrNilEmitter = errors.New("publish: emitter is required")
