package audit

import "errors"

// ErrNotFound is returned when a command record does not exist.
var ErrNotFound = errors.New("audit: command record not found")
