// Package publish suppresses redundant bus publications.
//
// A Gate remembers the last value emitted for every (device, attribute)
// pair and only forwards a publication when the value differs. The cache is
// a write filter, never a source of truth: ForceRepublish drops an entry so
// the next publication goes out unconditionally.
//
// The gate never talks to the transport itself; it forwards through the
// Emitter it was constructed with.
package publish
