// Package remote declares the remote device API the engine consumes.
//
// The engine treats every stream and call here as already connected and
// authenticated. Each stream (Updates, Dings, Connectivity) is consumed by
// exactly one goroutine: the one started by whoever created the device's
// handle in the registry.
package remote
