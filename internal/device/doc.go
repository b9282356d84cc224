// Package device holds the in-memory directory of represented remote
// devices and the device model shared by the engine.
//
// # Registry
//
// Registry maps a (location, device) identity to the single handle the
// engine created for it. LookupOrCreate is check-then-create as one atomic
// step: however many discovery passes race on the same identity, the
// factory runs once and every caller gets the same handle. Registration is
// append-only; devices that disappear upstream simply stop receiving
// updates.
//
// The caller that receives created == true owns the handle's stream
// subscriptions. This is how the engine guarantees at most one active
// subscription per device stream.
//
// # Model
//
//   - Kind: the device classes the engine represents, mapped from the
//     remote device type by KindFromRemote
//   - AlarmMode, LockState: explicit state enums for stateful devices
//   - Battery: battery level normalisation
//
// # Usage
//
//	reg := device.NewRegistry[*handle]()
//	h, created, err := reg.LookupOrCreate(id, func() (*handle, error) {
//	    return newHandle(id), nil
//	})
//	if created {
//	    go h.consume(ctx)
//	}
package device
