// Package confirm applies remote mutations that have no synchronous
// acknowledgement and polls until the remote state reflects them.
//
// A single invocation walks the state machine
//
//	Issued -> (settle) -> Checking -> Matched     -> Success
//	                               -> NotMatched  -> (retry delay) -> Issued
//	                               -> no retries  -> Failure
//
// The first mutation is issued immediately; every retry waits the same
// fixed delay. The device is re-resolved on every attempt because the
// remote device listing may have been refreshed in between.
package confirm
