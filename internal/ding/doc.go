// Package ding turns a camera's discrete motion and doorbell events into a
// binary active/inactive state that deactivates on its own.
//
// # Expiry
//
// Every event carries a server-chosen expiry window. Recording an event
// activates the kind and pushes its deadline forward; a single watcher per
// kind waits for the deadline, re-checking it after every wake because a
// later event may have extended it. Only when the clock reaches the latest
// deadline does the kind turn inactive.
//
// # Emissions
//
// The tracker reports transitions through a callback: ON for every recorded
// event (re-triggers included) and exactly one OFF per activation window.
// Transitions for one tracker are emitted in order, under the tracker's
// lock, so the callback must not call back into the tracker.
package ding
