// Package republish re-announces every device a bounded number of times
// after the bus (re)connects or a consumer restart is detected, so a
// consumer that joined late still converges.
//
// An episode runs Cycles passes, Interval apart. Start on a running
// episode resets its count instead of launching another loop. Restart
// zeroes the count, cancels the running loop, waits for it to exit, pauses
// for RestartDelay and then starts a fresh episode. Passes are serialised,
// so two episodes never publish concurrently.
package republish
