// Package api implements the HTTP monitoring surface of ringbridge.
//
// This package provides:
//   - Health and device listing endpoints
//   - Command journal queries backed by the SQLite journal
//   - WebSocket hub relaying engine events to live clients
//   - Prometheus exposition at /metrics
//   - Request IDs, panic recovery, and per-route request metrics
//
// # Architecture
//
// The server is read-only: commands arrive over MQTT, never over HTTP.
// The Hub is created before the bridge and handed to it as its event
// sink, so every publication, ding and command outcome reaches subscribed
// WebSocket clients on the channels "state", "availability", "ding" and
// "command".
//
// # Graceful Degradation
//
// The journal is optional. Without it /api/v1/commands answers 503 and
// everything else keeps working.
package api
