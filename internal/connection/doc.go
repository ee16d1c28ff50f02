// Package connection implements the real-time connection layer.
//
// The Manager:
//   - Owns at most one WebSocket transport to the monitoring backend
//   - Validates the bearer token structurally before dialing
//   - Reconnects with bounded exponential backoff on transient closes
//   - Treats close codes 1000 and 4001-4007 as terminal (no retry)
//   - Runs a ping/pong health monitor while connected
//   - Routes incoming messages to the Message Router
package connection
