// Package api provides the REST client for the monitoring backend: the
// login flow that produces the bearer token, matched posts, analytics,
// and the WebSocket service health endpoints the dashboard polls when
// the realtime channel is down.
package api
