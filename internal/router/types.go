package router

import (
	"encoding/json"
	"strconv"
)

// Envelope is the wire shape of every message on the realtime channel.
// Timestamp is whatever number the sender put on the wire (the backend
// emits fractional seconds on its own pings, this client emits unix
// milliseconds); 0 when absent or not numeric.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp float64         `json:"timestamp,omitempty"`
}

// UnmarshalJSON decodes an envelope, tolerating the timestamp variants
// peers emit: integral or fractional numbers, numeric strings, or
// nothing at all. A non-numeric timestamp never invalidates the frame.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Type = raw.Type
	e.Data = raw.Data
	e.Timestamp = parseTimestamp(raw.Timestamp)
	return nil
}

func parseTimestamp(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

// Inbound message types with dedicated handling. Anything else is
// forwarded verbatim to subscribers.
const (
	TypeStats                  = "stats"
	TypeMonitoringStatus       = "monitoring_status"
	TypeMonitoringStatusUpdate = "monitoring_status_update"
	TypeHealthResponse         = "health_response"
	TypeConnectionConfirmed    = "connection_confirmed"
	TypeConnectionHealthUpdate = "connection_health_update"
	TypePing                   = "ping"
	TypePong                   = "pong"
)

// Pass-through types pushed by the server. Listed for consumers; the
// router treats them like any other forwarded message.
const (
	TypeSystemStatus    = "system_status"
	TypeScanStarted     = "scan_started"
	TypeScanCompleted   = "scan_completed"
	TypeAnalyticsUpdate = "analytics_update"
	TypeNewPost         = "new_post"
	TypeNewResponse     = "new_response"
)

// HealthSink receives the heartbeat traffic the router does not expose
// to subscribers. Implemented by the connection manager's health
// monitor.
type HealthSink interface {
	// HandlePing is a server-initiated heartbeat to echo.
	HandlePing(timestamp float64)

	// HandlePong answers a client ping; timestamp is the one we sent.
	HandlePong(timestamp float64)

	// HandleServerStatus carries the opaque monitoring status payload.
	HandleServerStatus(data json.RawMessage)
}

// Stats contains runtime routing statistics.
type Stats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	Forwarded        int64
}
