package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// State is the connection lifecycle state. Exactly one per Manager,
// mutated only by the Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ConnectResult is the explicit outcome of a Connect call. Skips are
// not errors: the channel is supplementary and the dashboard keeps
// working over plain HTTP without it.
type ConnectResult int

const (
	ConnectStarted ConnectResult = iota
	ConnectSkippedActive
	ConnectSkippedBadToken
	ConnectSkippedDisabled
)

// String returns the string representation of a ConnectResult.
func (r ConnectResult) String() string {
	switch r {
	case ConnectStarted:
		return "started"
	case ConnectSkippedActive:
		return "skipped: already active"
	case ConnectSkippedBadToken:
		return "skipped: malformed token"
	case ConnectSkippedDisabled:
		return "skipped: realtime disabled"
	default:
		return "unknown"
	}
}

// SendResult is the explicit outcome of a Send call. Messages sent while
// not connected are dropped, never queued.
type SendResult int

const (
	SendDelivered SendResult = iota
	SendDropped
)

// WebSocket close codes with application meaning. 1000 and the 4xxx
// range never trigger a reconnect; anything else is treated as a
// transient failure and retried with backoff.
const (
	CloseNormal         = 1000
	CloseAbnormal       = 1006
	CloseInvalidToken   = 4001
	CloseUserNotFound   = 4002
	CloseUserInactive   = 4003
	CloseClientNotFound = 4004
	CloseInternalError  = 4005
	CloseTokenExpired   = 4006
	CloseTokenMissing   = 4007
)

// terminalReason maps a close code to a human-readable error for codes
// where retrying is pointless without operator intervention.
func terminalReason(code int) (string, bool) {
	switch code {
	case CloseInvalidToken:
		return "authentication failed: token invalid", true
	case CloseUserNotFound:
		return "authentication failed: user not found", true
	case CloseUserInactive:
		return "authentication failed: user account inactive", true
	case CloseClientNotFound:
		return "authentication failed: client not found", true
	case CloseInternalError:
		return "server reported an internal error", true
	case CloseTokenExpired:
		return "authentication failed: token expired", true
	case CloseTokenMissing:
		return "authentication failed: token missing", true
	}
	return "", false
}

// outbound is the wire envelope for client-emitted messages. Timestamp
// is float so an echoed server heartbeat keeps its fractional part.
type outbound struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
}

// Outbound message types emitted by this component.
const (
	typePing             = "ping"
	typePong             = "pong"
	typeMonitoringStatus = "get_monitoring_status"
	typeHealthCheck      = "health_check"
)

// HealthSnapshot is the latest liveness measurement for the active
// connection. Replaced wholesale on each relevant event; consumers must
// treat it as read-only.
type HealthSnapshot struct {
	// LatencyMillis is the last measured ping round trip. -1 until the
	// first pong arrives.
	LatencyMillis int64

	// LastPongAt is the local receive time of the last pong. Zero until
	// the first pong arrives.
	LastPongAt time.Time

	// PingTimeout is true from the moment a ping goes unanswered for
	// the timeout window until the next pong or reconnect. Advisory
	// only: it never forces a disconnect by itself.
	PingTimeout bool

	// ServerStatus is the last server-reported monitoring payload,
	// opaque to this layer.
	ServerStatus json.RawMessage
}
