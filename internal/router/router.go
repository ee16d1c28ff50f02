// Package router classifies inbound envelopes by their type tag and
// dispatches them: heartbeat traffic to the health monitor, status
// payloads into exposed state slots, everything else to subscribers in
// registration order.
package router

import (
	"encoding/json"
	"log/slog"
	"maps"
	"sync"
)

// subscriber pairs a callback with its registration handle.
type subscriber struct {
	id int
	fn func(Envelope)
}

// Router dispatches raw frames from the connection manager. Malformed
// payloads are dropped silently: this channel is a convenience layer
// over a fully functional polling UI, so nothing here is fatal.
type Router struct {
	logger *slog.Logger

	mu               sync.RWMutex
	sink             HealthSink
	connectionStats  json.RawMessage
	monitoringStatus json.RawMessage
	connectionHealth map[string]any
	lastMessage      *Envelope
	subs             []subscriber
	nextSubID        int

	received    int64
	routed      int64
	parseErrors int64
	forwarded   int64
}

// New creates a message Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		logger:           logger,
		connectionHealth: make(map[string]any),
	}
}

// SetHealthSink registers the heartbeat handler. Called once by the
// connection manager during construction.
func (r *Router) SetHealthSink(sink HealthSink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// Subscribe registers a callback for forwarded messages and returns its
// cancel function. Notification order is insertion order.
func (r *Router) Subscribe(fn func(Envelope)) (cancel func()) {
	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch parses and routes a single frame. Messages arrive in the
// order the transport received them.
func (r *Router) Dispatch(data []byte) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		r.logger.Warn("dropping malformed message", "error", err)
		r.mu.Lock()
		r.parseErrors++
		r.mu.Unlock()
		return
	}

	switch env.Type {
	case TypeStats:
		r.mu.Lock()
		r.connectionStats = env.Data
		r.routed++
		r.mu.Unlock()

	case TypeMonitoringStatus, TypeMonitoringStatusUpdate:
		r.mu.Lock()
		r.monitoringStatus = env.Data
		sink := r.sink
		r.routed++
		r.mu.Unlock()
		if sink != nil {
			sink.HandleServerStatus(env.Data)
		}

	case TypeHealthResponse:
		health := decodeFields(r.logger, env.Data)
		r.mu.Lock()
		r.connectionHealth = health
		r.routed++
		r.mu.Unlock()

	case TypeConnectionConfirmed:
		r.mergeHealth(env.Data, "serverStatus", "connectionId")

	case TypeConnectionHealthUpdate:
		r.mergeHealth(env.Data, "serverHealth")

	case TypePing:
		sink := r.healthSink()
		if sink != nil {
			sink.HandlePing(env.Timestamp)
		}
		r.count(&r.routed)

	case TypePong:
		sink := r.healthSink()
		if sink != nil {
			sink.HandlePong(env.Timestamp)
		}
		r.count(&r.routed)

	default:
		r.forward(env)
	}
}

// ConnectionStats returns the last "stats" payload.
func (r *Router) ConnectionStats() json.RawMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connectionStats
}

// MonitoringStatus returns the last monitoring status payload.
func (r *Router) MonitoringStatus() json.RawMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.monitoringStatus
}

// ConnectionHealth returns a copy of the merged connection health map.
func (r *Router) ConnectionHealth() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.connectionHealth)
}

// LastMessage returns the most recently forwarded envelope, if any.
func (r *Router) LastMessage() (Envelope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastMessage == nil {
		return Envelope{}, false
	}
	return *r.lastMessage, true
}

// Stats returns current routing statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		MessagesReceived: r.received,
		MessagesRouted:   r.routed,
		ParseErrors:      r.parseErrors,
		Forwarded:        r.forwarded,
	}
}

// forward records the envelope as the last message and notifies
// subscribers without mutating any internal slot.
func (r *Router) forward(env Envelope) {
	r.mu.Lock()
	r.lastMessage = &env
	r.forwarded++
	r.routed++
	subs := make([]subscriber, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, s := range subs {
		s.fn(env)
	}
}

// mergeHealth copies the named keys from the payload into the
// connection health map, leaving unrelated fields intact.
func (r *Router) mergeHealth(data json.RawMessage, keys ...string) {
	fields := decodeFields(r.logger, data)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			r.connectionHealth[k] = v
		}
	}
	r.routed++
}

func (r *Router) healthSink() HealthSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sink
}

func (r *Router) count(field *int64) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

// decodeFields parses an object payload, tolerating absent or malformed
// data the same way as any other bad frame.
func decodeFields(logger *slog.Logger, data json.RawMessage) map[string]any {
	fields := make(map[string]any)
	if len(data) == 0 {
		return fields
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		logger.Warn("dropping malformed payload", "error", err)
	}
	return fields
}
