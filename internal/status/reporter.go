// Package status renders connection lifecycle events as colored lines
// for the operator terminal and keeps a bounded feed of recent
// activity.
package status

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/subwatch/dashboard/internal/connection"
	"github.com/subwatch/dashboard/internal/router"
)

// feedCapacity bounds the recent-events feed.
const feedCapacity = 64

var (
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed)
	infoColor  = color.New(color.FgCyan)
	eventColor = color.New(color.Faint)
)

// Reporter translates state, health and message callbacks into terminal
// lines and records them in the feed.
type Reporter struct {
	out    io.Writer
	logger *slog.Logger
	mgr    *connection.Manager
	feed   *Feed

	mu       sync.Mutex
	degraded bool
}

// NewReporter wires a Reporter to the connection manager and router
// callbacks. out may be nil to keep only the feed.
func NewReporter(mgr *connection.Manager, rt *router.Router, out io.Writer, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reporter{
		out:    out,
		logger: logger,
		mgr:    mgr,
		feed:   NewFeed(feedCapacity),
	}

	if mgr != nil {
		mgr.OnStateChange(r.handleState)
		mgr.OnHealthChange(r.handleHealth)
	}
	if rt != nil {
		rt.Subscribe(r.handleMessage)
	}

	return r
}

// Feed returns the bounded feed of recent events.
func (r *Reporter) Feed() *Feed {
	return r.feed
}

func (r *Reporter) handleState(s connection.State) {
	var line string
	switch s {
	case connection.StateConnecting:
		line = infoColor.Sprint("realtime: connecting")
	case connection.StateConnected:
		line = okColor.Sprint("realtime: connected")
	case connection.StateReconnecting:
		line = warnColor.Sprintf("realtime: reconnecting (attempt %d/%d)",
			r.mgr.Attempts(), r.mgr.MaxAttempts())
	case connection.StateDisconnected:
		if msg := r.mgr.LastError(); msg != "" {
			line = errColor.Sprintf("realtime: disconnected: %s", msg)
		} else {
			line = "realtime: disconnected"
		}
	}

	r.emit(Event{Kind: KindState, Message: s.String()}, line)
}

func (r *Reporter) handleHealth(h connection.HealthSnapshot) {
	r.mu.Lock()
	was := r.degraded
	r.degraded = h.PingTimeout
	r.mu.Unlock()

	switch {
	case h.PingTimeout && !was:
		r.emit(Event{Kind: KindHealth, Message: "degraded"},
			warnColor.Sprint("realtime: degraded, no pong within timeout"))
	case !h.PingTimeout && was:
		r.emit(Event{Kind: KindHealth, Message: "healthy"},
			okColor.Sprintf("realtime: healthy, latency %dms", h.LatencyMillis))
	}
}

func (r *Reporter) handleMessage(env router.Envelope) {
	r.emit(Event{Kind: KindMessage, Message: env.Type},
		eventColor.Sprintf("event: %s", env.Type))
}

// emit records the event and writes the rendered line.
func (r *Reporter) emit(ev Event, line string) {
	ev.Time = time.Now()
	r.feed.Record(ev)

	if r.out != nil {
		fmt.Fprintf(r.out, "%s %s\n", ev.Time.Format("15:04:05"), line)
	}
}
