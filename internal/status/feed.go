package status

import (
	"sync"
	"time"
)

// Event kinds recorded in the feed.
const (
	KindState   = "state"
	KindHealth  = "health"
	KindMessage = "message"
)

// Event is a single entry in the activity feed.
type Event struct {
	Time    time.Time
	Kind    string
	Message string
}

// Feed is a thread-safe fixed-capacity ring of recent events. When the
// feed is full the oldest entry is evicted.
type Feed struct {
	mu       sync.Mutex
	buf      []Event
	head     int // oldest entry
	count    int
	capacity int
	recorded int64
}

// NewFeed creates a feed holding at most capacity events.
func NewFeed(capacity int) *Feed {
	if capacity < 1 {
		capacity = 1
	}
	return &Feed{
		buf:      make([]Event, capacity),
		capacity: capacity,
	}
}

// Record appends an event, evicting the oldest when the feed is full.
func (f *Feed) Record(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tail := (f.head + f.count) % f.capacity
	f.buf[tail] = ev
	if f.count < f.capacity {
		f.count++
	} else {
		f.head = (f.head + 1) % f.capacity
	}
	f.recorded++
}

// Recent returns up to n events, oldest first. n <= 0 returns everything
// currently held.
func (f *Feed) Recent(n int) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n <= 0 || n > f.count {
		n = f.count
	}
	if n == 0 {
		return nil
	}

	out := make([]Event, n)
	start := f.head + f.count - n
	for i := 0; i < n; i++ {
		out[i] = f.buf[(start+i)%f.capacity]
	}
	return out
}

// Len returns the number of events currently held.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Recorded returns the total number of events ever recorded, including
// evicted ones.
func (f *Feed) Recorded() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recorded
}
