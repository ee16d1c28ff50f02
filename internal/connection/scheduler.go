package connection

import (
	"math"
	"time"
)

// Policy controls reconnect pacing. Immutable after construction.
//
// No jitter: a single dashboard session reconnecting is not a
// thundering-herd risk at this scale, and deterministic delays keep the
// retry schedule testable.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
}

// DefaultPolicy returns the standard reconnect policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Factor:      2,
		MaxDelay:    30 * time.Second,
	}
}

// Delay returns the wait before reconnect attempt n (0-based):
// min(BaseDelay * Factor^n, MaxDelay). Monotonic nondecreasing in n,
// constant once the cap is reached.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	if d >= float64(p.MaxDelay) || math.IsInf(d, 1) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
