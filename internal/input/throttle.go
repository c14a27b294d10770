package input

import "time"

// Throttle is the explicit state of a drop-if-recent rate limiter.
type Throttle struct {
	Window   time.Duration
	LastEmit time.Time
	Emitted  bool
}

// NewThrottle returns a throttle allowing at most perSecond samples per
// second. perSecond <= 0 disables throttling.
func NewThrottle(perSecond int) Throttle {
	if perSecond <= 0 {
		return Throttle{}
	}
	return Throttle{Window: time.Second / time.Duration(perSecond)}
}

// Allow reports whether a sample at now may be forwarded. It does not change t.
func Allow(t Throttle, now time.Time) bool {
	if t.Window <= 0 || !t.Emitted {
		return true
	}
	return now.Sub(t.LastEmit) >= t.Window
}

// Record opens a new window starting at now.
func (t *Throttle) Record(now time.Time) {
	t.LastEmit = now
	t.Emitted = true
}
