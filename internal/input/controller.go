// Package input turns raw pointer samples into draw gestures. Nothing here is
// replicated; the emitted events are handed to the view for publishing.
package input

import (
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
)

// DefaultRate matches the 20 samples per second of the browser client.
const DefaultRate = 20

type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

type Config struct {
	// Rate is the maximum number of forwarded move samples per second.
	Rate int
	// Clock defaults to time.Now.
	Clock func() time.Time
	// NewStrokeID defaults to uuid.NewString.
	NewStrokeID func() string
}

type Controller struct {
	state    State
	strokeID string
	points   []models.Point
	throttle Throttle
	now      func() time.Time
	newID    func() string
	emit     func(models.DrawEvent)
}

// NewController returns an idle controller that calls emit for every
// forwarded sample with the whole stroke accumulated so far.
func NewController(cfg Config, emit func(models.DrawEvent)) *Controller {
	c := &Controller{
		throttle: NewThrottle(cfg.Rate),
		now:      cfg.Clock,
		newID:    cfg.NewStrokeID,
		emit:     emit,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// PointerDown starts a new stroke, discarding any unfinished one.
func (c *Controller) PointerDown() {
	c.state = Active
	c.strokeID = c.newID()
	c.points = nil
}

// PointerMove records a sample. It is ignored while idle and dropped, not
// queued, when the throttle window is still open.
func (c *Controller) PointerMove(p models.Point) {
	if c.state != Active {
		return
	}
	now := c.now()
	if !Allow(c.throttle, now) {
		return
	}
	c.throttle.Record(now)

	c.points = append(c.points, p)
	c.emit(models.DrawEvent{
		StrokeID: c.strokeID,
		Points:   append([]models.Point(nil), c.points...),
	})
}

// PointerUp ends the stroke. The last emitted event already carried it, so
// nothing is emitted. Repeated calls are no-ops.
func (c *Controller) PointerUp() {
	c.state = Idle
	c.strokeID = ""
	c.points = nil
}

func (c *Controller) State() State {
	return c.state
}

// Throttle exposes the limiter state for inspection.
func (c *Controller) Throttle() Throttle {
	return c.throttle
}
